package lasttrade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catdash/internal/httpclient"
)

const offersBody = `{"success":true,"offers":[
	{"id":"o1","offered":[{"id":"xch","code":"XCH","amount":1.5}],"requested":[{"id":"a1","code":"AAA","amount":3}],"date_completed":"2024-05-02T10:00:00.000Z"},
	{"id":"o2","offered":[{"id":"a1","code":"AAA","amount":1}],"requested":[{"id":"xch","code":"XCH","amount":9}],"date_completed":"2024-05-01T10:00:00.000Z"},
	{"id":"o3","offered":[{"id":"b1","code":"BBB","amount":"4"}],"requested":[{"id":"xch","code":"XCH","amount":"1"}],"date_completed":"2024-05-01T09:00:00Z"},
	{"id":"o4","offered":[{"id":"c1","amount":1}],"requested":[{"id":"d1","amount":1}]},
	{"id":"o5","offered":[{"id":"xch","amount":0}],"requested":[{"id":"e1","amount":1}]},
	{"id":"o6","offered":[{"id":"xch","amount":1}],"requested":[{"id":"f1","amount":0}]},
	{"id":"o7","offered":[{"id":"xch","amount":1}],"requested":[]},
	{"id":"o8","offered":"broken"}
]}`

func TestFetchLastTradePrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultOffersPath, r.URL.Path)
		assert.Equal(t, "4", r.URL.Query().Get("status"))
		assert.Equal(t, "200", r.URL.Query().Get("page_size"))
		_, _ = w.Write([]byte(offersBody))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, PageSize: 1000}, httpclient.New(), zap.NewNop())
	records, err := client.FetchLastTradePrices(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	a1 := records["a1"]
	assert.InDelta(t, 0.5, a1.Price, 1e-12, "newest offer wins")
	assert.True(t, a1.Timestamp.Equal(time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)), a1.Timestamp.String())

	b1 := records["b1"]
	assert.InDelta(t, 0.25, b1.Price, 1e-12)
}

func TestFetchLastTradePricesMalformed(t *testing.T) {
	for _, body := range []string{`[]`, `{"offers":{}}`, `{"success":false,"offers":[]}`, `{}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := NewClient(Config{BaseURL: srv.URL}, nil, nil).FetchLastTradePrices(context.Background())
		srv.Close()
		assert.ErrorIs(t, err, httpclient.ErrMalformedEnvelope, body)
	}
}

func TestTradePriceSkipsUnidentifiedLegs(t *testing.T) {
	_, _, ok := tradePrice(rawOffer{
		Offered:   []rawAsset{{ID: "a1"}},
		Requested: []rawAsset{{ID: "b1"}},
	}, "xch")
	assert.False(t, ok)
}
