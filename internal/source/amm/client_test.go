package amm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catdash/internal/httpclient"
)

func TestFetchPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultPairsPath, r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			{"asset_id":"a1","asset_name":"Alpha","asset_short_name":"AAA","asset_image_url":"https://img/a1.png","xch_reserve":50000000000000,"token_reserve":"100000","liquidity":1},
			{"asset_id":"","xch_reserve":1,"token_reserve":1},
			{"asset_id":"b1","xch_reserve":1},
			{"asset_id":"c1","xch_reserve":"x","token_reserve":1}
		]`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, PageSize: 25}, httpclient.New(), zap.NewNop())
	pairs, err := client.FetchPairs(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	assert.Equal(t, "a1", pairs[0].ID)
	assert.Equal(t, "AAA", pairs[0].ShortName)
	assert.Equal(t, "50000000000000", pairs[0].QuoteReserve.String())
	assert.Equal(t, "100000", pairs[0].TokenReserve.String())
}

func TestFetchPairsRejectsNonArray(t *testing.T) {
	for _, body := range []string{`{"pairs":[]}`, `null`, `"x"`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := NewClient(Config{BaseURL: srv.URL}, nil, nil).FetchPairs(context.Background())
		srv.Close()
		assert.ErrorIs(t, err, httpclient.ErrMalformedEnvelope, body)
	}
}

func TestFetchPairsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}, nil, nil).FetchPairs(context.Background())
	var statusErr *httpclient.StatusError
	assert.ErrorAs(t, err, &statusErr)
}

func TestFetchPairsEmptyArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	pairs, err := NewClient(Config{BaseURL: srv.URL}, nil, nil).FetchPairs(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, pairs)
	assert.Empty(t, pairs)
}
