package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberAcceptsNumbersStringsAndNull(t *testing.T) {
	var payload struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
		D Number `json:"d"`
		E Number `json:"e"`
	}
	err := json.Unmarshal([]byte(`{"a":1.25,"b":"0.5","c":null,"d":0,"e":""}`), &payload)
	require.NoError(t, err)

	assert.True(t, payload.A.Valid)
	assert.Equal(t, 1.25, payload.A.Float())
	assert.True(t, payload.B.Valid)
	assert.Equal(t, 0.5, payload.B.Float())
	assert.False(t, payload.C.Valid)
	assert.True(t, payload.D.Valid, "explicit zero is present")
	assert.Equal(t, 0.0, payload.D.Float())
	assert.False(t, payload.E.Valid)
}

func TestNumberAbsentIsInvalid(t *testing.T) {
	var payload struct {
		A Number `json:"a"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{}`), &payload))
	assert.False(t, payload.A.Valid)
	assert.Equal(t, 0.0, payload.A.Float())
}

func TestNumberRejectsGarbage(t *testing.T) {
	var n Number
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &n))
}

func TestTokenMetadataDenomDefault(t *testing.T) {
	assert.Equal(t, DefaultDenom, TokenMetadata{}.DenomOrDefault())
	assert.Equal(t, int64(1000000), TokenMetadata{Denom: 1000000}.DenomOrDefault())
}
