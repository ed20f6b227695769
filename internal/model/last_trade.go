package model

import "time"

// LastTradeRecord is the most recent completed trade seen for a token.
type LastTradeRecord struct {
	ID        string    `json:"id"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
