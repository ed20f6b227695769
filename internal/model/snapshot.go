package model

import "time"

// Snapshot is one aggregation cycle's output as handed to the presentation layer.
type Snapshot struct {
	Tokens    []DashboardToken `json:"tokens"`
	FiatRate  float64          `json:"fiatRate"`
	FetchedAt time.Time        `json:"fetchedAt"`
	IsStale   bool             `json:"isStale"`
}

// EmptySnapshot is the stale placeholder served when aggregation fails.
func EmptySnapshot(fiatRate float64, now time.Time) Snapshot {
	return Snapshot{
		Tokens:    []DashboardToken{},
		FiatRate:  fiatRate,
		FetchedAt: now.UTC(),
		IsStale:   true,
	}
}
