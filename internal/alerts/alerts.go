// Package alerts detects price moves between consecutive dashboard snapshots.
package alerts

import (
	"math"
	"sort"
	"strings"
	"time"

	"catdash/internal/model"
)

// DefaultThresholdPct is the minimum price move, in percent, that raises an alert.
const DefaultThresholdPct = 5.0

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Alert reports one token whose quote price crossed the threshold.
type Alert struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	OldPrice  float64   `json:"oldPrice"`
	NewPrice  float64   `json:"newPrice"`
	ChangePct float64   `json:"changePct"`
	Direction Direction `json:"direction"`
	At        time.Time `json:"at"`
}

// WatchSet builds a lookup set from ids, ignoring blanks.
func WatchSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// Detect compares priceXch per token. An empty watch set watches every token.
// Stale snapshots and a non-positive threshold yield no alerts.
func Detect(prev, cur model.Snapshot, thresholdPct float64, watch map[string]struct{}) []Alert {
	if thresholdPct <= 0 || prev.IsStale || cur.IsStale {
		return nil
	}

	before := make(map[string]float64, len(prev.Tokens))
	for _, tok := range prev.Tokens {
		before[tok.ID] = tok.PriceXch
	}

	var out []Alert
	for _, tok := range cur.Tokens {
		if len(watch) > 0 {
			if _, ok := watch[tok.ID]; !ok {
				continue
			}
		}
		old, ok := before[tok.ID]
		if !ok || old <= 0 || tok.PriceXch <= 0 {
			continue
		}
		change := (tok.PriceXch - old) / old * 100
		if math.Abs(change) < thresholdPct {
			continue
		}
		dir := DirectionUp
		if change < 0 {
			dir = DirectionDown
		}
		out = append(out, Alert{
			ID:        tok.ID,
			Symbol:    tok.Symbol,
			OldPrice:  old,
			NewPrice:  tok.PriceXch,
			ChangePct: change,
			Direction: dir,
			At:        cur.FetchedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].ChangePct), math.Abs(out[j].ChangePct)
		if ai != aj {
			return ai > aj
		}
		return out[i].ID < out[j].ID
	})
	return out
}
