package models

import "time"

// AccountSnapshot is the quote-currency balance at a point in time.
// Always fetched fresh per decision; the balance can change between
// signals, so snapshots are never cached.
type AccountSnapshot struct {
	Currency  string    `json:"currency"`
	Available float64   `json:"available"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Candle is one OHLC bar from the venue's candles endpoint.
type Candle struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// PriceSnapshot couples the last traded price with the extremes of a
// short candle window, fetched fresh per decision.
type PriceSnapshot struct {
	Pair       string    `json:"pair"`
	Last       float64   `json:"last"`
	WindowHigh float64   `json:"window_high"`
	WindowLow  float64   `json:"window_low"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// VolatilityPct is the candle-window range as a percentage of the low:
// (max(high) - min(low)) / min(low) * 100.
func (p PriceSnapshot) VolatilityPct() float64 {
	if p.WindowLow <= 0 {
		return 0
	}
	return (p.WindowHigh - p.WindowLow) / p.WindowLow * 100
}
