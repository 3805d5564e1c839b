package models

import (
	"fmt"
	"strconv"
	"strings"
)

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Signal is an inbound trade signal, validated by the transport layer
// before it reaches the engine. Immutable once received.
//
// Stop and target levels can be given either as percent offsets from the
// entry price (SLPct, TP1Pct, TP2Pct) or as absolute prices; an absolute
// price wins when both are set.
type Signal struct {
	Pair      string    `json:"pair"`
	Direction Direction `json:"signal"`
	RiskPct   float64   `json:"risk"`
	SLPct     float64   `json:"sl_pct"`
	TP1Pct    float64   `json:"tp1_pct"`
	TP2Pct    float64   `json:"tp2_pct"`
	SLPrice   float64   `json:"sl_price,omitempty"`
	TP1Price  float64   `json:"tp1_price,omitempty"`
	TP2Price  float64   `json:"tp2_price,omitempty"`
	Test      bool      `json:"test"`
}

// Side maps the signal direction to the entry order side.
func (s *Signal) Side() OrderSide {
	if s.Direction == DirectionShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// ExitSide is the side that reduces a position opened by this signal.
func (s *Signal) ExitSide() OrderSide {
	if s.Direction == DirectionShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

// ParsePercent parses values like "2%", "2" or "2.5" into a float.
// Webhook payloads send risk both as a bare number and as a percent string.
func ParsePercent(v string) (float64, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(v), "%")
	pct, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse percent value %q: %v", v, err)
	}
	return pct, nil
}
