package risk

import (
	"math"

	"marginbot/internal/config"
	"marginbot/internal/models"

	"github.com/pkg/errors"
)

// ErrInsufficientNotional means the clamped notional is still below the
// venue minimum; the signal is rejected before any network call.
var ErrInsufficientNotional = errors.New("risk: notional below venue minimum")

// Sizer converts a signal plus fresh balance/price into order size and
// leverage. Pure computation, no I/O.
type Sizer struct {
	MinRiskPct    float64
	MinNotional   float64
	SizePrecision int
	MaxLeverage   int
}

func New(cfg config.RiskConfig) *Sizer {
	return &Sizer{
		MinRiskPct:    cfg.MinRiskPct,
		MinNotional:   cfg.MinNotional,
		SizePrecision: cfg.SizePrecision,
		MaxLeverage:   cfg.MaxLeverage,
	}
}

// ComputeSize derives order size from the account balance:
// notional = balance * clamp(riskPct, floor, 100) / 100, capped at the
// balance and rejected below the venue minimum, then
// size = round(notional/price, precision).
func (s *Sizer) ComputeSize(sig *models.Signal, balance, price float64) (size, notional float64, err error) {
	if balance <= 0 || price <= 0 {
		return 0, 0, ErrInsufficientNotional
	}

	riskPct := s.ClampRiskPct(sig.RiskPct)
	notional = balance * riskPct / 100
	if notional > balance {
		notional = balance
	}
	if notional < s.MinNotional {
		return 0, 0, errors.Wrapf(ErrInsufficientNotional,
			"notional %.2f below minimum %.2f", notional, s.MinNotional)
	}

	size = roundTo(notional/price, s.SizePrecision)
	if size <= 0 {
		return 0, 0, errors.Wrapf(ErrInsufficientNotional,
			"size rounds to zero at price %.2f", price)
	}
	return size, notional, nil
}

// ComputeLeverage scales leverage inversely with stop distance so a
// fixed risk percentage always puts the same capital at risk regardless
// of how tight the stop is. The upper clamp bounds tail risk from
// misconfigured inputs.
func (s *Sizer) ComputeLeverage(entry, stopPrice, riskPct float64) int {
	if entry <= 0 {
		return 1
	}
	stopDistancePct := math.Abs(entry-stopPrice) / entry
	if stopDistancePct <= 0 {
		return s.MaxLeverage
	}
	leverage := int(math.Floor(riskPct / stopDistancePct))
	if leverage < 1 {
		return 1
	}
	if leverage > s.MaxLeverage {
		return s.MaxLeverage
	}
	return leverage
}

// StopPrice resolves the signal's stop-loss level against the entry
// price. An absolute price wins over a percent offset.
func StopPrice(sig *models.Signal, entry float64) float64 {
	if sig.SLPrice > 0 {
		return sig.SLPrice
	}
	if sig.Direction == models.DirectionShort {
		return entry * (1 + sig.SLPct/100)
	}
	return entry * (1 - sig.SLPct/100)
}

// TargetPrices resolves both take-profit levels against the entry price.
func TargetPrices(sig *models.Signal, entry float64) (tp1, tp2 float64) {
	sign := 1.0
	if sig.Direction == models.DirectionShort {
		sign = -1.0
	}
	tp1 = entry * (1 + sign*sig.TP1Pct/100)
	if sig.TP1Price > 0 {
		tp1 = sig.TP1Price
	}
	tp2 = entry * (1 + sign*sig.TP2Pct/100)
	if sig.TP2Price > 0 {
		tp2 = sig.TP2Price
	}
	return tp1, tp2
}

// ClampRiskPct bounds a risk percentage to [MinRiskPct, 100]. Sizing and
// leverage must both see the same clamped value, so the orchestrator
// clamps once through here.
func (s *Sizer) ClampRiskPct(pct float64) float64 {
	return clampFloat(pct, s.MinRiskPct, 100)
}

// RoundSize rounds an order size to the venue's size precision. The
// orchestrator uses it when splitting the filled size across exits.
func (s *Sizer) RoundSize(v float64) float64 {
	return roundTo(v, s.SizePrecision)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundTo(v float64, precision int) float64 {
	factor := math.Pow(10, float64(precision))
	return math.Round(v*factor) / factor
}
