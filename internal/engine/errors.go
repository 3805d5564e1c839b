package engine

import "fmt"

type GateReason string

const (
	ReasonVolatility GateReason = "volatility"
	ReasonDailyLoss  GateReason = "daily_loss"
	ReasonCooldown   GateReason = "cooldown"
	ReasonDuplicate  GateReason = "duplicate"
)

// GateBlockedError means an admission gate rejected the signal. Expected
// and reported, never retried.
type GateBlockedError struct {
	Reason GateReason
	Pair   string
}

func (e *GateBlockedError) Error() string {
	return fmt.Sprintf("signal for %s blocked by gate: %s", e.Pair, e.Reason)
}
