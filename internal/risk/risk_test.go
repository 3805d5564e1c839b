package risk

import (
	"math"
	"testing"

	"marginbot/internal/config"
	"marginbot/internal/models"

	"github.com/pkg/errors"
)

func testSizer() *Sizer {
	return New(config.RiskConfig{
		MinRiskPct:    0.5,
		MinNotional:   5,
		SizePrecision: 4,
		MaxLeverage:   20,
	})
}

func TestComputeSize(t *testing.T) {
	sig := &models.Signal{Pair: "BTCUSDT", Direction: models.DirectionLong, RiskPct: 2}

	size, notional, err := testSizer().ComputeSize(sig, 1000, 50000)
	if err != nil {
		t.Fatalf("ComputeSize failed: %v", err)
	}
	if notional != 20 {
		t.Errorf("notional = %v, want 20", notional)
	}
	if size != 0.0004 {
		t.Errorf("size = %v, want 0.0004", size)
	}
}

func TestComputeSizeInsufficientNotional(t *testing.T) {
	sig := &models.Signal{Pair: "BTCUSDT", Direction: models.DirectionLong, RiskPct: 1}

	_, _, err := testSizer().ComputeSize(sig, 10, 50000)
	if errors.Cause(err) != ErrInsufficientNotional {
		t.Fatalf("err = %v, want ErrInsufficientNotional", err)
	}
}

func TestComputeSizeClampsRiskPct(t *testing.T) {
	s := testSizer()

	// Below the floor: clamped up to 0.5%.
	low := &models.Signal{RiskPct: 0.01}
	_, notional, err := s.ComputeSize(low, 10000, 50000)
	if err != nil {
		t.Fatalf("ComputeSize failed: %v", err)
	}
	if notional != 50 {
		t.Errorf("notional = %v, want 50 (0.5%% of 10000)", notional)
	}

	// Above 100%: capped at the full balance.
	high := &models.Signal{RiskPct: 500}
	_, notional, err = s.ComputeSize(high, 1000, 50000)
	if err != nil {
		t.Fatalf("ComputeSize failed: %v", err)
	}
	if notional != 1000 {
		t.Errorf("notional = %v, want balance cap 1000", notional)
	}
}

func TestClampRiskPct(t *testing.T) {
	s := testSizer()
	if got := s.ClampRiskPct(0.1); got != 0.5 {
		t.Errorf("ClampRiskPct(0.1) = %v, want floor 0.5", got)
	}
	if got := s.ClampRiskPct(2); got != 2 {
		t.Errorf("ClampRiskPct(2) = %v, want 2 unchanged", got)
	}
	if got := s.ClampRiskPct(500); got != 100 {
		t.Errorf("ClampRiskPct(500) = %v, want cap 100", got)
	}
}

func TestComputeLeverage(t *testing.T) {
	s := testSizer()

	// 2% risk with a 10% stop distance: floor(2 / 0.1) = 20, at the cap.
	if got := s.ComputeLeverage(100, 90, 2); got != 20 {
		t.Errorf("leverage = %d, want 20", got)
	}
	// Wider stop lowers leverage: floor(2 / 0.4) = 5.
	if got := s.ComputeLeverage(100, 60, 2); got != 5 {
		t.Errorf("leverage = %d, want 5", got)
	}
	// Tight stop clamps to the max.
	if got := s.ComputeLeverage(100, 99, 2); got != 20 {
		t.Errorf("leverage = %d, want max 20", got)
	}
	// Huge stop distance clamps to 1.
	if got := s.ComputeLeverage(100, 1, 0.5); got != 1 {
		t.Errorf("leverage = %d, want 1", got)
	}
}

func TestStopAndTargetPrices(t *testing.T) {
	long := &models.Signal{Direction: models.DirectionLong, SLPct: 1, TP1Pct: 1.25, TP2Pct: 2.5}
	if got := StopPrice(long, 50000); math.Abs(got-49500) > 1e-6 {
		t.Errorf("long stop = %v, want 49500", got)
	}
	tp1, tp2 := TargetPrices(long, 50000)
	if math.Abs(tp1-50625) > 1e-6 || math.Abs(tp2-51250) > 1e-6 {
		t.Errorf("long targets = %v, %v, want 50625, 51250", tp1, tp2)
	}

	short := &models.Signal{Direction: models.DirectionShort, SLPct: 1, TP1Pct: 1.25, TP2Pct: 2.5}
	if got := StopPrice(short, 50000); math.Abs(got-50500) > 1e-6 {
		t.Errorf("short stop = %v, want 50500", got)
	}
	tp1, tp2 = TargetPrices(short, 50000)
	if math.Abs(tp1-49375) > 1e-6 || math.Abs(tp2-48750) > 1e-6 {
		t.Errorf("short targets = %v, %v, want 49375, 48750", tp1, tp2)
	}
}

func TestAbsoluteLevelsWinOverPercent(t *testing.T) {
	sig := &models.Signal{
		Direction: models.DirectionLong,
		SLPct:     1, SLPrice: 48000,
		TP1Pct: 1.25, TP1Price: 52000,
		TP2Pct: 2.5,
	}
	if got := StopPrice(sig, 50000); got != 48000 {
		t.Errorf("stop = %v, want absolute 48000", got)
	}
	tp1, tp2 := TargetPrices(sig, 50000)
	if tp1 != 52000 {
		t.Errorf("tp1 = %v, want absolute 52000", tp1)
	}
	if math.Abs(tp2-51250) > 1e-6 {
		t.Errorf("tp2 = %v, want percent-derived 51250", tp2)
	}
}
