package engine

import (
	"context"
	"sync"

	"marginbot/internal/config"
	"marginbot/internal/metrics"
	"marginbot/internal/models"
	"marginbot/internal/notify"
	"marginbot/internal/risk"
	"marginbot/internal/state"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Venue is the authenticated exchange surface the engine drives.
type Venue interface {
	Balance(ctx context.Context, currency string) (models.AccountSnapshot, error)
	LastPrice(ctx context.Context, pair string) (float64, error)
	Volatility(ctx context.Context, pair string, lookback int, barSize string) (float64, error)
	SetLeverage(ctx context.Context, pair string, leverage int) error
	PlaceOrder(ctx context.Context, order *models.SizedOrder) (*models.PlacedOrder, error)
	PreviewOrder(ctx context.Context, order *models.SizedOrder) (*models.OrderPreview, error)
}

// Journal records placed orders and closed trades. May be nil.
type Journal interface {
	SaveOrder(order *models.PlacedOrder) error
	SaveTrade(trade *models.ClosedTrade) error
}

// signalState tracks a signal through the orchestration state machine:
// RECEIVED -> GATE_CHECK -> [BLOCKED] | SIZING -> ENTRY_PLACED ->
// EXITS_PLACED -> [ACCEPTED] | [FAILED].
type signalState string

const (
	stateReceived    signalState = "RECEIVED"
	stateGateCheck   signalState = "GATE_CHECK"
	stateBlocked     signalState = "BLOCKED"
	stateSizing      signalState = "SIZING"
	stateEntryPlaced signalState = "ENTRY_PLACED"
	stateExitsPlaced signalState = "EXITS_PLACED"
	stateAccepted    signalState = "ACCEPTED"
	stateFailed      signalState = "FAILED"
)

// Engine turns validated signals into authenticated orders, enforcing
// the admission gates and supervising a trailing-stop watcher per open
// position.
type Engine struct {
	venue    Venue
	sizer    *risk.Sizer
	store    *state.Store
	notifier notify.Notifier
	journal  Journal
	gates    config.GateConfig
	cfg      config.EngineConfig
	currency string

	wg        sync.WaitGroup
	stop      chan struct{}
	closeOnce sync.Once
}

func New(cfg *config.Config, venue Venue, store *state.Store, notifier notify.Notifier, journal Journal) *Engine {
	return &Engine{
		venue:    venue,
		sizer:    risk.New(cfg.Risk),
		store:    store,
		notifier: notifier,
		journal:  journal,
		gates:    cfg.Gates,
		cfg:      cfg.Engine,
		currency: cfg.Exchange.Currency,
		stop:     make(chan struct{}),
	}
}

// Close stops all trailing-stop watchers and waits for them to finish.
// Positions open on the venue stay open; only the monitoring stops.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.stop)
	})
	e.wg.Wait()
}

// Execute runs one signal through the full gate-size-place sequence.
// Safe to call concurrently; signals for different pairs are independent.
func (e *Engine) Execute(ctx context.Context, sig *models.Signal) error {
	slog := log.WithField("pair", sig.Pair).WithField("direction", sig.Direction)
	slog.WithField("state", stateReceived).Info("Signal received")

	slog.WithField("state", stateGateCheck).Info("Checking gates")
	if blocked := e.checkGates(ctx, sig); blocked != nil {
		slog.WithField("state", stateBlocked).Warnf("Signal blocked: %s", blocked.Reason)
		metrics.Signals.WithLabelValues("blocked").Inc()
		metrics.Blocked.WithLabelValues(string(blocked.Reason)).Inc()
		e.notifier.Notify(notify.Event{
			Kind: notify.KindBlocked,
			Pair: sig.Pair,
			Details: map[string]interface{}{
				"reason": string(blocked.Reason),
			},
		})
		return blocked
	}

	// From here a failure must release the lock taken by the duplicate
	// gate, but only once the whole placement sequence has run its
	// course. Dry-run signals never take the lock.
	locked := !sig.Test
	failed := func(err error, detail string) error {
		slog.WithField("state", stateFailed).WithError(err).Error(detail)
		metrics.Signals.WithLabelValues("failed").Inc()
		e.notifier.Notify(notify.Event{
			Kind: notify.KindError,
			Pair: sig.Pair,
			Details: map[string]interface{}{
				"stage": detail,
				"error": err.Error(),
			},
		})
		if locked {
			e.store.Close(sig.Pair)
		}
		return err
	}

	slog.WithField("state", stateSizing).Info("Computing size and leverage")
	account, err := e.venue.Balance(ctx, e.currency)
	if err != nil {
		return failed(err, "balance fetch")
	}
	price, err := e.venue.LastPrice(ctx, sig.Pair)
	if err != nil {
		return failed(err, "price fetch")
	}

	size, notional, err := e.sizer.ComputeSize(sig, account.Available, price)
	if err != nil {
		return failed(err, "sizing")
	}
	stopPrice := risk.StopPrice(sig, price)
	tp1Price, tp2Price := risk.TargetPrices(sig, price)
	leverage := e.sizer.ComputeLeverage(price, stopPrice, e.sizer.ClampRiskPct(sig.RiskPct))

	tp1Size := e.sizer.RoundSize(size * e.cfg.TPSplit)
	tp2Size := e.sizer.RoundSize(size - tp1Size)
	if tp1Size <= 0 || tp2Size <= 0 {
		// A single-tick entry cannot be split; the full size rides the
		// trailing-stop slice and the TP1 leg is skipped. Every placed
		// order keeps a strictly positive size.
		tp1Size, tp2Size = 0, size
	}

	entry := e.newOrder(sig.Pair, sig.Side(), models.OrderTypeMarket, size, 0, false)
	tp2 := e.newOrder(sig.Pair, sig.ExitSide(), models.OrderTypeTrigger, tp2Size, tp2Price, true)
	sl := e.newOrder(sig.Pair, sig.ExitSide(), models.OrderTypeTrigger, size, stopPrice, true)
	var tp1 *models.SizedOrder
	if tp1Size > 0 {
		tp1 = e.newOrder(sig.Pair, sig.ExitSide(), models.OrderTypeTrigger, tp1Size, tp1Price, true)
	}

	if sig.Test {
		if err := e.dryRun(ctx, sig, entry, size, notional, leverage, slog); err != nil {
			return failed(err, "order preview")
		}
		return nil
	}

	if err := e.venue.SetLeverage(ctx, sig.Pair, leverage); err != nil {
		return failed(err, "set leverage")
	}

	placedEntry, err := e.venue.PlaceOrder(ctx, entry)
	if err != nil {
		metrics.OrderFailures.WithLabelValues("entry").Inc()
		return failed(err, "entry order")
	}
	slog.WithField("state", stateEntryPlaced).Infof("Entry placed: %s size %v", placedEntry.OrderID, size)
	metrics.Orders.WithLabelValues(string(entry.Type), string(entry.Side)).Inc()
	e.journalOrder(placedEntry)
	e.notifier.Notify(notify.Event{
		Kind: notify.KindEntry,
		Pair: sig.Pair,
		Details: map[string]interface{}{
			"order_id": placedEntry.OrderID,
			"side":     string(entry.Side),
			"size":     size,
			"notional": notional,
			"price":    price,
			"leverage": leverage,
		},
	})

	// Exit legs are placed best-effort: a failed leg is reported, never
	// rolled back. Partial exposure is an accepted operational risk the
	// operator has to see.
	if tp1 != nil {
		e.placeExit(ctx, "tp1", tp1, slog)
	}
	e.placeExit(ctx, "tp2", tp2, slog)
	e.placeExit(ctx, "sl", sl, slog)
	slog.WithField("state", stateExitsPlaced).Info("Exit orders placed")

	e.startMonitor(sig.Pair, sig.Direction, sig.ExitSide(), price, tp2Size)
	locked = false // position stays open until the monitor closes it

	slog.WithField("state", stateAccepted).Info("Signal accepted")
	metrics.Signals.WithLabelValues("accepted").Inc()
	return nil
}

// checkGates evaluates the admission gates in order; the first failing
// gate wins. The duplicate gate is last so the lock is only taken once
// everything else has passed.
func (e *Engine) checkGates(ctx context.Context, sig *models.Signal) *GateBlockedError {
	if !sig.Test {
		vol, err := e.venue.Volatility(ctx, sig.Pair, e.gates.VolatilityLookback, e.gates.VolatilityBarSize)
		if err != nil {
			if e.gates.VolatilityFailClosed {
				log.WithError(err).Warn("Volatility fetch failed, blocking trade (fail-closed)")
				return &GateBlockedError{Reason: ReasonVolatility, Pair: sig.Pair}
			}
			log.WithError(err).Warn("Volatility fetch failed, admitting trade (fail-open)")
		} else if vol < e.gates.VolatilityThresholdPct {
			return &GateBlockedError{Reason: ReasonVolatility, Pair: sig.Pair}
		}
	}

	if e.store.DailyLossExceeded(e.gates.DailyLossLimitPct) {
		return &GateBlockedError{Reason: ReasonDailyLoss, Pair: sig.Pair}
	}
	if e.store.InCooldown(sig.Pair) {
		return &GateBlockedError{Reason: ReasonCooldown, Pair: sig.Pair}
	}

	if sig.Test {
		if e.store.IsOpen(sig.Pair) {
			return &GateBlockedError{Reason: ReasonDuplicate, Pair: sig.Pair}
		}
		return nil
	}
	if !e.store.TryOpen(sig.Pair) {
		return &GateBlockedError{Reason: ReasonDuplicate, Pair: sig.Pair}
	}
	return nil
}

func (e *Engine) newOrder(pair string, side models.OrderSide, typ models.OrderType, size, trigger float64, reduceOnly bool) *models.SizedOrder {
	return &models.SizedOrder{
		Pair:         pair,
		Side:         side,
		Type:         typ,
		Size:         size,
		TriggerPrice: trigger,
		ReduceOnly:   reduceOnly,
		ClientOID:    uuid.NewString(),
	}
}

// placeExit places one reduce-only trigger leg, reporting failures
// individually without aborting the sequence.
func (e *Engine) placeExit(ctx context.Context, leg string, order *models.SizedOrder, slog *logrus.Entry) {
	placed, err := e.venue.PlaceOrder(ctx, order)
	if err != nil {
		slog.WithError(err).Warnf("Failed to place %s order", leg)
		metrics.OrderFailures.WithLabelValues(leg).Inc()
		e.notifier.Notify(notify.Event{
			Kind: notify.KindError,
			Pair: order.Pair,
			Details: map[string]interface{}{
				"stage": leg + " order",
				"error": err.Error(),
			},
		})
		return
	}
	metrics.Orders.WithLabelValues(string(order.Type), string(order.Side)).Inc()
	e.journalOrder(placed)
}

// dryRun echoes the constructed entry order and its signed headers
// without contacting the order endpoint.
func (e *Engine) dryRun(ctx context.Context, sig *models.Signal, entry *models.SizedOrder, size, notional float64, leverage int, slog *logrus.Entry) error {
	preview, err := e.venue.PreviewOrder(ctx, entry)
	if err != nil {
		return errors.Wrap(err, "failed to build order preview")
	}
	slog.WithField("state", stateAccepted).Info("Dry-run signal processed")
	metrics.Signals.WithLabelValues("dry_run").Inc()
	e.notifier.Notify(notify.Event{
		Kind: notify.KindDryRun,
		Pair: sig.Pair,
		Details: map[string]interface{}{
			"size":     size,
			"notional": notional,
			"leverage": leverage,
			"method":   preview.Method,
			"path":     preview.Path,
			"body":     preview.Body,
			"headers":  preview.Headers,
		},
	})
	return nil
}

func (e *Engine) journalOrder(order *models.PlacedOrder) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveOrder(order); err != nil {
		log.WithError(err).Warn("Failed to journal order")
	}
}

func (e *Engine) journalTrade(trade *models.ClosedTrade) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveTrade(trade); err != nil {
		log.WithError(err).Warn("Failed to journal trade")
	}
}
