package engine

import (
	"context"
	"time"

	"marginbot/internal/metrics"
	"marginbot/internal/models"
	"marginbot/internal/notify"

	"github.com/sirupsen/logrus"
)

// startMonitor launches the trailing-stop watcher for the residual
// (take-profit-2) slice of a freshly opened position.
func (e *Engine) startMonitor(pair string, dir models.Direction, exitSide models.OrderSide, entryPrice, size float64) {
	e.wg.Add(1)
	go e.runMonitor(pair, dir, exitSide, entryPrice, size)
}

// runMonitor polls the last price on a fixed interval, tracking the
// running peak (long) or trough (short). Once price retraces TrailPct
// from the extreme, the residual size is closed with a reduce-only
// market order. The watcher is the only writer of loss and cooldown
// state outside the orchestrator, and goes through the store's atomic
// operations for all of it.
func (e *Engine) runMonitor(pair string, dir models.Direction, exitSide models.OrderSide, entryPrice, size float64) {
	defer e.wg.Done()

	mlog := log.WithField("pair", pair).WithField("watcher", "trailing_stop")
	mlog.Infof("Trailing-stop watcher started at entry %v, trail %.2f%%", entryPrice, e.cfg.TrailPct)

	ticker := time.NewTicker(e.cfg.ParsedPollInterval)
	defer ticker.Stop()

	extreme := entryPrice
	for {
		select {
		case <-e.stop:
			mlog.Info("Watcher stopping on engine shutdown, position left open")
			return
		case <-ticker.C:
			price, err := e.venue.LastPrice(context.Background(), pair)
			if err != nil {
				mlog.WithError(err).Warn("Price poll failed, skipping tick")
				continue
			}

			var retracePct float64
			if dir == models.DirectionShort {
				if price < extreme {
					extreme = price
				}
				retracePct = (price - extreme) / extreme * 100
			} else {
				if price > extreme {
					extreme = price
				}
				retracePct = (extreme - price) / extreme * 100
			}

			if retracePct >= e.cfg.TrailPct {
				mlog.Infof("Retrace %.2f%% from extreme %v, closing position", retracePct, extreme)
				e.closePosition(pair, dir, exitSide, entryPrice, price, size, mlog)
				return
			}
		}
	}
}

func (e *Engine) closePosition(pair string, dir models.Direction, exitSide models.OrderSide, entryPrice, exitPrice, size float64, mlog *logrus.Entry) {
	order := e.newOrder(pair, exitSide, models.OrderTypeMarket, size, 0, true)
	placed, err := e.venue.PlaceOrder(context.Background(), order)
	if err != nil {
		// The position is still open on the venue; keep the lock so no
		// new signal doubles the exposure, and page the operator.
		log.WithError(err).WithField("pair", pair).Error("Failed to place trailing-stop close order")
		metrics.OrderFailures.WithLabelValues("trailing_close").Inc()
		e.notifier.Notify(notify.Event{
			Kind: notify.KindError,
			Pair: pair,
			Details: map[string]interface{}{
				"stage": "trailing close",
				"error": err.Error(),
			},
		})
		return
	}
	metrics.Orders.WithLabelValues(string(order.Type), string(order.Side)).Inc()
	e.journalOrder(placed)

	pnlPct := (exitPrice - entryPrice) / entryPrice * 100
	if dir == models.DirectionShort {
		pnlPct = -pnlPct
	}

	result := "win"
	if pnlPct < 0 {
		result = "loss"
		e.store.RecordLoss(-pnlPct)
		e.store.StartCooldown(pair, e.gates.ParsedCooldown)
	}
	e.store.Close(pair)
	metrics.TrailingExits.WithLabelValues(result).Inc()

	e.journalTrade(&models.ClosedTrade{
		Pair:       pair,
		Side:       exitSide,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		Size:       size,
		PnlPct:     pnlPct,
		Reason:     "trailing_stop",
		ClosedAt:   time.Now(),
	})
	e.notifier.Notify(notify.Event{
		Kind: notify.KindExit,
		Pair: pair,
		Details: map[string]interface{}{
			"order_id":    placed.OrderID,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"size":        size,
			"pnl_pct":     pnlPct,
			"reason":      "trailing_stop",
		},
	})
	mlog.Infof("Position closed at %v, pnl %.2f%%", exitPrice, pnlPct)
}
