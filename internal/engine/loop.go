package engine

import (
	"context"
	"time"

	"derivbot/internal/market"
	"derivbot/internal/models"
)

func (e *Engine) decisionLoop(ctx context.Context) {
	e.logEntry().Debug("Цикл решений запущен.")

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.safeTick(ctx)
		}
	}
}

// safeTick swallows everything: one bad tick never terminates the loop.
func (e *Engine) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logEntry().WithField("panic", r).Error("Паника в цикле решений.")
		}
	}()

	if err := e.tick(ctx); err != nil {
		e.logEntry().WithError(err).Error("Ошибка в цикле решений.")
	}
}

func (e *Engine) tick(ctx context.Context) error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return nil
	}

	account := e.client.Account()
	if !account.Authorized {
		return nil
	}

	trigger := e.cache.Window(market.Trigger)
	alert := e.cache.Window(market.Alert)
	higher := e.cache.Window(market.Higher)
	// Too few candles is not an error, just no signal this tick.
	if len(trigger) == 0 || len(alert) == 0 || len(higher) == 0 {
		return nil
	}

	signal := e.strategy.Analyze(trigger, alert, higher)
	now := time.Now()

	e.mu.Lock()
	e.currentSignal = &signal
	enabled := e.tradingEnabled
	e.mu.Unlock()

	if !enabled {
		return nil
	}
	if signal.Direction == models.DirectionNone {
		return nil
	}

	if allowed, reason := e.risk.CanTrade(now); !allowed {
		e.logEntry().WithField("reason", reason).Debug("Сделка запрещена риск-менеджером.")
		return nil
	}

	e.mu.Lock()

	if !e.lastTradeTime.IsZero() {
		elapsed := now.Sub(e.lastTradeTime)
		if elapsed < time.Duration(e.cfg.Trade.MinTradeInterval)*time.Second {
			e.mu.Unlock()
			return nil
		}
	}

	// A lock with no contract id and no buy call that managed to finish is
	// a crash inside the buy window, reclaim it after the threshold.
	if e.tradeInProgress && e.pendingContractID == "" && !e.lockTime.IsZero() && now.Sub(e.lockTime) > staleLockAfter {
		e.logEntry().WithField("lock_age", now.Sub(e.lockTime).String()).Warn("Зависшая блокировка сделки, сброс.")
		e.tradeInProgress = false
		e.lockTime = time.Time{}
		e.earlySettlement = nil
	}

	if e.tradeInProgress || e.pendingContractID != "" {
		e.mu.Unlock()
		e.logEntry().Debug("Сделка уже выполняется, пропуск такта.")
		return nil
	}

	e.tradeInProgress = true
	e.lockTime = now
	e.mu.Unlock()

	return e.executeTrade(ctx, signal)
}
