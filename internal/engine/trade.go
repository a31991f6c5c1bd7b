package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"derivbot/internal/broker"
	"derivbot/internal/models"

	"github.com/sirupsen/logrus"
)

// executeTrade runs with the single-flight lock already held and releases it
// on failure.
func (e *Engine) executeTrade(ctx context.Context, signal models.Signal) error {
	now := time.Now()
	stake := e.risk.Stake(now)

	e.logEntry().WithFields(logrus.Fields{
		"direction":  string(signal.Direction),
		"stake":      stake,
		"confidence": signal.Confidence,
		"confluence": strings.Join(signal.ConfluenceNotes, ", "),
	}).Info("Исполнение сделки по сигналу.")

	result, err := e.client.Buy(ctx, e.cfg.Trade.Symbol, signal.Direction, stake,
		e.cfg.Trade.Duration, e.cfg.Trade.DurationUnit)
	if err != nil {
		e.mu.Lock()
		e.tradeInProgress = false
		e.lockTime = time.Time{}
		e.earlySettlement = nil
		e.mu.Unlock()
		return fmt.Errorf("Не удалось исполнить сделку: %w", err)
	}

	e.mu.Lock()
	e.pendingContractID = result.ContractID
	ordered := signal
	e.orderSignal = &ordered
	e.lastTradeTime = time.Now()
	held := e.takeEarlySettlementLocked(result.ContractID)
	e.mu.Unlock()

	e.log.WithContractID(result.ContractID).WithFields(logrus.Fields{
		"component": "engine",
		"payout":    result.Payout,
		"stake":     stake,
	}).Info("Контракт куплен, ожидание расчёта.")

	if held != nil {
		e.onSettlement(*held)
	}

	return nil
}

// takeEarlySettlementLocked hands back a settlement that raced the buy call,
// anything for another contract is discarded. Caller holds the mutex.
func (e *Engine) takeEarlySettlementLocked(contractID string) *models.Settlement {
	held := e.earlySettlement
	e.earlySettlement = nil
	if held == nil || held.ContractID != contractID {
		return nil
	}
	return held
}

// ManualTrade bypasses the decision loop but not the risk gate and not the
// single-flight lock.
func (e *Engine) ManualTrade(ctx context.Context, direction models.Direction) (broker.BuyResult, error) {
	if direction != models.DirectionRise && direction != models.DirectionFall {
		return broker.BuyResult{}, fmt.Errorf("Некорректное направление сделки: %s", direction)
	}

	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return broker.BuyResult{}, fmt.Errorf("Бот не запущен.")
	}

	account := e.client.Account()
	if !account.Authorized {
		return broker.BuyResult{}, broker.ErrNotConnected
	}

	now := time.Now()
	if allowed, reason := e.risk.CanTrade(now); !allowed {
		return broker.BuyResult{}, fmt.Errorf("Сделка запрещена: %s", reason)
	}

	e.mu.Lock()
	if e.tradeInProgress || e.pendingContractID != "" {
		e.mu.Unlock()
		return broker.BuyResult{}, fmt.Errorf("Сделка уже выполняется.")
	}
	e.tradeInProgress = true
	e.lockTime = now
	e.mu.Unlock()

	stake := e.risk.Stake(now)

	e.logEntry().WithFields(logrus.Fields{
		"direction": string(direction),
		"stake":     stake,
	}).Info("Ручная сделка.")

	result, err := e.client.Buy(ctx, e.cfg.Trade.Symbol, direction, stake,
		e.cfg.Trade.Duration, e.cfg.Trade.DurationUnit)
	if err != nil {
		e.mu.Lock()
		e.tradeInProgress = false
		e.lockTime = time.Time{}
		e.earlySettlement = nil
		e.mu.Unlock()
		return broker.BuyResult{}, err
	}

	e.mu.Lock()
	e.pendingContractID = result.ContractID
	e.orderSignal = &models.Signal{
		Direction:  direction,
		Timestamp:  now,
		MarketMode: "manual",
	}
	e.lastTradeTime = time.Now()
	held := e.takeEarlySettlementLocked(result.ContractID)
	e.mu.Unlock()

	if held != nil {
		e.onSettlement(*held)
	}

	return result, nil
}
