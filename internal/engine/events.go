package engine

import (
	"context"
	"time"

	"derivbot/internal/broker"
	"derivbot/internal/models"

	"github.com/sirupsen/logrus"
)

func (e *Engine) handleEvents(ctx context.Context) {
	events := e.client.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				e.onTransportLost()
				return
			}
			switch event.Type {
			case broker.EventTypeBalance:
				if event.Balance != nil {
					e.risk.SetBalance(event.Balance.Amount)
				}
			case broker.EventTypeSettlement:
				if event.Settlement != nil {
					e.onSettlement(*event.Settlement)
				}
			}
		}
	}
}

// onTransportLost stops the bot: deciding on stale data is worse than not
// deciding, and reconnecting is the operator's call.
func (e *Engine) onTransportLost() {
	e.mu.Lock()
	wasRunning := e.running
	e.mu.Unlock()
	if !wasRunning {
		return
	}

	e.logEntry().Error("Соединение с брокером потеряно, бот останавливается.")
	e.Stop()
}

// onSettlement records the outcome, attributing the direction to the signal
// that was active at order time.
func (e *Engine) onSettlement(settlement models.Settlement) {
	now := time.Now()

	e.mu.Lock()
	if e.pendingContractID == "" && e.tradeInProgress {
		// The buy call has not returned yet, hold the push until the
		// contract id is known.
		held := settlement
		e.earlySettlement = &held
		e.mu.Unlock()
		e.log.WithContractID(settlement.ContractID).WithFields(logrus.Fields{
			"component": "engine",
		}).Debug("Расчёт пришёл до завершения покупки, отложен.")
		return
	}
	if e.pendingContractID == "" || settlement.ContractID != e.pendingContractID {
		pending := e.pendingContractID
		e.mu.Unlock()
		e.log.WithContractID(settlement.ContractID).WithFields(logrus.Fields{
			"component": "engine",
			"pending":   pending,
		}).Debug("Расчёт не отслеживаемого контракта, пропуск.")
		return
	}

	direction := models.DirectionNone
	if e.orderSignal != nil {
		direction = e.orderSignal.Direction
	}
	e.pendingContractID = ""
	e.orderSignal = nil
	e.tradeInProgress = false
	e.lockTime = time.Time{}
	e.mu.Unlock()

	trade := models.TradeRecord{
		ID:         settlement.ContractID,
		Timestamp:  now,
		Symbol:     e.cfg.Trade.Symbol,
		Direction:  direction,
		Stake:      settlement.BuyPrice,
		Payout:     settlement.SellPrice,
		Result:     settlement.Result(),
		Profit:     settlement.Profit,
		EntryPrice: settlement.EntrySpot,
		ExitPrice:  settlement.ExitSpot,
	}
	e.risk.Record(trade, now)

	e.log.WithContractID(settlement.ContractID).WithFields(logrus.Fields{
		"component": "engine",
		"result":    string(trade.Result),
		"profit":    settlement.Profit,
		"balance":   e.risk.Balance(),
	}).Info("Сделка завершена, блокировка снята.")

	e.saveState()
}
