package ws

import (
	"encoding/json"
	"math"

	"derivbot/internal/broker"
	"derivbot/internal/models"

	"github.com/sirupsen/logrus"
)

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func (c *Client) handleTick(data []byte) {
	var payload struct {
		Tick struct {
			Symbol string     `json:"symbol"`
			Quote  looseFloat `json:"quote"`
			Epoch  int64      `json:"epoch"`
		} `json:"tick"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logEntry().WithError(err).Warn("Не удалось разобрать tick.")
		return
	}

	tick := models.Tick{
		Symbol: payload.Tick.Symbol,
		Quote:  round4(float64(payload.Tick.Quote)),
		Epoch:  payload.Tick.Epoch,
	}
	c.cache.SetTick(tick)

	c.emit(broker.Event{Type: broker.EventTypeTick, Tick: &tick})
}

func (c *Client) handleCandle(data []byte) {
	var payload struct {
		OHLC struct {
			Granularity int        `json:"granularity"`
			Epoch       int64      `json:"epoch"`
			OpenTime    int64      `json:"open_time"`
			Open        looseFloat `json:"open"`
			High        looseFloat `json:"high"`
			Low         looseFloat `json:"low"`
			Close       looseFloat `json:"close"`
		} `json:"ohlc"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logEntry().WithError(err).Warn("Не удалось разобрать ohlc.")
		return
	}

	granularity := payload.OHLC.Granularity
	if granularity == 0 {
		granularity = 60
	}
	tf, ok := c.cache.TimeframeFor(granularity)
	if !ok {
		c.logEntry().WithField("granularity", granularity).Debug("Свеча незнакомого таймфрейма, пропуск.")
		return
	}

	epoch := payload.OHLC.Epoch
	if epoch == 0 {
		epoch = payload.OHLC.OpenTime
	}
	candle := models.Candle{
		Epoch: epoch,
		Open:  round4(float64(payload.OHLC.Open)),
		High:  round4(float64(payload.OHLC.High)),
		Low:   round4(float64(payload.OHLC.Low)),
		Close: round4(float64(payload.OHLC.Close)),
	}

	if err := c.cache.Upsert(tf, candle); err != nil {
		// A stale candle never stops dispatch, it is dropped here.
		c.logEntry().WithError(err).Warn("Свеча отброшена.")
		return
	}

	c.emit(broker.Event{Type: broker.EventTypeCandle, Candle: &broker.CandleUpdate{
		Granularity: granularity,
		Candle:      candle,
	}})
}

func (c *Client) handleBalance(data []byte) {
	var payload struct {
		Balance struct {
			Balance  looseFloat `json:"balance"`
			Currency string     `json:"currency"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logEntry().WithError(err).Warn("Не удалось разобрать balance.")
		return
	}

	balance := models.Balance{
		Amount:   float64(payload.Balance.Balance),
		Currency: payload.Balance.Currency,
	}

	c.mu.Lock()
	c.account.Balance = balance.Amount
	if balance.Currency != "" {
		c.account.Currency = balance.Currency
	} else {
		balance.Currency = c.account.Currency
	}
	c.mu.Unlock()

	c.cache.SetBalance(balance)

	c.emit(broker.Event{Type: broker.EventTypeBalance, Balance: &balance})
}

func (c *Client) handleContractUpdate(data []byte) {
	var payload struct {
		Contract contractUpdate `json:"proposal_open_contract"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logEntry().WithError(err).Warn("Не удалось разобрать proposal_open_contract.")
		return
	}

	update := payload.Contract
	if update.ContractID == 0 {
		c.logEntry().Debug("Обновление контракта без contract_id, пропуск.")
		return
	}

	c.logEntry().WithFields(logrus.Fields{
		"contract_id":      update.ContractID,
		"is_sold":          update.IsSold,
		"is_expired":       update.IsExpired,
		"is_valid_to_sell": update.IsValidToSell,
		"status":           update.Status,
	}).Debug("Обновление контракта.")

	settlement, ok := c.contracts.OnUpdate(update)
	if !ok {
		return
	}

	c.logEntry().WithFields(logrus.Fields{
		"contract_id": settlement.ContractID,
		"profit":      settlement.Profit,
		"is_win":      settlement.IsWin,
	}).Info("Контракт рассчитан.")

	c.emit(broker.Event{Type: broker.EventTypeSettlement, Settlement: settlement})
}
