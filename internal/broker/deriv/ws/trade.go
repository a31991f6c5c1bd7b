package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"derivbot/internal/broker"
	"derivbot/internal/models"

	"github.com/sirupsen/logrus"
)

// Buy runs the two-step purchase: a proposal quote for the stake, then a buy
// referencing the quote id at exactly the quoted price. On success the
// contract is tracked and its settlement pushes are subscribed.
func (c *Client) Buy(ctx context.Context, symbol string, direction models.Direction, stake float64, duration int, durationUnit string) (broker.BuyResult, error) {
	if direction != models.DirectionRise && direction != models.DirectionFall {
		return broker.BuyResult{}, fmt.Errorf("Некорректное направление сделки: %s", direction)
	}

	currency := c.Account().Currency
	if currency == "" {
		currency = "USD"
	}

	resp, err := c.Call(ctx, map[string]any{
		"proposal":      1,
		"amount":        stake,
		"basis":         "stake",
		"contract_type": string(direction),
		"currency":      currency,
		"duration":      duration,
		"duration_unit": durationUnit,
		"symbol":        symbol,
	})
	if err != nil {
		return broker.BuyResult{}, err
	}

	var proposal struct {
		Proposal *struct {
			ID       string     `json:"id"`
			AskPrice looseFloat `json:"ask_price"`
			Payout   looseFloat `json:"payout"`
		} `json:"proposal"`
	}
	if err := json.Unmarshal(resp, &proposal); err != nil || proposal.Proposal == nil || proposal.Proposal.ID == "" {
		return broker.BuyResult{}, fmt.Errorf("Брокер не вернул котировку.")
	}

	payout := float64(proposal.Proposal.Payout)
	if payout <= 0 {
		return broker.BuyResult{}, fmt.Errorf("Котировка без выплаты, покупка отменена.")
	}

	askPrice := float64(proposal.Proposal.AskPrice)
	if askPrice > 0 && math.Abs(askPrice-stake) > 0.01 {
		return broker.BuyResult{}, fmt.Errorf("Цена котировки %.2f не совпадает со ставкой %.2f.", askPrice, stake)
	}

	c.logEntry().WithFields(logrus.Fields{
		"contract_type": string(direction),
		"stake":         stake,
		"currency":      currency,
		"payout":        payout,
	}).Info("Котировка получена.")

	buyResp, err := c.Call(ctx, map[string]any{
		"buy":   proposal.Proposal.ID,
		"price": stake,
	})
	if err != nil {
		return broker.BuyResult{}, err
	}

	var buy struct {
		Buy *struct {
			ContractID int64      `json:"contract_id"`
			BuyPrice   looseFloat `json:"buy_price"`
			StartTime  int64      `json:"start_time"`
		} `json:"buy"`
	}
	if err := json.Unmarshal(buyResp, &buy); err != nil || buy.Buy == nil || buy.Buy.ContractID == 0 {
		return broker.BuyResult{}, fmt.Errorf("Покупка контракта не удалась.")
	}

	contractID := strconv.FormatInt(buy.Buy.ContractID, 10)
	result := broker.BuyResult{
		ContractID: contractID,
		BuyPrice:   float64(buy.Buy.BuyPrice),
		Payout:     payout,
		StartTime:  buy.Buy.StartTime,
	}

	c.contracts.Open(contractID)

	c.log.WithContractID(contractID).WithFields(logrus.Fields{
		"component": "deriv_ws",
		"buy_price": result.BuyPrice,
		"payout":    payout,
	}).Info("Контракт куплен.")

	if err := c.subscribeContract(ctx, buy.Buy.ContractID); err != nil {
		// The contract is live on the broker's side, only its settlement
		// stream is missing. Surface the failure, the caller decides.
		c.contracts.Clear()
		return result, fmt.Errorf("Контракт %s куплен, но подписка на статус не удалась: %w", contractID, err)
	}

	return result, nil
}

func (c *Client) subscribeContract(ctx context.Context, contractID int64) error {
	resp, err := c.Call(ctx, map[string]any{
		"proposal_open_contract": 1,
		"contract_id":            contractID,
		"subscribe":              1,
	})
	if err != nil {
		return err
	}

	var env envelope
	_ = json.Unmarshal(resp, &env)
	if env.Subscription != nil {
		c.rememberSubscription(fmt.Sprintf("contract_%d", contractID), env.Subscription.ID)
	}
	return nil
}

// PendingContract reports the tracked open contract id, empty when none.
func (c *Client) PendingContract() string {
	return c.contracts.Pending()
}
