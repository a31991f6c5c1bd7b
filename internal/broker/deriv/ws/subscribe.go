package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"derivbot/internal/models"

	"github.com/sirupsen/logrus"
)

func (c *Client) rememberSubscription(key, id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.subscriptions[key] = id
	c.mu.Unlock()
}

func (c *Client) subscribeBalance(ctx context.Context) error {
	resp, err := c.Call(ctx, map[string]any{
		"balance":   1,
		"subscribe": 1,
	})
	if err != nil {
		return fmt.Errorf("Не удалось подписаться на баланс: %w", err)
	}

	var env envelope
	_ = json.Unmarshal(resp, &env)
	if env.Subscription != nil {
		c.rememberSubscription("balance", env.Subscription.ID)
	}
	return nil
}

func (c *Client) SubscribeTicks(ctx context.Context, symbol string) error {
	resp, err := c.Call(ctx, map[string]any{
		"ticks":     symbol,
		"subscribe": 1,
	})
	if err != nil {
		return fmt.Errorf("Не удалось подписаться на тики %s: %w", symbol, err)
	}

	var env envelope
	_ = json.Unmarshal(resp, &env)
	if env.Subscription != nil {
		c.rememberSubscription("ticks_"+symbol, env.Subscription.ID)
	}

	c.logEntry().WithField("symbol", symbol).Info("Подписка на тики оформлена.")
	return nil
}

// SubscribeCandles requests the candle history and a live ohlc stream in one
// call. The history snapshot seeds the cache for its tier.
func (c *Client) SubscribeCandles(ctx context.Context, symbol string, granularity int) error {
	resp, err := c.Call(ctx, map[string]any{
		"ticks_history":     symbol,
		"adjust_start_time": 1,
		"count":             c.history,
		"end":               "latest",
		"granularity":       granularity,
		"style":             "candles",
		"subscribe":         1,
	})
	if err != nil {
		return fmt.Errorf("Не удалось подписаться на свечи %s (%ds): %w", symbol, granularity, err)
	}

	var payload struct {
		Candles []struct {
			Epoch int64      `json:"epoch"`
			Open  looseFloat `json:"open"`
			High  looseFloat `json:"high"`
			Low   looseFloat `json:"low"`
			Close looseFloat `json:"close"`
		} `json:"candles"`
		Subscription *subscription `json:"subscription"`
	}
	if err := json.Unmarshal(resp, &payload); err != nil {
		return fmt.Errorf("Не удалось разобрать историю свечей: %w", err)
	}

	tf, ok := c.cache.TimeframeFor(granularity)
	if !ok {
		return fmt.Errorf("Неизвестный таймфрейм: %ds", granularity)
	}

	candles := make([]models.Candle, 0, len(payload.Candles))
	for _, raw := range payload.Candles {
		candles = append(candles, models.Candle{
			Epoch: raw.Epoch,
			Open:  round4(float64(raw.Open)),
			High:  round4(float64(raw.High)),
			Low:   round4(float64(raw.Low)),
			Close: round4(float64(raw.Close)),
		})
	}
	c.cache.Seed(tf, candles)

	if payload.Subscription != nil {
		c.rememberSubscription(fmt.Sprintf("candles_%s_%d", symbol, granularity), payload.Subscription.ID)
	}

	c.logEntry().WithFields(logrus.Fields{
		"symbol":      symbol,
		"granularity": granularity,
		"timeframe":   tf.String(),
		"count":       len(candles),
	}).Info("История свечей получена, подписка оформлена.")

	return nil
}
