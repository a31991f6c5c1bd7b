package broker

import (
	"context"

	"derivbot/internal/models"
)

type EventType string

const (
	EventTypeTick       EventType = "Tick"
	EventTypeCandle     EventType = "Candle"
	EventTypeBalance    EventType = "Balance"
	EventTypeSettlement EventType = "Settlement"
)

type CandleUpdate struct {
	Granularity int
	Candle      models.Candle
}

type Event struct {
	Type       EventType
	Tick       *models.Tick
	Candle     *CandleUpdate
	Balance    *models.Balance
	Settlement *models.Settlement
}

type Account struct {
	Connected  bool    `json:"connected"`
	Authorized bool    `json:"authorized"`
	AccountID  string  `json:"account_id"`
	Balance    float64 `json:"balance"`
	Currency   string  `json:"currency"`
}

type BuyResult struct {
	ContractID string  `json:"contract_id"`
	BuyPrice   float64 `json:"fill_price"`
	Payout     float64 `json:"payout"`
	StartTime  int64   `json:"start_time"`
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	Events() <-chan Event
	Done() <-chan struct{}
	Account() Account
	SubscribeTicks(ctx context.Context, symbol string) error
	SubscribeCandles(ctx context.Context, symbol string, granularity int) error
	Buy(ctx context.Context, symbol string, direction models.Direction, stake float64, duration int, durationUnit string) (BuyResult, error)
}
