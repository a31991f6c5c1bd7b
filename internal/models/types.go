package models

import "time"

type Direction string
type TradeResult string

const (
	DirectionRise Direction = "CALL"
	DirectionFall Direction = "PUT"
	DirectionNone Direction = "NONE"

	TradeResultWin  TradeResult = "win"
	TradeResultLoss TradeResult = "loss"
	TradeResultTie  TradeResult = "tie"
)

type Candle struct {
	Epoch int64   `json:"epoch"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type Tick struct {
	Symbol string  `json:"symbol"`
	Quote  float64 `json:"quote"`
	Epoch  int64   `json:"epoch"`
}

type Balance struct {
	Amount   float64 `json:"balance"`
	Currency string  `json:"currency"`
}

type Settlement struct {
	ContractID string  `json:"contract_id"`
	BuyPrice   float64 `json:"buy_price"`
	SellPrice  float64 `json:"sell_price"`
	Profit     float64 `json:"profit"`
	EntrySpot  float64 `json:"entry_spot"`
	ExitSpot   float64 `json:"exit_spot"`
	IsWin      bool    `json:"is_win"`
	IsSold     bool    `json:"is_sold"`
}

func (s Settlement) Result() TradeResult {
	switch {
	case s.Profit > 0:
		return TradeResultWin
	case s.Profit < 0:
		return TradeResultLoss
	default:
		return TradeResultTie
	}
}

type TradeRecord struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	Symbol     string      `json:"symbol"`
	Direction  Direction   `json:"direction"`
	Stake      float64     `json:"stake"`
	Payout     float64     `json:"payout"`
	Result     TradeResult `json:"result"`
	Profit     float64     `json:"profit"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  float64     `json:"exit_price"`
}

type Signal struct {
	Direction       Direction `json:"signal"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
	Price           float64   `json:"price"`
	MarketMode      string    `json:"market_mode"`
	ConfluenceNotes []string  `json:"confluence_factors"`

	TriggerConfirmed bool `json:"trigger_confirmed"`
	AlertConfirmed   bool `json:"alert_confirmed"`
	HigherConfirmed  bool `json:"higher_confirmed"`
}
