package ws

import (
	"strconv"
	"sync"

	"derivbot/internal/models"
)

type contractUpdate struct {
	ContractID    int64      `json:"contract_id"`
	IsSold        int        `json:"is_sold"`
	IsExpired     int        `json:"is_expired"`
	IsValidToSell int        `json:"is_valid_to_sell"`
	Status        string     `json:"status"`
	Profit        looseFloat `json:"profit"`
	BuyPrice      looseFloat `json:"buy_price"`
	SellPrice     looseFloat `json:"sell_price"`
	EntrySpot     looseFloat `json:"entry_spot"`
	ExitSpot      looseFloat `json:"exit_spot"`
}

func (u contractUpdate) settled() bool {
	return u.IsSold == 1 || u.IsExpired == 1
}

// contractTracker correlates settlement pushes to the single open contract.
// Updates for any other id are ignored, which shields against duplicate or
// late pushes after settlement.
type contractTracker struct {
	mu     sync.Mutex
	openID string
}

func (t *contractTracker) Open(contractID string) {
	t.mu.Lock()
	t.openID = contractID
	t.mu.Unlock()
}

func (t *contractTracker) Pending() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openID
}

func (t *contractTracker) Clear() {
	t.mu.Lock()
	t.openID = ""
	t.mu.Unlock()
}

func (t *contractTracker) OnUpdate(update contractUpdate) (*models.Settlement, bool) {
	contractID := strconv.FormatInt(update.ContractID, 10)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.openID == "" || contractID != t.openID {
		return nil, false
	}
	if !update.settled() {
		return nil, false
	}

	t.openID = ""
	profit := float64(update.Profit)
	return &models.Settlement{
		ContractID: contractID,
		BuyPrice:   float64(update.BuyPrice),
		SellPrice:  float64(update.SellPrice),
		Profit:     profit,
		EntrySpot:  float64(update.EntrySpot),
		ExitSpot:   float64(update.ExitSpot),
		IsWin:      profit > 0,
		IsSold:     update.IsSold == 1,
	}, true
}
