package risk

import (
	"time"

	"derivbot/internal/models"
)

// Snapshot is the JSON-serializable state carried across restarts.
type Snapshot struct {
	InitialBalance      float64              `json:"initial_balance"`
	CurrentBalance      float64              `json:"current_balance"`
	SessionStartBalance float64              `json:"session_start_balance"`
	ConsecutiveLosses   int                  `json:"consecutive_losses"`
	PauseUntil          time.Time            `json:"pause_until"`
	CurrentDate         string               `json:"current_date"`
	DailyTrades         []models.TradeRecord `json:"daily_trades"`
	AllTrades           []models.TradeRecord `json:"all_trades"`
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		InitialBalance:      m.initialBalance,
		CurrentBalance:      m.currentBalance,
		SessionStartBalance: m.sessionStartBalance,
		ConsecutiveLosses:   m.consecutiveLosses,
		PauseUntil:          m.pauseUntil,
		CurrentDate:         m.currentDate,
	}
	snap.DailyTrades = append(snap.DailyTrades, m.dailyTrades...)
	snap.AllTrades = append(snap.AllTrades, m.allTrades...)
	return snap
}

func (m *Manager) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.InitialBalance > 0 {
		m.initialBalance = snap.InitialBalance
	}
	if snap.CurrentBalance > 0 {
		m.currentBalance = snap.CurrentBalance
	}
	if snap.SessionStartBalance > 0 {
		m.sessionStartBalance = snap.SessionStartBalance
	}
	m.consecutiveLosses = snap.ConsecutiveLosses
	m.pauseUntil = snap.PauseUntil
	if snap.CurrentDate != "" {
		m.currentDate = snap.CurrentDate
	}
	m.dailyTrades = append([]models.TradeRecord(nil), snap.DailyTrades...)
	m.allTrades = append([]models.TradeRecord(nil), snap.AllTrades...)
}
