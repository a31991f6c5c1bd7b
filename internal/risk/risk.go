package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"derivbot/internal/models"
)

const minStake = 1.0

type Config struct {
	InitialStake         float64
	RiskPercent          float64
	MaxConsecutiveLosses int
	LossCooldown         time.Duration
	MaxDailyTrades       int
	MaxDailyLossPercent  float64
	MaxDailyProfitTarget float64
	MaxSessionLoss       float64
}

// Manager gates trading and sizes positions. All methods take the caller's
// clock so the daily rollover and the cooldown are checked against one
// consistent instant per decision tick.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	initialBalance      float64
	currentBalance      float64
	sessionStartBalance float64

	consecutiveLosses int
	pauseUntil        time.Time

	dailyTrades []models.TradeRecord
	allTrades   []models.TradeRecord
	currentDate string
}

func New(cfg Config, initialBalance float64) *Manager {
	return &Manager{
		cfg:                 cfg,
		initialBalance:      initialBalance,
		currentBalance:      initialBalance,
		sessionStartBalance: initialBalance,
		currentDate:         time.Now().Format(time.DateOnly),
	}
}

// rollover clears the daily ledger when the wall-clock date has advanced.
// Caller holds the mutex.
func (m *Manager) rollover(now time.Time) {
	today := now.Format(time.DateOnly)
	if today != m.currentDate {
		m.dailyTrades = nil
		m.currentDate = today
	}
}

func (m *Manager) dailyPnLLocked() float64 {
	total := 0.0
	for _, t := range m.dailyTrades {
		total += t.Profit
	}
	return total
}

// Stake returns the flat base stake, scaled by the balance ratio, capped at
// risk_percent of balance and floored at the minimum stake.
func (m *Manager) Stake(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(now)

	stake := m.cfg.InitialStake
	if m.initialBalance > 0 {
		ratio := m.currentBalance / m.initialBalance
		if ratio > 1.5 {
			stake = m.cfg.InitialStake * 1.5
		} else if ratio < 0.5 {
			stake = m.cfg.InitialStake * 0.5
		}
	}

	maxStake := m.currentBalance * m.cfg.RiskPercent / 100
	if stake > maxStake {
		stake = maxStake
	}
	if stake < minStake {
		stake = minStake
	}

	return math.Round(stake*100) / 100
}

// CanTrade evaluates the gates in fixed priority order. The reason is
// human-readable and surfaced to the control shell as is.
func (m *Manager) CanTrade(now time.Time) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(now)

	if len(m.dailyTrades) >= m.cfg.MaxDailyTrades {
		return false, fmt.Sprintf("Достигнут дневной лимит сделок (%d).", m.cfg.MaxDailyTrades)
	}

	dailyPnL := m.dailyPnLLocked()
	maxDailyLoss := m.sessionStartBalance * m.cfg.MaxDailyLossPercent / 100
	if dailyPnL < -maxDailyLoss {
		return false, fmt.Sprintf("Достигнут дневной лимит убытка (%.1f%%).", m.cfg.MaxDailyLossPercent)
	}
	if dailyPnL < -m.cfg.MaxSessionLoss {
		return false, fmt.Sprintf("Достигнут стоп-лосс сессии (%.2f).", m.cfg.MaxSessionLoss)
	}
	if dailyPnL >= m.cfg.MaxDailyProfitTarget {
		return false, fmt.Sprintf("Достигнута дневная цель по прибыли (%.2f).", m.cfg.MaxDailyProfitTarget)
	}

	if m.currentBalance < m.cfg.InitialStake {
		return false, "Недостаточно баланса для минимальной ставки."
	}

	if !m.pauseUntil.IsZero() {
		if now.Before(m.pauseUntil) {
			remaining := m.pauseUntil.Sub(now).Round(time.Second)
			return false, fmt.Sprintf("Пауза после серии убытков, осталось %s.", remaining)
		}
		// Cooldown just expired: the loss streak is forgiven.
		m.pauseUntil = time.Time{}
		m.consecutiveLosses = 0
	}

	if m.consecutiveLosses >= m.cfg.MaxConsecutiveLosses {
		return false, fmt.Sprintf("Достигнут лимит убытков подряд (%d).", m.cfg.MaxConsecutiveLosses)
	}

	return true, "OK"
}

// Record appends a settled trade to both ledgers and advances the loss streak
// and cooldown state. Ties touch neither.
func (m *Manager) Record(trade models.TradeRecord, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(now)

	m.allTrades = append(m.allTrades, trade)
	m.dailyTrades = append(m.dailyTrades, trade)
	m.currentBalance += trade.Profit

	switch trade.Result {
	case models.TradeResultWin:
		m.consecutiveLosses = 0
	case models.TradeResultLoss:
		m.consecutiveLosses++
		if m.consecutiveLosses >= m.cfg.MaxConsecutiveLosses && m.cfg.LossCooldown > 0 {
			m.pauseUntil = now.Add(m.cfg.LossCooldown)
		}
	}
}

func (m *Manager) Balance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBalance
}

// SetBalance applies a balance push from the broker.
func (m *Manager) SetBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentBalance = balance
}

// SeedBalance aligns all balance anchors with the account at session start.
func (m *Manager) SeedBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialBalance = balance
	m.currentBalance = balance
	m.sessionStartBalance = balance
}

func (m *Manager) ConsecutiveLosses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveLosses
}

// TradeHistory returns up to limit most recent trades, newest first.
func (m *Manager) TradeHistory(limit int) []models.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.allTrades)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.TradeRecord, 0, n)
	for i := len(m.allTrades) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.allTrades[i])
	}
	return out
}

// Reset clears both ledgers and the loss streak. A positive newBalance also
// re-anchors the balance.
func (m *Manager) Reset(newBalance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newBalance > 0 {
		m.initialBalance = newBalance
		m.currentBalance = newBalance
		m.sessionStartBalance = newBalance
	}
	m.consecutiveLosses = 0
	m.pauseUntil = time.Time{}
	m.dailyTrades = nil
	m.allTrades = nil
	m.currentDate = time.Now().Format(time.DateOnly)
}
