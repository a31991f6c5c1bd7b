package risk

import (
	"math"
	"time"

	"derivbot/internal/models"
)

type Statistics struct {
	TotalTrades       int     `json:"total_trades"`
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	WinRate           float64 `json:"win_rate"`
	TotalProfit       float64 `json:"total_profit"`
	ProfitFactor      float64 `json:"profit_factor"`
	Expectancy        float64 `json:"expectancy"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	CurrentBalance    float64 `json:"current_balance"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	CooldownRemaining float64 `json:"cooldown_remaining"`
	DailyTrades       int     `json:"daily_trades"`
	DailyPnL          float64 `json:"daily_pnl"`
}

// Statistics replays the all-time ledger for the aggregate figures. The
// profit factor reports 0 when no losses are recorded, never infinity.
func (m *Manager) Statistics(now time.Time) Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(now)

	stats := Statistics{
		CurrentBalance:    round2(m.currentBalance),
		ConsecutiveLosses: m.consecutiveLosses,
		DailyTrades:       len(m.dailyTrades),
		DailyPnL:          round2(m.dailyPnLLocked()),
	}
	if !m.pauseUntil.IsZero() && now.Before(m.pauseUntil) {
		stats.CooldownRemaining = m.pauseUntil.Sub(now).Seconds()
	}

	total := len(m.allTrades)
	if total == 0 {
		return stats
	}
	stats.TotalTrades = total

	var grossWins, grossLosses, totalProfit float64
	for _, t := range m.allTrades {
		totalProfit += t.Profit
		switch t.Result {
		case models.TradeResultWin:
			stats.Wins++
		case models.TradeResultLoss:
			stats.Losses++
		}
		if t.Profit > 0 {
			grossWins += t.Profit
		} else if t.Profit < 0 {
			grossLosses += -t.Profit
		}
	}

	stats.WinRate = round2(float64(stats.Wins) / float64(total) * 100)
	stats.TotalProfit = round2(totalProfit)
	if grossLosses > 0 {
		stats.ProfitFactor = round2(grossWins / grossLosses)
	}
	stats.Expectancy = round2(totalProfit / float64(total))
	stats.MaxDrawdown = round2(m.maxDrawdownLocked())

	return stats
}

// maxDrawdownLocked is the worst peak-to-trough drop of the running balance
// curve, in percent of the peak.
func (m *Manager) maxDrawdownLocked() float64 {
	peak := m.initialBalance
	running := m.initialBalance
	maxDD := 0.0
	for _, t := range m.allTrades {
		running += t.Profit
		if running > peak {
			peak = running
		}
		if peak > 0 {
			dd := (peak - running) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
