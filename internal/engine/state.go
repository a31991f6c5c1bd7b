package engine

import (
	"time"

	"derivbot/internal/broker"
	"derivbot/internal/models"
	"derivbot/internal/risk"
)

type Settings struct {
	InitialStake         float64 `json:"initial_stake"`
	RiskPercent          float64 `json:"risk_percent"`
	Duration             int     `json:"trade_duration"`
	DurationUnit         string  `json:"trade_duration_unit"`
	MinTradeInterval     int     `json:"min_trade_interval"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	LossCooldownSeconds  int     `json:"loss_cooldown_seconds"`
}

type State struct {
	SessionID       string               `json:"session_id"`
	Running         bool                 `json:"is_running"`
	TradingEnabled  bool                 `json:"is_trading_enabled"`
	Symbol          string               `json:"symbol"`
	Account         broker.Account       `json:"account"`
	Statistics      risk.Statistics      `json:"statistics"`
	CurrentSignal   *models.Signal       `json:"current_signal"`
	PendingContract string               `json:"pending_contract"`
	RecentTrades    []models.TradeRecord `json:"trade_history"`
	Settings        Settings             `json:"settings"`
}

const recentTradesLimit = 20

// GetState is the snapshot the control shell polls.
func (e *Engine) GetState() State {
	now := time.Now()

	e.mu.Lock()
	state := State{
		SessionID:       e.sessionID,
		Running:         e.running,
		TradingEnabled:  e.tradingEnabled,
		Symbol:          e.cfg.Trade.Symbol,
		PendingContract: e.pendingContractID,
	}
	if e.currentSignal != nil {
		signal := *e.currentSignal
		state.CurrentSignal = &signal
	}
	e.mu.Unlock()

	state.Account = e.client.Account()
	state.Statistics = e.risk.Statistics(now)
	state.RecentTrades = e.risk.TradeHistory(recentTradesLimit)
	state.Settings = Settings{
		InitialStake:         e.cfg.Trade.InitialStake,
		RiskPercent:          e.cfg.Trade.RiskPercent,
		Duration:             e.cfg.Trade.Duration,
		DurationUnit:         e.cfg.Trade.DurationUnit,
		MinTradeInterval:     e.cfg.Trade.MinTradeInterval,
		MaxConsecutiveLosses: e.cfg.Risk.MaxConsecutiveLosses,
		LossCooldownSeconds:  e.cfg.Risk.LossCooldownSeconds,
	}

	return state
}
