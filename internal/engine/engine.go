package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"derivbot/internal/broker"
	"derivbot/internal/config"
	"derivbot/internal/logger"
	"derivbot/internal/market"
	"derivbot/internal/models"
	"derivbot/internal/risk"
	"derivbot/internal/strategy"

	"github.com/google/uuid"
)

const (
	tickInterval   = 1 * time.Second
	staleLockAfter = 5 * time.Second
)

// Engine drives the decision loop: market data in, one contract out at a
// time, every outcome through the risk manager.
type Engine struct {
	cfg       *config.Config
	client    broker.Client
	cache     *market.Cache
	risk      *risk.Manager
	strategy  strategy.Analyzer
	log       *logger.Logger
	sessionID string

	mu             sync.Mutex
	running        bool
	tradingEnabled bool
	currentSignal  *models.Signal
	lastTradeTime  time.Time

	// Single-flight lock. pendingContractID non-empty implies
	// tradeInProgress, the converse holds only after the buy returns.
	tradeInProgress   bool
	lockTime          time.Time
	pendingContractID string
	orderSignal       *models.Signal

	// Settlement push that arrived while the buy call was still in flight,
	// held until the contract id is known.
	earlySettlement *models.Settlement

	cancel context.CancelFunc
}

func New(cfg *config.Config, client broker.Client, cache *market.Cache, riskMgr *risk.Manager, analyzer strategy.Analyzer, log *logger.Logger) *Engine {
	if analyzer == nil {
		analyzer = strategy.NoSignal{}
	}
	return &Engine{
		cfg:       cfg,
		client:    client,
		cache:     cache,
		risk:      riskMgr,
		strategy:  analyzer,
		log:       log,
		sessionID: uuid.NewString(),
	}
}

// Start connects, seeds the risk manager from the account, subscribes the
// market data streams and launches the event and decision loops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("Бот уже запущен.")
	}
	e.mu.Unlock()

	e.logEntry().WithField("session_id", e.sessionID).Info("Запуск бота.")

	if err := e.client.Connect(ctx); err != nil {
		return err
	}

	account := e.client.Account()
	e.risk.SeedBalance(account.Balance)

	if e.cfg.Runtime.RestoreStateOnStart {
		if err := e.restoreState(); err != nil {
			e.logEntry().WithError(err).Warn("Не удалось восстановить состояние.")
		}
	}

	symbol := e.cfg.Trade.Symbol
	if err := e.client.SubscribeTicks(ctx, symbol); err != nil {
		_ = e.client.Close()
		return err
	}
	granularities := []int{
		e.cfg.Trade.GranularityTrigger,
		e.cfg.Trade.GranularityAlert,
		e.cfg.Trade.GranularityHigher,
	}
	for _, granularity := range granularities {
		if err := e.client.SubscribeCandles(ctx, symbol, granularity); err != nil {
			_ = e.client.Close()
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.running = true
	e.tradingEnabled = e.cfg.Runtime.TradingEnabled
	e.cancel = cancel
	e.mu.Unlock()

	go e.handleEvents(runCtx)
	go e.decisionLoop(runCtx)

	e.logEntry().Info("Бот запущен.")
	return nil
}

// Stop halts the loops, closes the connection and saves state. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.tradingEnabled = false
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	e.logEntry().Info("Остановка бота.")

	if cancel != nil {
		cancel()
	}
	if err := e.client.Close(); err != nil {
		e.logEntry().WithError(err).Warn("Ошибка при закрытии соединения.")
	}
	e.saveState()

	e.logEntry().Info("Бот остановлен.")
}

func (e *Engine) EnableTrading() {
	e.mu.Lock()
	e.tradingEnabled = true
	e.mu.Unlock()
	e.logEntry().Info("Торговля включена.")
}

func (e *Engine) DisableTrading() {
	e.mu.Lock()
	e.tradingEnabled = false
	e.mu.Unlock()
	e.logEntry().Info("Торговля выключена.")
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) TradingEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tradingEnabled
}
