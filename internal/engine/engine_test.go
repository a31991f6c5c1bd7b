package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"derivbot/internal/broker"
	"derivbot/internal/config"
	"derivbot/internal/logger"
	"derivbot/internal/market"
	"derivbot/internal/models"
	"derivbot/internal/risk"

	"github.com/stretchr/testify/require"
)

type stubClient struct {
	mu        sync.Mutex
	buyCalls  int
	buyErr    error
	buyResult broker.BuyResult
	closed    bool

	// onBuy runs after the purchase is accepted but before it returns,
	// the window where a settlement push can race the caller.
	onBuy func()

	events chan broker.Event
	done   chan struct{}
}

func newStubClient() *stubClient {
	return &stubClient{
		buyResult: broker.BuyResult{ContractID: "c-1", BuyPrice: 10, Payout: 19.5},
		events:    make(chan broker.Event, 10),
		done:      make(chan struct{}),
	}
}

func (s *stubClient) Connect(ctx context.Context) error { return nil }

func (s *stubClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubClient) Events() <-chan broker.Event { return s.events }
func (s *stubClient) Done() <-chan struct{}       { return s.done }

func (s *stubClient) Account() broker.Account {
	return broker.Account{Connected: true, Authorized: true, Balance: 1000, Currency: "USD"}
}

func (s *stubClient) SubscribeTicks(ctx context.Context, symbol string) error { return nil }

func (s *stubClient) SubscribeCandles(ctx context.Context, symbol string, granularity int) error {
	return nil
}

func (s *stubClient) Buy(ctx context.Context, symbol string, direction models.Direction, stake float64, duration int, durationUnit string) (broker.BuyResult, error) {
	s.mu.Lock()
	s.buyCalls++
	err := s.buyErr
	result := s.buyResult
	hook := s.onBuy
	s.mu.Unlock()

	if err != nil {
		return broker.BuyResult{}, err
	}
	if hook != nil {
		hook()
	}
	return result, nil
}

func (s *stubClient) BuyCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buyCalls
}

type stubAnalyzer struct {
	signal models.Signal
}

func (a stubAnalyzer) Analyze(trigger, alert, higher []models.Candle) models.Signal {
	return a.signal
}

func riseSignal() models.Signal {
	return models.Signal{
		Direction:  models.DirectionRise,
		Confidence: 0.8,
		Timestamp:  time.Now(),
		Price:      6543.21,
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Trade: config.TradeConfig{
			Symbol:             "R_10",
			InitialStake:       10,
			RiskPercent:        2,
			Duration:           180,
			DurationUnit:       "s",
			MinTradeInterval:   0,
			GranularityTrigger: 60,
			GranularityAlert:   300,
			GranularityHigher:  900,
			CandleHistory:      250,
		},
		Runtime: config.RuntimeConfig{
			StateFile: t.TempDir() + "/state.json",
		},
	}
}

func testRisk(balance float64) *risk.Manager {
	return risk.New(risk.Config{
		InitialStake:         10,
		RiskPercent:          2,
		MaxConsecutiveLosses: 3,
		LossCooldown:         10 * time.Minute,
		MaxDailyTrades:       1000,
		MaxDailyLossPercent:  10,
		MaxDailyProfitTarget: 200,
		MaxSessionLoss:       100,
	}, balance)
}

func seededCache() *market.Cache {
	cache := market.NewCache(60, 300, 900, 250)
	candle := models.Candle{Epoch: 1700000000, Open: 1, High: 2, Low: 0.5, Close: 1.5}
	for _, tf := range []market.Timeframe{market.Trigger, market.Alert, market.Higher} {
		cache.Seed(tf, []models.Candle{candle})
	}
	return cache
}

func newTestEngine(t *testing.T, client *stubClient, signal models.Signal) *Engine {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	e := New(testConfig(t), client, seededCache(), testRisk(1000), stubAnalyzer{signal: signal}, log)
	e.mu.Lock()
	e.running = true
	e.tradingEnabled = true
	e.mu.Unlock()
	return e
}

func TestTickBuysOnceWhileContractPending(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 1, client.BuyCalls())

	e.mu.Lock()
	require.Equal(t, "c-1", e.pendingContractID)
	require.True(t, e.tradeInProgress)
	e.mu.Unlock()

	// The next qualifying ticks must not buy until the contract settles.
	require.NoError(t, e.tick(context.Background()))
	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 1, client.BuyCalls())
}

func TestTickNoSignalNoTrade(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, models.Signal{Direction: models.DirectionNone})

	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 0, client.BuyCalls())

	// The signal is still published for observation.
	e.mu.Lock()
	require.NotNil(t, e.currentSignal)
	e.mu.Unlock()
}

func TestTickTradingDisabled(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())
	e.DisableTrading()

	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 0, client.BuyCalls())
}

func TestTickBlockedByRiskGate(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	now := time.Now()
	for i := 0; i < 3; i++ {
		e.risk.Record(models.TradeRecord{Result: models.TradeResultLoss, Profit: -10}, now)
	}

	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 0, client.BuyCalls())
}

func TestTickMinTradeInterval(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())
	e.cfg.Trade.MinTradeInterval = 60

	e.mu.Lock()
	e.lastTradeTime = time.Now()
	e.mu.Unlock()

	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 0, client.BuyCalls())
}

func TestStaleLockReclaimed(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	// A lock with no contract id older than the threshold is a crashed buy.
	e.mu.Lock()
	e.tradeInProgress = true
	e.lockTime = time.Now().Add(-10 * time.Second)
	e.mu.Unlock()

	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 1, client.BuyCalls())
}

func TestFreshLockNotReclaimed(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	e.mu.Lock()
	e.tradeInProgress = true
	e.lockTime = time.Now()
	e.mu.Unlock()

	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 0, client.BuyCalls())
}

func TestLockWithPendingContractNeverReclaimed(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	e.mu.Lock()
	e.tradeInProgress = true
	e.pendingContractID = "c-old"
	e.lockTime = time.Now().Add(-time.Hour)
	e.mu.Unlock()

	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 0, client.BuyCalls())
}

func TestBuyFailureReleasesLock(t *testing.T) {
	client := newStubClient()
	client.buyErr = errors.New("отказ брокера")
	e := newTestEngine(t, client, riseSignal())

	require.Error(t, e.tick(context.Background()))
	require.Equal(t, 1, client.BuyCalls())

	e.mu.Lock()
	require.False(t, e.tradeInProgress)
	require.Empty(t, e.pendingContractID)
	e.mu.Unlock()

	// The loop recovers on the next tick once the broker answers.
	client.mu.Lock()
	client.buyErr = nil
	client.mu.Unlock()
	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 2, client.BuyCalls())
}

func TestSettlementRecordsTradeAndReleasesLock(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 1, client.BuyCalls())

	e.onSettlement(models.Settlement{
		ContractID: "c-1",
		BuyPrice:   10,
		SellPrice:  19.5,
		Profit:     9.5,
		IsWin:      true,
		IsSold:     true,
	})

	history := e.risk.TradeHistory(10)
	require.Len(t, history, 1)
	require.Equal(t, models.TradeResultWin, history[0].Result)
	require.Equal(t, models.DirectionRise, history[0].Direction)
	require.Equal(t, 9.5, history[0].Profit)

	e.mu.Lock()
	require.False(t, e.tradeInProgress)
	require.Empty(t, e.pendingContractID)
	require.Nil(t, e.orderSignal)
	e.mu.Unlock()

	// The lock is free, the next signal trades again.
	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 2, client.BuyCalls())
}

func TestSettlementOfForeignContractIgnored(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	require.NoError(t, e.tick(context.Background()))

	e.onSettlement(models.Settlement{ContractID: "c-other", Profit: -10})

	require.Empty(t, e.risk.TradeHistory(10))
	e.mu.Lock()
	require.Equal(t, "c-1", e.pendingContractID)
	e.mu.Unlock()
}

func TestManualTradeSharesLock(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, models.Signal{Direction: models.DirectionNone})

	result, err := e.ManualTrade(context.Background(), models.DirectionFall)
	require.NoError(t, err)
	require.Equal(t, "c-1", result.ContractID)

	_, err = e.ManualTrade(context.Background(), models.DirectionFall)
	require.Error(t, err)
	require.Equal(t, 1, client.BuyCalls())

	// The decision loop is blocked by the same lock.
	e.mu.Lock()
	e.currentSignal = nil
	e.mu.Unlock()
	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 1, client.BuyCalls())

	e.onSettlement(models.Settlement{ContractID: "c-1", Profit: -10})
	history := e.risk.TradeHistory(1)
	require.Len(t, history, 1)
	require.Equal(t, models.DirectionFall, history[0].Direction)
}

func TestManualTradeRejectsBadDirection(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, models.Signal{Direction: models.DirectionNone})

	_, err := e.ManualTrade(context.Background(), models.DirectionNone)
	require.Error(t, err)
	require.Equal(t, 0, client.BuyCalls())
}

func TestTransportLossStopsBot(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	e.onTransportLost()

	require.False(t, e.IsRunning())
	require.False(t, e.TradingEnabled())
	client.mu.Lock()
	require.True(t, client.closed)
	client.mu.Unlock()

	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 0, client.BuyCalls())
}

func TestSettlementHeldUntilBuyReturns(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	// The push lands while executeTrade is still inside Buy: pending id is
	// empty, the lock is held. It must be kept, not dropped.
	client.onBuy = func() {
		e.onSettlement(models.Settlement{
			ContractID: "c-1",
			BuyPrice:   10,
			SellPrice:  19.5,
			Profit:     9.5,
			IsWin:      true,
			IsSold:     true,
		})
	}

	require.NoError(t, e.tick(context.Background()))

	history := e.risk.TradeHistory(10)
	require.Len(t, history, 1)
	require.Equal(t, models.TradeResultWin, history[0].Result)
	require.Equal(t, models.DirectionRise, history[0].Direction)

	e.mu.Lock()
	require.False(t, e.tradeInProgress)
	require.Empty(t, e.pendingContractID)
	require.Nil(t, e.earlySettlement)
	e.mu.Unlock()
}

func TestEarlySettlementOfForeignContractDiscarded(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	client.onBuy = func() {
		e.onSettlement(models.Settlement{ContractID: "c-other", Profit: -10})
	}

	require.NoError(t, e.tick(context.Background()))

	require.Empty(t, e.risk.TradeHistory(10))
	e.mu.Lock()
	require.Equal(t, "c-1", e.pendingContractID)
	require.Nil(t, e.earlySettlement)
	e.mu.Unlock()
}

func TestSettlementUsesOrderTimeSignal(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 1, client.BuyCalls())

	// The market turns while the contract runs, the published signal flips.
	fall := riseSignal()
	fall.Direction = models.DirectionFall
	e.strategy = stubAnalyzer{signal: fall}
	require.NoError(t, e.tick(context.Background()))
	require.Equal(t, 1, client.BuyCalls())

	e.mu.Lock()
	require.Equal(t, models.DirectionFall, e.currentSignal.Direction)
	e.mu.Unlock()

	e.onSettlement(models.Settlement{
		ContractID: "c-1",
		BuyPrice:   10,
		SellPrice:  0,
		Profit:     -10,
		IsSold:     true,
	})

	history := e.risk.TradeHistory(1)
	require.Len(t, history, 1)
	require.Equal(t, models.DirectionRise, history[0].Direction)
}

func TestSessionIDStampedIntoStateFile(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	state := e.GetState()
	require.NotEmpty(t, state.SessionID)

	e.saveState()
	data, err := os.ReadFile(e.cfg.Runtime.StateFile)
	require.NoError(t, err)

	var persisted persistedState
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Equal(t, state.SessionID, persisted.SessionID)
	require.False(t, persisted.SavedAt.IsZero())
}

func TestGetStateSnapshot(t *testing.T) {
	client := newStubClient()
	e := newTestEngine(t, client, riseSignal())

	require.NoError(t, e.tick(context.Background()))
	state := e.GetState()

	require.True(t, state.Running)
	require.True(t, state.TradingEnabled)
	require.NotNil(t, state.CurrentSignal)
	require.Equal(t, models.DirectionRise, state.CurrentSignal.Direction)
}
