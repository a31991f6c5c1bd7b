package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"derivbot/internal/broker/deriv"
	"derivbot/internal/config"
	"derivbot/internal/engine"
	"derivbot/internal/logger"
	"derivbot/internal/market"
	"derivbot/internal/risk"
	"derivbot/internal/strategy"

	"github.com/joho/godotenv"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	logger.Info("Бот запущен.")

	cache := market.NewCache(
		cfg.Trade.GranularityTrigger,
		cfg.Trade.GranularityAlert,
		cfg.Trade.GranularityHigher,
		cfg.Trade.CandleHistory,
	)
	client := deriv.New(cfg.Broker.WSUrl, cfg.Broker.AppID, cfg.Broker.ApiToken, cache, cfg.Trade.CandleHistory, logger)
	riskMgr := risk.New(risk.Config{
		InitialStake:         cfg.Trade.InitialStake,
		RiskPercent:          cfg.Trade.RiskPercent,
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
		LossCooldown:         time.Duration(cfg.Risk.LossCooldownSeconds) * time.Second,
		MaxDailyTrades:       cfg.Risk.MaxDailyTrades,
		MaxDailyLossPercent:  cfg.Risk.MaxDailyLossPercent,
		MaxDailyProfitTarget: cfg.Risk.MaxDailyProfitTarget,
		MaxSessionLoss:       cfg.Risk.MaxSessionLoss,
	}, 0)

	eng := engine.New(cfg, client, cache, riskMgr, strategy.NoSignal{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Не удалось запустить бота.")
	}

	select {
	case <-sigCh:
	case <-client.Done():
	}

	eng.Stop()
	logger.Info("Бот остановлен.")
}
