package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Broker  BrokerConfig
	Trade   TradeConfig
	Risk    RiskConfig
	Runtime RuntimeConfig
}

type BrokerConfig struct {
	WSUrl    string
	AppID    int
	ApiToken string
}

type TradeConfig struct {
	Symbol           string
	InitialStake     float64
	RiskPercent      float64
	Duration         int
	DurationUnit     string
	MinTradeInterval int

	GranularityTrigger int
	GranularityAlert   int
	GranularityHigher  int
	CandleHistory      int
}

type RiskConfig struct {
	MaxConsecutiveLosses int
	LossCooldownSeconds  int
	MaxDailyTrades       int
	MaxDailyLossPercent  float64
	MaxDailyProfitTarget float64
	MaxSessionLoss       float64
}

type RuntimeConfig struct {
	TradingEnabled      bool
	RestoreStateOnStart bool
	StateFile           string
	Log                 LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func Load() (*Config, error) {

	cfg := &Config{}
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")

	viper.SetDefault("broker.ws_url", "wss://ws.derivws.com/websockets/v3")
	viper.SetDefault("broker.app_id", 1089)
	viper.SetDefault("trade.symbol", "R_10")
	viper.SetDefault("trade.initial_stake", 10.0)
	viper.SetDefault("trade.risk_percent", 2.0)
	viper.SetDefault("trade.duration", 180)
	viper.SetDefault("trade.duration_unit", "s")
	viper.SetDefault("trade.min_trade_interval", 60)
	viper.SetDefault("trade.granularity_trigger", 60)
	viper.SetDefault("trade.granularity_alert", 300)
	viper.SetDefault("trade.granularity_higher", 900)
	viper.SetDefault("trade.candle_history", 250)
	viper.SetDefault("risk.max_consecutive_losses", 3)
	viper.SetDefault("risk.loss_cooldown_seconds", 600)
	viper.SetDefault("risk.max_daily_trades", 1000)
	viper.SetDefault("risk.max_daily_loss_percent", 10.0)
	viper.SetDefault("risk.max_daily_profit_target", 200.0)
	viper.SetDefault("risk.max_session_loss", 100.0)
	viper.SetDefault("runtime.state_file", "data/state.json")

	viper.ReadInConfig()

	cfg.Broker = BrokerConfig{
		WSUrl:    viper.GetString("broker.ws_url"),
		AppID:    viper.GetInt("broker.app_id"),
		ApiToken: envSub("broker.api_token"),
	}

	cfg.Trade = TradeConfig{
		Symbol:             viper.GetString("trade.symbol"),
		InitialStake:       viper.GetFloat64("trade.initial_stake"),
		RiskPercent:        viper.GetFloat64("trade.risk_percent"),
		Duration:           viper.GetInt("trade.duration"),
		DurationUnit:       viper.GetString("trade.duration_unit"),
		MinTradeInterval:   viper.GetInt("trade.min_trade_interval"),
		GranularityTrigger: viper.GetInt("trade.granularity_trigger"),
		GranularityAlert:   viper.GetInt("trade.granularity_alert"),
		GranularityHigher:  viper.GetInt("trade.granularity_higher"),
		CandleHistory:      viper.GetInt("trade.candle_history"),
	}

	cfg.Risk = RiskConfig{
		MaxConsecutiveLosses: viper.GetInt("risk.max_consecutive_losses"),
		LossCooldownSeconds:  viper.GetInt("risk.loss_cooldown_seconds"),
		MaxDailyTrades:       viper.GetInt("risk.max_daily_trades"),
		MaxDailyLossPercent:  viper.GetFloat64("risk.max_daily_loss_percent"),
		MaxDailyProfitTarget: viper.GetFloat64("risk.max_daily_profit_target"),
		MaxSessionLoss:       viper.GetFloat64("risk.max_session_loss"),
	}

	cfg.Runtime = RuntimeConfig{
		TradingEnabled:      viper.GetBool("runtime.trading_enabled"),
		RestoreStateOnStart: viper.GetBool("runtime.restore_state_on_start"),
		StateFile:           viper.GetString("runtime.state_file"),
		Log: LogConfig{
			Level:      viper.GetString("runtime.log.level"),
			Format:     viper.GetString("runtime.log.format"),
			File:       viper.GetString("runtime.log.file"),
			MaxSize:    viper.GetInt("runtime.log.max_size"),
			MaxBackups: viper.GetInt("runtime.log.max_backups"),
			MaxAge:     viper.GetInt("runtime.log.max_age"),
			Compress:   viper.GetBool("runtime.log.compress"),
		},
	}

	return cfg, nil
}

func envSub(key string) string {
	val := viper.GetString(key)
	if val == "" {
		return ""
	}

	re := regexp.MustCompile(`\$\{(\w+)\}`)
	return re.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
