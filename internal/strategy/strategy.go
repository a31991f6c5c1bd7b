package strategy

import (
	"derivbot/internal/models"
)

// Analyzer produces a directional signal from the three timeframe windows.
// The confluence strategy itself lives outside this module, the engine only
// consumes the interface.
type Analyzer interface {
	Analyze(trigger, alert, higher []models.Candle) models.Signal
}

// NoSignal is the default analyzer when no strategy is wired in, it never
// asks the engine to trade.
type NoSignal struct{}

func (NoSignal) Analyze(trigger, alert, higher []models.Candle) models.Signal {
	sig := models.Signal{Direction: models.DirectionNone}
	if n := len(trigger); n > 0 {
		sig.Price = trigger[n-1].Close
	}
	return sig
}
