// Package deriv wires the websocket client to the broker.Client interface.
package deriv

import (
	"derivbot/internal/broker"
	"derivbot/internal/broker/deriv/ws"
	"derivbot/internal/logger"
	"derivbot/internal/market"
)

func New(url string, appID int, token string, cache *market.Cache, history int, log *logger.Logger) broker.Client {
	return ws.New(url, appID, token, cache, history, log)
}
