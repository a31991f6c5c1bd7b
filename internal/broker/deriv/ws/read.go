package ws

import (
	"encoding/json"

	"derivbot/internal/broker"

	"github.com/sirupsen/logrus"
)

func (c *Client) readLoop() {
	c.logEntry().Debug("readLoop запущен.")
	defer c.shutdown()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.state == StateClosing
			c.mu.Unlock()
			if closing {
				return
			}
			c.logEntry().WithError(err).Warn("Ошибка чтения WS, соединение потеряно.")
			return
		}

		c.processMessage(data)
	}
}

// processMessage checks the two dispatch tables in order: pending calls by
// req_id first, then push streams by msg_type.
func (c *Client) processMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logEntry().WithError(err).Warn("Не удалось разобрать WS сообщение.")
		return
	}

	reqID, hasID := parseReqID(env.ReqID)

	if env.Error != nil {
		c.logEntry().WithFields(logrus.Fields{
			"req_id":  reqID,
			"code":    env.Error.Code,
			"message": env.Error.Message,
		}).Error("Брокер вернул ошибку.")
		if hasID {
			c.resolvePending(reqID, nil, &broker.APIError{Code: env.Error.Code, Message: env.Error.Message})
		}
		return
	}

	if hasID {
		if c.resolvePending(reqID, data, nil) {
			c.logEntry().WithFields(logrus.Fields{
				"req_id":   reqID,
				"msg_type": env.MsgType,
			}).Debug("Ответ сопоставлен с запросом.")
		}
	}

	switch env.MsgType {
	case "tick":
		c.handleTick(data)
	case "ohlc":
		c.handleCandle(data)
	case "balance":
		c.handleBalance(data)
	case "proposal_open_contract":
		c.handleContractUpdate(data)
	}
}

// emit never drops a settlement: losing one wedges the execution lock, so
// that type waits for the consumer (or for Close). Everything else yields to
// a full channel, a slow consumer costs ticks, not money.
func (c *Client) emit(ev broker.Event) {
	if ev.Type == broker.EventTypeSettlement {
		select {
		case c.events <- ev:
		case <-c.closing:
			c.logEntry().WithField("type", string(ev.Type)).Warn("Соединение закрывается, событие отброшено.")
		}
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logEntry().WithField("type", string(ev.Type)).Warn("Канал событий переполнен, событие отброшено.")
	}
}
