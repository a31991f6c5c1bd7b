package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"derivbot/internal/broker"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Call stamps the next req_id into the payload, sends it and suspends until
// the reply bearing the same id arrives, an API error for it arrives, or the
// deadline elapses. A late reply for a timed-out id is dropped, ids are never
// reused.
func (c *Client) Call(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	state := c.state
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || (state != StateReady && state != StateAuthorizing) {
		return nil, broker.ErrNotConnected
	}

	c.pendingMu.Lock()
	c.reqID++
	id := c.reqID
	ch := make(chan callResult, 1)
	c.pending[id] = ch
	c.pendingMu.Unlock()

	payload["req_id"] = id
	data, err := json.Marshal(payload)
	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("Не удалось подготовить запрос: %w", err)
	}

	key := requestKey(payload)
	c.logEntry().WithFields(logrus.Fields{
		"req_id":  id,
		"request": key,
	}).Debug("Запрос отправлен.")

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("Не удалось отправить запрос %s: %w", key, err)
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		c.logEntry().WithFields(logrus.Fields{
			"req_id":  id,
			"request": key,
		}).Debug("Получен ответ.")
		return res.data, nil
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case <-timer.C:
		c.dropPending(id)
		c.logEntry().WithFields(logrus.Fields{
			"req_id":  id,
			"request": key,
		}).Warn("Ответ не получен вовремя.")
		return nil, fmt.Errorf("Запрос %s (req_id=%d): %w", key, id, broker.ErrTimeout)
	}
}

func (c *Client) dropPending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// resolvePending completes at most one waiter, duplicates and late replies
// fall through.
func (c *Client) resolvePending(id int64, data json.RawMessage, err error) bool {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		return false
	}
	ch <- callResult{data: data, err: err}
	return true
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- callResult{err: err}
	}
	c.pendingMu.Unlock()
}
