package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"derivbot/internal/broker"
	"derivbot/internal/logger"
	"derivbot/internal/market"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func New(url string, appID int, token string, cache *market.Cache, history int, log *logger.Logger) *Client {
	if history <= 0 {
		history = market.DefaultCapacity
	}
	return &Client{
		url:           url,
		appID:         appID,
		token:         token,
		log:           log,
		cache:         cache,
		history:       history,
		events:        make(chan broker.Event, 100),
		done:          make(chan struct{}),
		closing:       make(chan struct{}),
		pending:       make(map[int64]chan callResult),
		subscriptions: make(map[string]string),
		state:         StateDisconnected,
		callTimeout:   30 * time.Second,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	url := fmt.Sprintf("%s?app_id=%d", c.url, c.appID)

	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()

	c.logEntry().WithField("url", url).Info("Подключение к WS.")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("Не удалось подключиться к WS: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.conn.SetReadLimit(2 << 20)
	c.state = StateAuthorizing
	c.account.Connected = true
	c.mu.Unlock()

	go c.readLoop()

	if err := c.authorize(ctx); err != nil {
		_ = c.Close()
		return err
	}

	c.mu.Lock()
	c.state = StateReady
	c.mu.Unlock()

	c.logEntry().Info("WS соединение установлено.")

	return nil
}

func (c *Client) authorize(ctx context.Context) error {
	resp, err := c.Call(ctx, map[string]any{"authorize": c.token})
	if err != nil {
		return fmt.Errorf("Не удалось авторизоваться: %w", err)
	}

	var payload struct {
		Authorize *struct {
			Balance  looseFloat `json:"balance"`
			Currency string     `json:"currency"`
			LoginID  string     `json:"loginid"`
		} `json:"authorize"`
	}
	if err := json.Unmarshal(resp, &payload); err != nil || payload.Authorize == nil {
		return fmt.Errorf("Авторизация не удалась: нет данных аккаунта.")
	}

	c.mu.Lock()
	c.account.Authorized = true
	c.account.AccountID = payload.Authorize.LoginID
	c.account.Balance = float64(payload.Authorize.Balance)
	c.account.Currency = payload.Authorize.Currency
	if c.account.Currency == "" {
		c.account.Currency = "USD"
	}
	c.mu.Unlock()

	c.logEntry().WithFields(logrus.Fields{
		"account_id": payload.Authorize.LoginID,
		"balance":    float64(payload.Authorize.Balance),
		"currency":   c.Account().Currency,
	}).Info("Авторизация пройдена.")

	return c.subscribeBalance(ctx)
}

// Close tears the connection down and fails every pending call. Idempotent.
func (c *Client) Close() error {
	c.closingOnce.Do(func() { close(c.closing) })

	c.mu.Lock()
	c.state = StateClosing
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	} else {
		c.shutdown()
	}

	c.logEntry().Info("WS соединение закрывается.")
	return err
}

// shutdown runs once, either from the read loop exiting or from Close on a
// never-connected client.
func (c *Client) shutdown() {
	c.shutdownOnce.Do(func() {
		c.failPending(broker.ErrClosed)

		c.mu.Lock()
		c.state = StateDisconnected
		c.account.Connected = false
		c.account.Authorized = false
		c.mu.Unlock()

		close(c.events)
		close(c.done)
	})
}

func (c *Client) Events() <-chan broker.Event {
	return c.events
}

// Done is closed when the transport is gone for good.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Account() broker.Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("deriv_ws")
}
