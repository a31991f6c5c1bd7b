package ws

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"derivbot/internal/broker"
	"derivbot/internal/logger"
	"derivbot/internal/market"

	"github.com/gorilla/websocket"
)

type ConnState string

const (
	StateDisconnected ConnState = "Disconnected"
	StateConnecting   ConnState = "Connecting"
	StateAuthorizing  ConnState = "Authorizing"
	StateReady        ConnState = "Ready"
	StateClosing      ConnState = "Closing"
)

type Client struct {
	url     string
	appID   int
	token   string
	log     *logger.Logger
	cache   *market.Cache
	history int

	conn    *websocket.Conn
	writeMu sync.Mutex

	events       chan broker.Event
	done         chan struct{}
	closing      chan struct{}
	closingOnce  sync.Once
	shutdownOnce sync.Once

	pendingMu sync.Mutex
	pending   map[int64]chan callResult
	reqID     int64

	mu            sync.Mutex
	state         ConnState
	account       broker.Account
	subscriptions map[string]string

	contracts contractTracker

	callTimeout time.Duration
}

type callResult struct {
	data json.RawMessage
	err  error
}

// envelope is the part of every server message the dispatcher needs: the
// type tag, the echoed req_id and a possible error block.
type envelope struct {
	MsgType      string          `json:"msg_type"`
	ReqID        json.RawMessage `json:"req_id"`
	Error        *errorPayload   `json:"error"`
	Subscription *subscription   `json:"subscription"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type subscription struct {
	ID string `json:"id"`
}

// parseReqID tolerates both numeric and string req_id, the server may echo
// either.
func parseReqID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// looseFloat parses a JSON number that some streams send quoted.
type looseFloat float64

func (f *looseFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = looseFloat(v)
	return nil
}

// requestKey names a request for logging, the way the payload identifies
// itself on the wire.
func requestKey(payload map[string]any) string {
	for _, key := range []string{
		"authorize", "balance", "ticks", "ticks_history",
		"proposal_open_contract", "proposal", "buy",
	} {
		if _, ok := payload[key]; ok {
			return key
		}
	}
	return "unknown"
}
