package market

import (
	"fmt"
	"sync"

	"derivbot/internal/models"
)

type Timeframe int

const (
	Trigger Timeframe = iota
	Alert
	Higher
)

func (t Timeframe) String() string {
	switch t {
	case Trigger:
		return "trigger"
	case Alert:
		return "alert"
	case Higher:
		return "higher"
	}
	return "unknown"
}

const DefaultCapacity = 250

// Cache holds the per-timeframe candle buffers plus the latest tick and
// balance pushed by the broker. Mutated from the dispatch goroutine and read
// from the decision loop, so everything lives under one mutex.
type Cache struct {
	mu sync.Mutex

	capacity    int
	granularity map[int]Timeframe
	buffers     map[Timeframe][]models.Candle

	lastTick models.Tick
	balance  models.Balance
}

func NewCache(trigger, alert, higher, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		granularity: map[int]Timeframe{
			trigger: Trigger,
			alert:   Alert,
			higher:  Higher,
		},
		buffers: map[Timeframe][]models.Candle{
			Trigger: nil,
			Alert:   nil,
			Higher:  nil,
		},
	}
}

// TimeframeFor maps a server-reported candle period to one of the three tiers.
func (c *Cache) TimeframeFor(granularity int) (Timeframe, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tf, ok := c.granularity[granularity]
	return tf, ok
}

// Upsert applies the epoch rule: an epoch equal to the last stored one
// replaces the still-forming candle, a greater one is appended, a smaller one
// is a protocol error.
func (c *Cache) Upsert(tf Timeframe, candle models.Candle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := c.buffers[tf]
	if n := len(buf); n > 0 {
		last := buf[n-1].Epoch
		if candle.Epoch == last {
			buf[n-1] = candle
			return nil
		}
		if candle.Epoch < last {
			return fmt.Errorf("Свеча %s пришла не по порядку: epoch=%d, последняя=%d", tf, candle.Epoch, last)
		}
	}

	buf = append(buf, candle)
	if len(buf) > c.capacity {
		buf = buf[1:]
	}
	c.buffers[tf] = buf
	return nil
}

// Seed replaces a buffer with a history snapshot, trimmed to capacity.
func (c *Cache) Seed(tf Timeframe, candles []models.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(candles) > c.capacity {
		candles = candles[len(candles)-c.capacity:]
	}
	buf := make([]models.Candle, len(candles))
	copy(buf, candles)
	c.buffers[tf] = buf
}

// Window returns a snapshot copy, oldest first.
func (c *Cache) Window(tf Timeframe) []models.Candle {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := c.buffers[tf]
	if len(buf) == 0 {
		return nil
	}
	out := make([]models.Candle, len(buf))
	copy(out, buf)
	return out
}

func (c *Cache) Len(tf Timeframe) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffers[tf])
}

func (c *Cache) SetTick(tick models.Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTick = tick
}

func (c *Cache) LastTick() models.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTick
}

func (c *Cache) SetBalance(balance models.Balance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = balance
}

func (c *Cache) Balance() models.Balance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance
}
