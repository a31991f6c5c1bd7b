package market

import (
	"testing"

	"derivbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(capacity int) *Cache {
	return NewCache(60, 300, 900, capacity)
}

func TestTimeframeFor(t *testing.T) {
	c := newTestCache(10)

	tf, ok := c.TimeframeFor(60)
	require.True(t, ok)
	assert.Equal(t, Trigger, tf)

	tf, ok = c.TimeframeFor(300)
	require.True(t, ok)
	assert.Equal(t, Alert, tf)

	tf, ok = c.TimeframeFor(900)
	require.True(t, ok)
	assert.Equal(t, Higher, tf)

	_, ok = c.TimeframeFor(120)
	assert.False(t, ok)
}

func TestUpsertSameEpochReplaces(t *testing.T) {
	c := newTestCache(10)

	require.NoError(t, c.Upsert(Trigger, models.Candle{Epoch: 100, Close: 1.0}))
	require.NoError(t, c.Upsert(Trigger, models.Candle{Epoch: 100, Close: 2.0}))
	require.NoError(t, c.Upsert(Trigger, models.Candle{Epoch: 100, Close: 3.5}))

	window := c.Window(Trigger)
	require.Len(t, window, 1)
	assert.Equal(t, 3.5, window[0].Close)
}

func TestUpsertGreaterEpochAppends(t *testing.T) {
	c := newTestCache(10)

	require.NoError(t, c.Upsert(Trigger, models.Candle{Epoch: 100}))
	require.NoError(t, c.Upsert(Trigger, models.Candle{Epoch: 160}))
	require.NoError(t, c.Upsert(Trigger, models.Candle{Epoch: 220}))

	window := c.Window(Trigger)
	require.Len(t, window, 3)
	assert.Equal(t, int64(100), window[0].Epoch)
	assert.Equal(t, int64(220), window[2].Epoch)
}

func TestUpsertOutOfOrderIsError(t *testing.T) {
	c := newTestCache(10)

	require.NoError(t, c.Upsert(Trigger, models.Candle{Epoch: 160}))
	err := c.Upsert(Trigger, models.Candle{Epoch: 100})
	require.Error(t, err)

	// The stale candle must not have touched the buffer.
	window := c.Window(Trigger)
	require.Len(t, window, 1)
	assert.Equal(t, int64(160), window[0].Epoch)
}

func TestUpsertEvictsOldestPastCapacity(t *testing.T) {
	c := newTestCache(3)

	for epoch := int64(100); epoch <= 400; epoch += 100 {
		require.NoError(t, c.Upsert(Trigger, models.Candle{Epoch: epoch}))
	}

	window := c.Window(Trigger)
	require.Len(t, window, 3)
	assert.Equal(t, int64(200), window[0].Epoch)
	assert.Equal(t, int64(400), window[2].Epoch)
}

func TestTimeframesAreIndependent(t *testing.T) {
	c := newTestCache(10)

	require.NoError(t, c.Upsert(Trigger, models.Candle{Epoch: 100}))
	require.NoError(t, c.Upsert(Alert, models.Candle{Epoch: 50}))

	assert.Equal(t, 1, c.Len(Trigger))
	assert.Equal(t, 1, c.Len(Alert))
	assert.Equal(t, 0, c.Len(Higher))
}

func TestWindowReturnsCopy(t *testing.T) {
	c := newTestCache(10)
	require.NoError(t, c.Upsert(Trigger, models.Candle{Epoch: 100, Close: 1.0}))

	window := c.Window(Trigger)
	window[0].Close = 99.0

	fresh := c.Window(Trigger)
	assert.Equal(t, 1.0, fresh[0].Close)
}

func TestSeedTrimsToCapacity(t *testing.T) {
	c := newTestCache(2)

	c.Seed(Higher, []models.Candle{{Epoch: 100}, {Epoch: 200}, {Epoch: 300}})

	window := c.Window(Higher)
	require.Len(t, window, 2)
	assert.Equal(t, int64(200), window[0].Epoch)
	assert.Equal(t, int64(300), window[1].Epoch)
}

func TestTickAndBalance(t *testing.T) {
	c := newTestCache(10)

	c.SetTick(models.Tick{Symbol: "R_10", Quote: 1234.5678, Epoch: 1700000000})
	c.SetBalance(models.Balance{Amount: 987.65, Currency: "USD"})

	assert.Equal(t, 1234.5678, c.LastTick().Quote)
	assert.Equal(t, 987.65, c.Balance().Amount)
}
