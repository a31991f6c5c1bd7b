package ws

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerIgnoresForeignContract(t *testing.T) {
	var tracker contractTracker
	tracker.Open("100")

	settlement, ok := tracker.OnUpdate(contractUpdate{ContractID: 999, IsSold: 1, Profit: 5})
	require.False(t, ok)
	require.Nil(t, settlement)
	require.Equal(t, "100", tracker.Pending())
}

func TestTrackerIgnoresUnsettledUpdate(t *testing.T) {
	var tracker contractTracker
	tracker.Open("100")

	_, ok := tracker.OnUpdate(contractUpdate{ContractID: 100, Status: "open"})
	require.False(t, ok)
	require.Equal(t, "100", tracker.Pending())
}

func TestTrackerSettlesAndClears(t *testing.T) {
	var tracker contractTracker
	tracker.Open("100")

	settlement, ok := tracker.OnUpdate(contractUpdate{
		ContractID: 100,
		IsSold:     1,
		Profit:     9.5,
		BuyPrice:   10,
		SellPrice:  19.5,
	})
	require.True(t, ok)
	require.True(t, settlement.IsWin)
	require.Equal(t, 9.5, settlement.Profit)
	require.Equal(t, "100", settlement.ContractID)
	require.Empty(t, tracker.Pending())

	// A duplicate push after settlement must fall through.
	_, ok = tracker.OnUpdate(contractUpdate{ContractID: 100, IsSold: 1, Profit: 9.5})
	require.False(t, ok)
}

func TestTrackerLossAndTie(t *testing.T) {
	var tracker contractTracker

	tracker.Open("7")
	settlement, ok := tracker.OnUpdate(contractUpdate{ContractID: 7, IsExpired: 1, Profit: -10})
	require.True(t, ok)
	require.False(t, settlement.IsWin)

	tracker.Open("8")
	settlement, ok = tracker.OnUpdate(contractUpdate{ContractID: 8, IsSold: 1, Profit: 0})
	require.True(t, ok)
	require.False(t, settlement.IsWin)
	require.Equal(t, 0.0, settlement.Profit)
}

func TestTrackerNoOpenContract(t *testing.T) {
	var tracker contractTracker

	_, ok := tracker.OnUpdate(contractUpdate{ContractID: 1, IsSold: 1})
	require.False(t, ok)
}
