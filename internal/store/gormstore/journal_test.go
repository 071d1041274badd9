package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"perpbot/internal/gateway/exchange"
	"perpbot/internal/risk"
	"perpbot/internal/strategy"
	"perpbot/internal/trader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "data", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func sampleTrade(id string, entry time.Time) trader.Trade {
	return trader.Trade{
		ID:           id,
		Symbol:       "BTCUSDT",
		Action:       strategy.Long,
		PositionSide: exchange.PositionLong,
		OrderSide:    exchange.SideBuy,
		EntryPrice:   100,
		Quantity:     0.5,
		Leverage:     10,
		TakeProfit:   100.6,
		StopLoss:     99.7,
		EntryTime:    entry,
		Mode:         "standard",
		Reasons:      []string{"RSI oversold (25.0 < 30)", "Bullish EMA alignment"},
		State:        trader.StateOpen,
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestSaveTradeUpserts(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	entry := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	open := sampleTrade("t-1", entry)
	require.NoError(t, j.SaveTrade(ctx, open))

	done := open
	done.State = trader.StateCompleted
	done.ExitPrice = 100.6
	done.ExitTime = entry.Add(time.Hour)
	done.ExitReason = trader.ReasonTakeProfit
	done.ProfitPct = 0.6
	done.LeveragedProfitPct = 6
	require.NoError(t, j.SaveTrade(ctx, done))

	all, err := j.ListTrades(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)

	got := all[0]
	assert.Equal(t, trader.StateCompleted, got.State)
	assert.Equal(t, strategy.Long, got.Action)
	assert.Equal(t, exchange.PositionLong, got.PositionSide)
	assert.Equal(t, trader.ReasonTakeProfit, got.ExitReason)
	assert.Equal(t, open.Reasons, got.Reasons)
	assert.True(t, got.EntryTime.Equal(entry))
	assert.True(t, got.ExitTime.Equal(entry.Add(time.Hour)))
	assert.InDelta(t, 6, got.LeveragedProfitPct, 1e-9)
}

func TestListTradesFiltersAndOrders(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first := sampleTrade("a", base)
	second := sampleTrade("b", base.Add(time.Minute))
	second.State = trader.StateCompleted
	third := sampleTrade("c", base.Add(2*time.Minute))
	third.Reasons = nil
	for _, tr := range []trader.Trade{first, second, third} {
		require.NoError(t, j.SaveTrade(ctx, tr))
	}

	open, err := j.ListTrades(ctx, trader.StateOpen, 0)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "c", open[0].ID)
	assert.Equal(t, "a", open[1].ID)
	assert.Empty(t, open[0].Reasons)
	assert.True(t, open[0].ExitTime.IsZero())

	limited, err := j.ListTrades(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)
}

func TestSaveHalt(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.SaveHalt(ctx, risk.Halt{Type: risk.HaltMaxTrades, Message: "max trades", Value: 10, Limit: 10, At: at}))
	require.NoError(t, j.SaveHalt(ctx, risk.Halt{Type: risk.HaltLossLimit, Message: "loss", Value: -3.2, Limit: 3, At: at.Add(time.Hour)}))

	halts, err := j.ListHalts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, halts, 2)
	assert.Equal(t, risk.HaltLossLimit, halts[0].Type)
	assert.InDelta(t, -3.2, halts[0].Value, 1e-9)
	assert.Equal(t, risk.HaltMaxTrades, halts[1].Type)
	assert.True(t, halts[1].At.Equal(at))
}

func TestNilJournal(t *testing.T) {
	var j *Journal
	assert.Error(t, j.SaveTrade(context.Background(), trader.Trade{}))
	assert.NoError(t, j.Close())
}
