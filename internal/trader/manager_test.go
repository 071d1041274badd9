package trader

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"perpbot/internal/config"
	"perpbot/internal/gateway/exchange"
	"perpbot/internal/gateway/exchange/exchangetest"
	"perpbot/internal/gateway/notifier"
	"perpbot/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type staticSettings struct{ s config.Settings }

func (s *staticSettings) Snapshot() config.Settings { return s.s }

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Enqueue(text string, _ notifier.Keyboard) bool {
	r.mu.Lock()
	r.msgs = append(r.msgs, text)
	r.mu.Unlock()
	return true
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}

type journalMock struct{ mock.Mock }

func (j *journalMock) SaveTrade(_ context.Context, t Trade) error {
	return j.Called(t.Symbol, t.State).Error(0)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	ex       *exchangetest.Fake
	settings *staticSettings
	notes    *recorder
	journal  *journalMock
	clock    *clock
	mgr      *Manager
}

func newFixture(t *testing.T, real bool) *fixture {
	t.Helper()
	ex := exchangetest.New()
	ex.SetPrice("BTCUSDT", 100)
	ex.SetPrice("ETHUSDT", 2000)
	ex.Precisions["BTCUSDT"] = exchange.SymbolPrecision{Symbol: "BTCUSDT", PricePrecision: 2, QuantityPrecision: 3}
	f := &fixture{
		ex:       ex,
		settings: &staticSettings{s: config.Settings{Trading: tradingConfig(real)}},
		notes:    &recorder{},
		journal:  &journalMock{},
		clock:    &clock{now: t0},
	}
	f.journal.On("SaveTrade", mock.Anything, mock.Anything).Return(nil)
	f.mgr = NewManager(ex, NewStatsBook(t0), f.settings, Options{
		SettleDelay: time.Millisecond,
		Journal:     f.journal,
		Notifier:    f.notes,
		Now:         f.clock.Now,
	})
	return f
}

func tradingConfig(real bool) config.TradingConfig {
	return config.TradingConfig{
		Mode:           "safe",
		Leverage:       10,
		TakeProfit:     0.6,
		StopLoss:       0.3,
		UseRealTrading: real,
		HedgeMode:      true,
	}
}

func (f *fixture) open(t *testing.T, symbol string, action strategy.Action, price float64, qty string) Trade {
	t.Helper()
	tr, err := f.mgr.Open(context.Background(), OpenRequest{
		Signal:   strategy.Signal{Symbol: symbol, Action: action, Price: price, Reasons: []string{"EMA bullish crossover"}},
		Quantity: decimal.RequireFromString(qty),
		Settings: f.settings.s.Trading,
	})
	require.NoError(t, err)
	return tr
}

func TestOpenSimulated(t *testing.T) {
	f := newFixture(t, false)
	tr := f.open(t, "BTCUSDT", strategy.Long, 100, "0.5")

	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, StateOpen, tr.State)
	assert.Equal(t, 100.6, tr.TakeProfit)
	assert.Equal(t, 99.7, tr.StopLoss)
	assert.Equal(t, exchange.PositionLong, tr.PositionSide)
	assert.Equal(t, exchange.SideBuy, tr.OrderSide)
	assert.False(t, tr.RealTrade)
	assert.Zero(t, tr.EntryOrderID)
	assert.Empty(t, f.ex.PlacedOrders())
	assert.Equal(t, 1, f.mgr.Stats().Snapshot().TotalTrades)
	assert.True(t, f.mgr.HasOpen("BTCUSDT"))

	_, err := f.mgr.Open(context.Background(), OpenRequest{
		Signal:   strategy.Signal{Symbol: "BTCUSDT", Action: strategy.Short, Price: 100},
		Quantity: decimal.NewFromInt(1),
		Settings: f.settings.s.Trading,
	})
	assert.ErrorIs(t, err, ErrTradeExists)
	assert.Len(t, f.mgr.Active(), 1)
	f.journal.AssertCalled(t, "SaveTrade", "BTCUSDT", StateOpen)
}

func TestOpenRejectsWait(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.mgr.Open(context.Background(), OpenRequest{
		Signal:   strategy.Signal{Symbol: "BTCUSDT", Action: strategy.Wait, Price: 100},
		Quantity: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestOpenReal(t *testing.T) {
	f := newFixture(t, true)
	tr := f.open(t, "BTCUSDT", strategy.Long, 100, "0.5")

	orders := f.ex.PlacedOrders()
	require.Len(t, orders, 3)
	assert.Equal(t, exchange.OrderMarket, orders[0].Type)
	assert.Equal(t, exchange.SideBuy, orders[0].Side)
	assert.Equal(t, "0.5", orders[0].Quantity)
	assert.Equal(t, exchange.PositionLong, orders[0].PositionSide)

	assert.Equal(t, exchange.OrderTakeProfitMarket, orders[1].Type)
	assert.Equal(t, exchange.SideSell, orders[1].Side)
	assert.Equal(t, "100.60", orders[1].StopPrice)
	assert.True(t, orders[1].ReduceOnly)
	assert.Equal(t, exchange.OrderStopMarket, orders[2].Type)
	assert.Equal(t, "99.70", orders[2].StopPrice)

	assert.True(t, tr.Protected)
	assert.NotZero(t, tr.EntryOrderID)
	assert.NotZero(t, tr.TPOrderID)
	assert.NotZero(t, tr.SLOrderID)
	assert.Equal(t, 10, f.ex.Leverages["BTCUSDT"])
}

func TestOpenRealOneWayMode(t *testing.T) {
	f := newFixture(t, true)
	f.settings.s.Trading.HedgeMode = false
	f.open(t, "BTCUSDT", strategy.Short, 100, "1")
	for _, o := range f.ex.PlacedOrders() {
		assert.Equal(t, exchange.PositionBoth, o.PositionSide)
	}
}

func TestOpenEntryFailure(t *testing.T) {
	f := newFixture(t, true)
	f.ex.PlaceErr = func(req exchange.OrderRequest) error {
		if req.Type == exchange.OrderMarket {
			return exchange.ErrRejected
		}
		return nil
	}
	_, err := f.mgr.Open(context.Background(), OpenRequest{
		Signal:   strategy.Signal{Symbol: "BTCUSDT", Action: strategy.Long, Price: 100},
		Quantity: decimal.NewFromInt(1),
		Settings: f.settings.s.Trading,
	})
	assert.ErrorIs(t, err, ErrEntryFailed)
	assert.ErrorIs(t, err, exchange.ErrRejected)
	assert.Empty(t, f.mgr.Active())
	assert.Zero(t, f.mgr.Stats().Snapshot().TotalTrades)
	assert.False(t, f.mgr.HasOpen("BTCUSDT"))
}

func TestOpenProtectionFailureKeepsTrade(t *testing.T) {
	f := newFixture(t, true)
	f.ex.PlaceErr = func(req exchange.OrderRequest) error {
		if req.Type == exchange.OrderStopMarket {
			return errors.New("would immediately trigger")
		}
		return nil
	}
	tr := f.open(t, "BTCUSDT", strategy.Long, 100, "1")
	assert.False(t, tr.Protected)
	assert.NotZero(t, tr.TPOrderID)
	assert.Zero(t, tr.SLOrderID)
	assert.Len(t, f.mgr.Active(), 1)
}

func TestComplete(t *testing.T) {
	f := newFixture(t, true)
	f.mgr.Stats().Reset(t0, 1000)
	tr := f.open(t, "BTCUSDT", strategy.Long, 100, "1")

	f.clock.now = t0.Add(90 * time.Second)
	done, err := f.mgr.Complete(context.Background(), tr.ID, 101, ReasonTakeProfit)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, done.State)
	assert.InDelta(t, 1.0, done.ProfitPct, 1e-9)
	assert.InDelta(t, 10.0, done.LeveragedProfitPct, 1e-9)
	assert.InDelta(t, 1.0, done.ProfitUSDT, 1e-9)
	assert.Equal(t, 90*time.Second, done.Duration())
	assert.ElementsMatch(t, []int64{tr.TPOrderID, tr.SLOrderID}, f.ex.CanceledOrders())

	stats := f.mgr.Stats().Snapshot()
	assert.Equal(t, 1, stats.WinningTrades)
	assert.InDelta(t, 10.0, stats.TotalProfitPct, 1e-9)
	assert.InDelta(t, 1001.0, stats.CurrentBalance, 1e-9)
	assert.InDelta(t, 0.1, stats.ROI, 1e-9)
	assert.Equal(t, 100.0, stats.WinRate)

	msg := f.notes.last()
	assert.True(t, strings.HasPrefix(msg, "✅ TRADE COMPLETED - WIN\n\n"), msg)
	assert.Contains(t, msg, "Close Reason: Take Profit Hit")
	assert.Contains(t, msg, "Duration: 90 seconds")

	_, err = f.mgr.Complete(context.Background(), tr.ID, 101, ReasonTakeProfit)
	assert.ErrorIs(t, err, ErrTradeNotFound)
	assert.Len(t, f.mgr.Completed(), 1)
	f.journal.AssertCalled(t, "SaveTrade", "BTCUSDT", StateCompleted)
}

func TestCompleteSimulatedLossKeepsBalance(t *testing.T) {
	f := newFixture(t, false)
	f.mgr.Stats().Reset(t0, 0)
	tr := f.open(t, "BTCUSDT", strategy.Short, 100, "2")
	done, err := f.mgr.Complete(context.Background(), tr.ID, 101, ReasonStopLoss)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, done.ProfitPct, 1e-9)
	assert.InDelta(t, -2.0, done.ProfitUSDT, 1e-9)
	assert.Empty(t, f.ex.CanceledOrders())

	stats := f.mgr.Stats().Snapshot()
	assert.Equal(t, 1, stats.LosingTrades)
	assert.Zero(t, stats.CurrentBalance)
	assert.True(t, strings.HasPrefix(f.notes.last(), "❌ TRADE COMPLETED - LOSS"))
}

func TestCloseManual(t *testing.T) {
	f := newFixture(t, true)
	tr := f.open(t, "BTCUSDT", strategy.Long, 100, "1")
	f.ex.SetPrice("BTCUSDT", 100.2)

	done, err := f.mgr.Close(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonManual, done.ExitReason)
	assert.Equal(t, 100.2, done.ExitPrice)

	orders := f.ex.PlacedOrders()
	closing := orders[len(orders)-1]
	assert.Equal(t, exchange.OrderMarket, closing.Type)
	assert.Equal(t, exchange.SideSell, closing.Side)
	assert.True(t, closing.ReduceOnly)

	_, err = f.mgr.Close(context.Background(), tr.ID)
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestCloseAll(t *testing.T) {
	f := newFixture(t, true)
	f.open(t, "BTCUSDT", strategy.Long, 100, "0.5")
	before := len(f.ex.PlacedOrders())
	f.ex.Positions = []exchange.Position{
		{Symbol: "BTCUSDT", Side: exchange.PositionLong, Amount: 0.5},
		{Symbol: "ETHUSDT", Side: exchange.PositionShort, Amount: -2},
		{Symbol: "SOLUSDT", Amount: 0},
	}

	n, err := f.mgr.CloseAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, f.mgr.Active())

	orders := f.ex.PlacedOrders()[before:]
	require.Len(t, orders, 2)
	assert.Equal(t, exchange.SideSell, orders[0].Side)
	assert.Equal(t, "0.5", orders[0].Quantity)
	assert.Equal(t, exchange.SideBuy, orders[1].Side)
	assert.Equal(t, "2", orders[1].Quantity)
	assert.Equal(t, exchange.PositionShort, orders[1].PositionSide)
	assert.Equal(t, ReasonCloseAll, f.mgr.Completed()[0].ExitReason)
}

func TestReconcileSimulated(t *testing.T) {
	f := newFixture(t, false)
	long := f.open(t, "BTCUSDT", strategy.Long, 100, "1")
	short := f.open(t, "ETHUSDT", strategy.Short, 2000, "1")

	assert.Zero(t, f.mgr.Reconcile(context.Background()))

	f.ex.SetPrice("BTCUSDT", 100.7)
	f.ex.SetPrice("ETHUSDT", 2007)
	assert.Equal(t, 2, f.mgr.Reconcile(context.Background()))

	got, _ := f.mgr.Get(long.ID)
	assert.Equal(t, ReasonTakeProfit, got.ExitReason)
	got, _ = f.mgr.Get(short.ID)
	assert.Equal(t, ReasonStopLoss, got.ExitReason)
}

func TestReconcileRealFilledOrder(t *testing.T) {
	f := newFixture(t, true)
	tr := f.open(t, "BTCUSDT", strategy.Long, 100, "1")

	assert.Zero(t, f.mgr.Reconcile(context.Background()))

	f.ex.SetStatus(tr.SLOrderID, exchange.Order{ID: tr.SLOrderID, Status: exchange.StatusFilled})
	assert.Equal(t, 1, f.mgr.Reconcile(context.Background()))

	got, ok := f.mgr.Get(tr.ID)
	require.True(t, ok)
	assert.Equal(t, ReasonStopLoss, got.ExitReason)
	assert.Equal(t, 99.7, got.ExitPrice)
}

func TestOpenedMessage(t *testing.T) {
	tr := Trade{
		Symbol: "BTCUSDT", Action: strategy.Long, EntryPrice: 100, Quantity: 0.5, Leverage: 10,
		TakeProfit: 100.6, StopLoss: 99.7, TakeProfitPct: 0.6, StopLossPct: 0.3,
		EntryTime: t0, Mode: "safe",
		Reasons: []string{"RSI oversold (25.00) & green candle", "EMA bullish confirmation"},
	}
	want := "🟢 NEW LONG POSITION\n\n" +
		"Symbol: BTCUSDT\nEntry Price: $100.0000\nQuantity: 0.5\nLeverage: 10x\n" +
		"Take Profit: $100.6000 (+0.6%)\nStop Loss: $99.7000 (-0.3%)\n" +
		"Time: 2024-01-02 03:04:05\nMode: Safe\n\n" +
		"Signal Reasons:\n• RSI oversold (25.00) & green candle\n• EMA bullish confirmation\n\n" +
		"Real Trade: No (Simulation)"
	assert.Equal(t, want, OpenedMessage(tr))
}

func TestStatsMessage(t *testing.T) {
	book := NewStatsBook(t0)
	book.Reset(t0, 1000)
	book.recordOpen()
	book.recordClose(Trade{ProfitPct: 1, LeveragedProfitPct: 10, ProfitUSDT: 5, RealTrade: true})
	msg := StatsMessage(book.Snapshot(), "standard", true)
	assert.True(t, strings.HasPrefix(msg, "📊 DAILY TRADING STATS - 2024-01-02\n\nTotal Trades: 1\n"), msg)
	assert.Contains(t, msg, "Win Rate: 100.0%")
	assert.Contains(t, msg, "Current Balance: $1005.00\nBalance Change: 0.50%")
	assert.True(t, strings.HasSuffix(msg, "Trading Mode: Standard\nReal Trading: Enabled"))
}

func TestTradeJSONOmitsExitTimeUntilCompleted(t *testing.T) {
	open := Trade{ID: "t-1", Symbol: "BTCUSDT", EntryTime: t0, State: StateOpen}
	raw, err := json.Marshal(open)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "exit_time")

	done := open
	done.State = StateCompleted
	done.ExitTime = t0.Add(time.Minute)
	raw, err = json.Marshal(done)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"exit_time":"2024-01-02T03:05:05Z"`)
}
