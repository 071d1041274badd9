package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"perpbot/internal/config"
	"perpbot/internal/gateway/exchange"
	"perpbot/internal/gateway/exchange/exchangetest"
	"perpbot/internal/gateway/notifier"
	"perpbot/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSettings struct{ s config.Settings }

func (s *staticSettings) Snapshot() config.Settings { return s.s }

type fixedSignals struct {
	mu      sync.Mutex
	signals map[string]strategy.Signal
	calls   []string
	onCall  func(symbol string)
}

func (f *fixedSignals) Evaluate(_ context.Context, symbol, _ string) strategy.Signal {
	f.mu.Lock()
	f.calls = append(f.calls, symbol)
	hook := f.onCall
	sig, ok := f.signals[symbol]
	f.mu.Unlock()
	if hook != nil {
		hook(symbol)
	}
	if !ok {
		return strategy.Signal{Symbol: symbol, Action: strategy.Wait}
	}
	return sig
}

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

func settings(watch ...string) *staticSettings {
	return &staticSettings{s: config.Settings{
		Indicators: config.IndicatorConfig{SignalStrengthThreshold: 30},
		Dynamic: config.DynamicConfig{
			PairSelection:       true,
			WatchlistSymbols:    watch,
			MaxActivePairs:      2,
			MinVolumeUSDT:       1_000_000,
			ScanIntervalSeconds: 300,
		},
	}}
}

func tickers(symbols ...string) []exchange.Ticker24h {
	out := make([]exchange.Ticker24h, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, exchange.Ticker24h{Symbol: s, QuoteVolume: 5_000_000})
	}
	return out
}

func sig(symbol string, a strategy.Action, strength int) strategy.Signal {
	return strategy.Signal{Symbol: symbol, Action: a, Strength: strength, Price: 1}
}

func TestCycleSelectsStrongest(t *testing.T) {
	ex := exchangetest.New()
	ex.Tickers = append(tickers("AUSDT", "BUSDT", "CUSDT", "DUSDT"), exchange.Ticker24h{Symbol: "EUSDT", QuoteVolume: 10})
	eval := &fixedSignals{signals: map[string]strategy.Signal{
		"AUSDT": sig("AUSDT", strategy.Long, 40),
		"BUSDT": sig("BUSDT", strategy.Short, 35),
		"CUSDT": sig("CUSDT", strategy.Long, 50),
		"DUSDT": sig("DUSDT", strategy.Long, 20),
		"EUSDT": sig("EUSDT", strategy.Long, 90),
	}}
	pairs := config.NewPairSet([]string{"BTCUSDT"})
	notes := &recorder{}
	sc := New(ex, eval, settings("AUSDT", "BUSDT", "CUSDT", "DUSDT", "EUSDT", "FUSDT"), pairs, notes)

	rep, err := sc.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Liquid)
	assert.False(t, rep.FallbackUsed)
	assert.Equal(t, []string{"CUSDT", "AUSDT"}, rep.Selected)
	assert.Len(t, rep.Candidates, 3)
	assert.True(t, rep.Changed)
	assert.Equal(t, []string{"CUSDT", "AUSDT"}, pairs.Snapshot())
	assert.Equal(t, []string{"AUSDT", "BUSDT", "CUSDT", "DUSDT"}, eval.calls)

	require.Len(t, notes.msgs, 1)
	assert.Equal(t, "🔄 <b>Dynamic Trading Pairs Updated</b> 🔄\n\nNow actively monitoring: CUSDT, AUSDT\n(Scan found 3 candidates from 4 liquid pairs)", notes.msgs[0])

	last, ok := sc.Last()
	require.True(t, ok)
	assert.Equal(t, rep.Selected, last.Selected)

	rep, err = sc.Cycle(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Changed)
	assert.Len(t, notes.msgs, 1)

	// 同一集合不同顺序不触发替换，保留原顺序。
	reordered := config.NewPairSet([]string{"AUSDT", "CUSDT"})
	sc = New(ex, eval, settings("AUSDT", "BUSDT", "CUSDT", "DUSDT", "EUSDT", "FUSDT"), reordered, notes)
	rep, err = sc.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"CUSDT", "AUSDT"}, rep.Selected)
	assert.False(t, rep.Changed)
	assert.Equal(t, []string{"AUSDT", "CUSDT"}, reordered.Snapshot())
	assert.Len(t, notes.msgs, 1)
}

func TestCycleCancelledOnLastSymbolKeepsPairs(t *testing.T) {
	ex := exchangetest.New()
	ex.Tickers = tickers("AUSDT", "BUSDT")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eval := &fixedSignals{
		signals: map[string]strategy.Signal{"AUSDT": sig("AUSDT", strategy.Long, 60)},
		onCall: func(symbol string) {
			if symbol == "BUSDT" {
				cancel()
			}
		},
	}
	pairs := config.NewPairSet([]string{"BUSDT", "XUSDT"})
	notes := &recorder{}
	sc := New(ex, eval, settings("AUSDT", "BUSDT"), pairs, notes)

	rep, err := sc.Cycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, rep.Changed)
	assert.Equal(t, []string{"BUSDT", "XUSDT"}, pairs.Snapshot())
	assert.Empty(t, notes.msgs)
	_, ok := sc.Last()
	assert.False(t, ok)
}

func TestCycleTieKeepsWatchlistOrder(t *testing.T) {
	ex := exchangetest.New()
	ex.Tickers = tickers("XUSDT", "YUSDT", "ZUSDT")
	eval := &fixedSignals{signals: map[string]strategy.Signal{
		"XUSDT": sig("XUSDT", strategy.Long, 45),
		"YUSDT": sig("YUSDT", strategy.Short, 45),
		"ZUSDT": sig("ZUSDT", strategy.Long, 45),
	}}
	sc := New(ex, eval, settings("ZUSDT", "XUSDT", "YUSDT"), config.NewPairSet(nil), nil)
	rep, err := sc.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ZUSDT", "XUSDT"}, rep.Selected)
}

func TestCycleFallsBackToWatchlist(t *testing.T) {
	ex := exchangetest.New()
	ex.TickersErr = errors.New("503")
	eval := &fixedSignals{signals: map[string]strategy.Signal{"AUSDT": sig("AUSDT", strategy.Long, 60)}}
	pairs := config.NewPairSet(nil)
	sc := New(ex, eval, settings("AUSDT", "BUSDT"), pairs, nil)

	rep, err := sc.Cycle(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.FallbackUsed)
	assert.Equal(t, 2, rep.Liquid)
	assert.Equal(t, []string{"AUSDT"}, pairs.Snapshot())
}

func TestCycleEmptyLiquidSetKeepsPairs(t *testing.T) {
	ex := exchangetest.New()
	ex.Tickers = []exchange.Ticker24h{{Symbol: "AUSDT", QuoteVolume: 1}}
	pairs := config.NewPairSet([]string{"BTCUSDT"})
	sc := New(ex, &fixedSignals{}, settings("AUSDT"), pairs, nil)

	rep, err := sc.Cycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Liquid)
	assert.Equal(t, []string{"BTCUSDT"}, pairs.Snapshot())
}

func TestCycleHonorsCancellationMidScan(t *testing.T) {
	ex := exchangetest.New()
	ex.Tickers = tickers("AUSDT", "BUSDT", "CUSDT")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eval := &fixedSignals{onCall: func(string) { cancel() }}
	st := settings("AUSDT", "BUSDT", "CUSDT")
	st.s.Dynamic.APICallDelayMillis = int(time.Hour / time.Millisecond)
	pairs := config.NewPairSet([]string{"BTCUSDT"})
	sc := New(ex, eval, st, pairs, nil)

	done := make(chan error, 1)
	go func() {
		_, err := sc.Cycle(ctx)
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not stop")
	}
	assert.Equal(t, []string{"AUSDT"}, eval.calls)
	assert.Equal(t, []string{"BTCUSDT"}, pairs.Snapshot())
}

func TestTickIdlesWhenDisabled(t *testing.T) {
	st := settings("AUSDT")
	st.s.Dynamic.PairSelection = false
	eval := &fixedSignals{}
	sc := New(exchangetest.New(), eval, st, config.NewPairSet(nil), nil)
	assert.Equal(t, 30*time.Second, sc.tick(context.Background()))
	assert.Empty(t, eval.calls)

	st.s.Dynamic.PairSelection = true
	assert.Equal(t, 300*time.Second, sc.tick(context.Background()))
}
