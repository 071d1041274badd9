package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"perpbot/internal/analysis/indicator"
	"perpbot/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rules = Rules{Oversold: 30, Overbought: 70, Threshold: 50}

func neutral() indicator.Snapshot {
	return indicator.Snapshot{
		Symbol:    "BTCUSDT",
		Timeframe: "5m",
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Open:      99,
		Close:     100,
		RSI:       50,
		EMAShort:  100,
		EMALong:   100,
		BBUpper:   110,
		BBMiddle:  100,
		BBLower:   90,
		Color:     indicator.Green,
	}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*indicator.Snapshot)
		rules    Rules
		action   Action
		strength int
		reasons  []string
	}{
		{
			name: "oversold with bullish trend",
			mutate: func(s *indicator.Snapshot) {
				s.RSI, s.EMAShort, s.EMALong = 25, 98, 95
			},
			rules:    rules,
			action:   Long,
			strength: 50,
			reasons:  []string{"RSI oversold (25.00) & green candle", "EMA bullish confirmation"},
		},
		{
			name: "below threshold reverts to wait",
			mutate: func(s *indicator.Snapshot) {
				s.RSI, s.EMAShort, s.EMALong = 25, 98, 95
			},
			rules:    Rules{Oversold: 30, Overbought: 70, Threshold: 70},
			action:   Wait,
			strength: 0,
			reasons:  []string{"Final strength 50/70 insufficient"},
		},
		{
			name:     "nothing fires",
			mutate:   func(*indicator.Snapshot) {},
			rules:    rules,
			action:   Wait,
			strength: 0,
			reasons:  []string{"No strong signal found (strength 0/50)"},
		},
		{
			name: "overbought bearish above upper band",
			mutate: func(s *indicator.Snapshot) {
				s.RSI, s.Color, s.Open = 75.456, indicator.Red, 115
				s.Close, s.EMAShort, s.EMALong, s.BBUpper = 112, 113, 114, 111
			},
			rules:    rules,
			action:   Short,
			strength: 70,
			reasons: []string{
				"RSI overbought (75.46) & red candle",
				"EMA bearish confirmation",
				"BB price above upper (confirms SHORT)",
			},
		},
		{
			name:     "lower band reversal only",
			mutate:   func(s *indicator.Snapshot) { s.Close = 89 },
			rules:    Rules{Oversold: 30, Overbought: 70, Threshold: 10},
			action:   Long,
			strength: 15,
			reasons:  []string{"BB price below lower (potential LONG reversal)"},
		},
		{
			name:     "upper band reversal only",
			mutate:   func(s *indicator.Snapshot) { s.Close, s.EMAShort, s.EMALong = 111, 111, 111 },
			rules:    Rules{Oversold: 30, Overbought: 70, Threshold: 15},
			action:   Short,
			strength: 15,
			reasons:  []string{"BB price above upper (potential SHORT reversal)"},
		},
		{
			name: "bearish trend does not flip a long",
			mutate: func(s *indicator.Snapshot) {
				s.RSI, s.Close, s.EMAShort, s.EMALong = 20, 100, 101, 102
			},
			rules:    Rules{Oversold: 30, Overbought: 70, Threshold: 30},
			action:   Long,
			strength: 30,
			reasons:  []string{"RSI oversold (20.00) & green candle"},
		},
		{
			name:     "bearish crossover from wait",
			mutate:   func(s *indicator.Snapshot) { s.Close, s.EMAShort, s.EMALong = 99, 100, 101 },
			rules:    Rules{Oversold: 30, Overbought: 70, Threshold: 20},
			action:   Short,
			strength: 20,
			reasons:  []string{"EMA bearish crossover"},
		},
		{
			name:     "rsi equal to oversold is not oversold",
			mutate:   func(s *indicator.Snapshot) { s.RSI = 30 },
			rules:    rules,
			action:   Wait,
			strength: 0,
			reasons:  []string{"No strong signal found (strength 0/50)"},
		},
		{
			name:     "oversold needs a green candle",
			mutate:   func(s *indicator.Snapshot) { s.RSI, s.Color = 10, indicator.Red },
			rules:    rules,
			action:   Wait,
			strength: 0,
			reasons:  []string{"No strong signal found (strength 0/50)"},
		},
		{
			name:    "nan band",
			mutate:  func(s *indicator.Snapshot) { s.BBUpper = math.NaN() },
			rules:   rules,
			action:  Wait,
			reasons: []string{"Critical indicator is NaN"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := neutral()
			tc.mutate(&snap)
			sig := Decide(snap, tc.rules)
			assert.Equal(t, tc.action, sig.Action)
			assert.Equal(t, tc.strength, sig.Strength)
			assert.Equal(t, tc.reasons, sig.Reasons)
			assert.Equal(t, snap.Close, sig.Price)
			assert.Equal(t, tc.action != Wait, sig.Actionable())
		})
	}
}

type stubSnapshots struct {
	snap      indicator.Snapshot
	err       error
	timeframe string
	params    indicator.Params
}

func (s *stubSnapshots) Snapshot(_ context.Context, _, timeframe string, p indicator.Params) (indicator.Snapshot, error) {
	s.timeframe, s.params = timeframe, p
	return s.snap, s.err
}

type staticSettings struct{ s config.Settings }

func (s staticSettings) Snapshot() config.Settings { return s.s }

func testSettings() staticSettings {
	return staticSettings{s: config.Settings{Indicators: config.IndicatorConfig{
		RSIPeriod: 14, RSIOversold: 30, RSIOverbought: 70,
		EMAShort: 9, EMALong: 21, BBPeriod: 20, BBStd: 2,
		CandleTimeframe: "5m", SignalStrengthThreshold: 50,
	}}}
}

func TestEvaluate(t *testing.T) {
	snap := neutral()
	snap.RSI, snap.EMAShort, snap.EMALong = 25, 98, 95
	src := &stubSnapshots{snap: snap}
	gen := NewGenerator(src, testSettings())

	sig := gen.Evaluate(context.Background(), "BTCUSDT", "")
	assert.Equal(t, "5m", src.timeframe)
	assert.Equal(t, indicator.Params{RSIPeriod: 14, EMAShort: 9, EMALong: 21, BBPeriod: 20, BBStd: 2}, src.params)
	assert.Equal(t, Long, sig.Action)
	require.NotNil(t, sig.Indicators)
	assert.Equal(t, 25.0, sig.Indicators.RSI)

	gen.Evaluate(context.Background(), "BTCUSDT", "1h")
	assert.Equal(t, "1h", src.timeframe)
}

func TestEvaluateDataFailures(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{name: "insufficient", err: fmt.Errorf("wrap: %w", indicator.ErrInsufficientData), reason: "Insufficient market data"},
		{name: "exchange", err: errors.New("timeout"), reason: "Market data unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := NewGenerator(&stubSnapshots{err: tc.err}, testSettings())
			sig := gen.Evaluate(context.Background(), "ETHUSDT", "")
			assert.Equal(t, Wait, sig.Action)
			assert.Zero(t, sig.Strength)
			assert.Equal(t, []string{tc.reason}, sig.Reasons)
			assert.Equal(t, "ETHUSDT", sig.Symbol)
		})
	}
}
