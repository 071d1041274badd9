package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"perpbot/internal/analysis/indicator"
	"perpbot/internal/config"
	"perpbot/internal/logger"
)

var log = logger.With("strategy")

type Action string

const (
	Long  Action = "LONG"
	Short Action = "SHORT"
	Wait  Action = "WAIT"
)

const maxStrength = 100

const (
	reasonInsufficient = "Insufficient market data"
	reasonUnavailable  = "Market data unavailable"
	reasonNaN          = "Critical indicator is NaN"
)

// Signal 是一次评估的结果，Action 为 WAIT 时不开仓。
type Signal struct {
	Symbol     string              `json:"symbol"`
	Timeframe  string              `json:"timeframe"`
	Timestamp  time.Time           `json:"timestamp"`
	Price      float64             `json:"price"`
	Action     Action              `json:"action"`
	Strength   int                 `json:"strength"`
	Reasons    []string            `json:"reasons"`
	Indicators *indicator.Snapshot `json:"indicators,omitempty"`
}

func (s Signal) Actionable() bool {
	return s.Action == Long || s.Action == Short
}

type SnapshotSource interface {
	Snapshot(ctx context.Context, symbol, timeframe string, p indicator.Params) (indicator.Snapshot, error)
}

type SettingsSource interface {
	Snapshot() config.Settings
}

// Generator 根据 RSI、EMA 与布林带规则给出方向与强度。
type Generator struct {
	source   SnapshotSource
	settings SettingsSource
	now      func() time.Time
}

func NewGenerator(source SnapshotSource, settings SettingsSource) *Generator {
	return &Generator{source: source, settings: settings, now: time.Now}
}

// Evaluate never fails; data problems come back as WAIT with a reason.
// An empty timeframe uses indicators.candle_timeframe.
func (g *Generator) Evaluate(ctx context.Context, symbol, timeframe string) Signal {
	cfg := g.settings.Snapshot().Indicators
	if timeframe == "" {
		timeframe = cfg.CandleTimeframe
	}
	snap, err := g.source.Snapshot(ctx, symbol, timeframe, indicator.ParamsFrom(cfg))
	if err != nil {
		reason := reasonUnavailable
		if errors.Is(err, indicator.ErrInsufficientData) {
			reason = reasonInsufficient
		}
		log.Warnf("[%s] signal skipped: %v", symbol, err)
		return Signal{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: g.now(),
			Action:    Wait,
			Reasons:   []string{reason},
		}
	}
	sig := Decide(snap, Rules{
		Oversold:   cfg.RSIOversold,
		Overbought: cfg.RSIOverbought,
		Threshold:  cfg.SignalStrengthThreshold,
	})
	log.Debugf("[%s] %s strength=%d reasons=%v", symbol, sig.Action, sig.Strength, sig.Reasons)
	return sig
}

// Rules 是信号阈值。
type Rules struct {
	Oversold   float64
	Overbought float64
	Threshold  int
}

// Decide applies the RSI+candle, EMA trend and Bollinger rules in order.
func Decide(snap indicator.Snapshot, r Rules) Signal {
	sig := Signal{
		Symbol:     snap.Symbol,
		Timeframe:  snap.Timeframe,
		Timestamp:  snap.Timestamp,
		Price:      snap.Close,
		Action:     Wait,
		Indicators: &snap,
	}
	for _, v := range []float64{snap.RSI, snap.EMAShort, snap.EMALong, snap.BBUpper, snap.BBMiddle, snap.BBLower} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			sig.Reasons = []string{reasonNaN}
			return sig
		}
	}

	strength := 0
	var reasons []string
	add := func(a Action, points int, reason string) {
		sig.Action = a
		strength += points
		reasons = append(reasons, reason)
	}

	switch {
	case snap.RSI < r.Oversold && snap.Color == indicator.Green:
		add(Long, 30, fmt.Sprintf("RSI oversold (%.2f) & green candle", snap.RSI))
	case snap.RSI > r.Overbought && snap.Color == indicator.Red:
		add(Short, 30, fmt.Sprintf("RSI overbought (%.2f) & red candle", snap.RSI))
	}

	price := snap.Close
	switch {
	case price > snap.EMAShort && snap.EMAShort > snap.EMALong:
		if sig.Action == Long {
			add(Long, 20, "EMA bullish confirmation")
		} else if sig.Action == Wait {
			add(Long, 20, "EMA bullish crossover")
		}
	case price < snap.EMAShort && snap.EMAShort < snap.EMALong:
		if sig.Action == Short {
			add(Short, 20, "EMA bearish confirmation")
		} else if sig.Action == Wait {
			add(Short, 20, "EMA bearish crossover")
		}
	}

	switch {
	case price > snap.BBUpper:
		if sig.Action == Short {
			add(Short, 20, "BB price above upper (confirms SHORT)")
		} else if sig.Action == Wait {
			add(Short, 15, "BB price above upper (potential SHORT reversal)")
		}
	case price < snap.BBLower:
		if sig.Action == Long {
			add(Long, 20, "BB price below lower (confirms LONG)")
		} else if sig.Action == Wait {
			add(Long, 15, "BB price below lower (potential LONG reversal)")
		}
	}

	switch {
	case sig.Action != Wait && strength < r.Threshold:
		reasons = []string{fmt.Sprintf("Final strength %d/%d insufficient", strength, r.Threshold)}
		sig.Action = Wait
		strength = 0
	case sig.Action == Wait && len(reasons) == 0:
		reasons = []string{fmt.Sprintf("No strong signal found (strength %d/%d)", strength, r.Threshold)}
	}

	sig.Strength = min(strength, maxStrength)
	sig.Reasons = reasons
	return sig
}
