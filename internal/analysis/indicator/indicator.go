package indicator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"perpbot/internal/config"
	"perpbot/internal/logger"
	"perpbot/internal/market"

	"github.com/markcheno/go-talib"
)

var log = logger.With("indicator")

// ErrInsufficientData 表示 K 线数量或指标值不足以生成快照。
var ErrInsufficientData = errors.New("insufficient market data")

// lookbackBuffer 是在最长周期之外额外请求的 K 线数量。
const lookbackBuffer = 30

// CandleSource 提供 K 线，exchange.Client 满足该接口。
type CandleSource interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

// Params 描述 RSI / EMA / 布林带参数。
type Params struct {
	RSIPeriod int
	EMAShort  int
	EMALong   int
	BBPeriod  int
	BBStd     float64
}

func ParamsFrom(cfg config.IndicatorConfig) Params {
	return Params{
		RSIPeriod: cfg.RSIPeriod,
		EMAShort:  cfg.EMAShort,
		EMALong:   cfg.EMALong,
		BBPeriod:  cfg.BBPeriod,
		BBStd:     cfg.BBStd,
	}
}

// MinRows is the longest indicator period.
func (p Params) MinRows() int {
	return max(p.RSIPeriod, p.EMALong, p.BBPeriod, p.EMAShort)
}

// Lookback is the number of candles requested per evaluation.
func (p Params) Lookback() int {
	return p.MinRows() + lookbackBuffer
}

type CandleColor string

const (
	Green CandleColor = "green"
	Red   CandleColor = "red"
)

// Point 保存一行 K 线的价格与指标值；缺失的指标为 0。
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	Close     float64   `json:"close"`
	RSI       float64   `json:"rsi"`
	EMAShort  float64   `json:"ema_short"`
	EMALong   float64   `json:"ema_long"`
}

// Snapshot 是最新一根 K 线的指标快照，创建后不再修改。
type Snapshot struct {
	Symbol        string      `json:"symbol"`
	Timeframe     string      `json:"timeframe"`
	Timestamp     time.Time   `json:"timestamp"`
	Open          float64     `json:"open"`
	Close         float64     `json:"close"`
	RSI           float64     `json:"rsi"`
	EMAShort      float64     `json:"ema_short"`
	EMALong       float64     `json:"ema_long"`
	BBUpper       float64     `json:"bb_upper"`
	BBMiddle      float64     `json:"bb_middle"`
	BBLower       float64     `json:"bb_lower"`
	Color         CandleColor `json:"candle_color"`
	CandleSizePct float64     `json:"candle_size_pct"`
	Previous      *Point      `json:"previous,omitempty"`
}

type Engine struct {
	source CandleSource
}

func NewEngine(source CandleSource) *Engine {
	return &Engine{source: source}
}

// Snapshot 拉取 Lookback 根 K 线并计算最新快照。
// 交易所错误原样包装返回（保留 exchange 哨兵错误），数据不足返回 ErrInsufficientData。
func (e *Engine) Snapshot(ctx context.Context, symbol, timeframe string, p Params) (Snapshot, error) {
	limit := p.Lookback()
	log.Debugf("[%s@%s] requesting %d klines", symbol, timeframe, limit)
	candles, err := e.source.Candles(ctx, symbol, timeframe, limit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("klines %s@%s: %w", symbol, timeframe, err)
	}
	return Compute(symbol, timeframe, candles, p)
}

// Compute derives the snapshot from an ascending candle series.
func Compute(symbol, timeframe string, candles []market.Candle, p Params) (snap Snapshot, err error) {
	if p.MinRows() < 2 {
		return Snapshot{}, fmt.Errorf("invalid indicator params %+v", p)
	}
	need := p.Lookback()
	if len(candles) == 0 {
		return Snapshot{}, fmt.Errorf("%w: no candles for %s", ErrInsufficientData, symbol)
	}
	if len(candles) < need {
		return Snapshot{}, fmt.Errorf("%w: got %d rows for %s, need %d", ErrInsufficientData, len(candles), symbol, need)
	}
	rows := make([]market.Candle, 0, len(candles))
	for _, c := range candles {
		if !finite(c.Close) || c.Close <= 0 {
			continue
		}
		rows = append(rows, c)
	}
	if len(rows) < need {
		return Snapshot{}, fmt.Errorf("%w: %d valid closes for %s after filtering, need %d", ErrInsufficientData, len(rows), symbol, need)
	}

	defer func() {
		if r := recover(); r != nil {
			snap, err = Snapshot{}, fmt.Errorf("%w: indicator computation failed for %s: %v", ErrInsufficientData, symbol, r)
		}
	}()

	closes := make([]float64, len(rows))
	for i, c := range rows {
		closes[i] = c.Close
	}
	rsi := talib.Rsi(closes, p.RSIPeriod)
	emaShort := talib.Ema(closes, p.EMAShort)
	emaLong := talib.Ema(closes, p.EMALong)
	upper, middle, lower := talib.BBands(closes, p.BBPeriod, p.BBStd, p.BBStd, talib.SMA)
	if len(middle) != len(closes) || len(upper) != len(closes) || len(lower) != len(closes) {
		return Snapshot{}, fmt.Errorf("%w: bollinger bands unavailable for %s", ErrInsufficientData, symbol)
	}

	last := len(rows) - 1
	// talib 在各自的回看窗口内以 0 填充，窗口外的值才有效。
	rsiV := valueAt(rsi, last, p.RSIPeriod)
	emaSV := valueAt(emaShort, last, p.EMAShort-1)
	emaLV := valueAt(emaLong, last, p.EMALong-1)
	bbMV := valueAt(middle, last, p.BBPeriod-1)
	if math.IsNaN(rsiV) || math.IsNaN(emaSV) || math.IsNaN(emaLV) || math.IsNaN(bbMV) {
		return Snapshot{}, fmt.Errorf("%w: latest row of %s has null indicators (rsi=%v ema_s=%v ema_l=%v bb_m=%v)",
			ErrInsufficientData, symbol, rsiV, emaSV, emaLV, bbMV)
	}

	cur := rows[last]
	snap = Snapshot{
		Symbol:        symbol,
		Timeframe:     timeframe,
		Timestamp:     cur.OpenAt(),
		Open:          cur.Open,
		Close:         cur.Close,
		RSI:           rsiV,
		EMAShort:      emaSV,
		EMALong:       emaLV,
		BBUpper:       valueAt(upper, last, p.BBPeriod-1),
		BBMiddle:      bbMV,
		BBLower:       valueAt(lower, last, p.BBPeriod-1),
		Color:         colorOf(cur),
		CandleSizePct: candleSizePct(cur),
	}
	if last > 0 {
		prev := rows[last-1]
		snap.Previous = &Point{
			Timestamp: prev.OpenAt(),
			Open:      prev.Open,
			Close:     prev.Close,
			RSI:       zeroIfNaN(valueAt(rsi, last-1, p.RSIPeriod)),
			EMAShort:  zeroIfNaN(valueAt(emaShort, last-1, p.EMAShort-1)),
			EMALong:   zeroIfNaN(valueAt(emaLong, last-1, p.EMALong-1)),
		}
	}
	return snap, nil
}

func colorOf(c market.Candle) CandleColor {
	if c.Close >= c.Open {
		return Green
	}
	return Red
}

func candleSizePct(c market.Candle) float64 {
	if c.Open == 0 || !finite(c.Open) {
		return 0
	}
	return math.Abs(c.Close-c.Open) / c.Open * 100
}

// valueAt returns series[idx], or NaN when idx is inside the lookback window
// or the value is not finite.
func valueAt(series []float64, idx, lookback int) float64 {
	if idx < 0 || idx >= len(series) || idx < lookback {
		return math.NaN()
	}
	v := series[idx]
	if !finite(v) {
		return math.NaN()
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
