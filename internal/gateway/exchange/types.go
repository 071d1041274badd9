// Package exchange defines the futures exchange capability the trading core
// depends on. The Binance adapter lives in gateway/binance.
package exchange

import (
	"errors"
	"time"

	"perpbot/internal/market"
)

var (
	// ErrUnavailable marks transport failures and exchange-side outages.
	ErrUnavailable = errors.New("exchange unavailable")
	// ErrAuth marks rejected credentials or signatures.
	ErrAuth = errors.New("exchange authentication failed")
	// ErrNotFound marks unknown symbols or orders.
	ErrNotFound = errors.New("exchange object not found")
	// ErrRejected marks orders the exchange refused (filters, margin).
	ErrRejected = errors.New("exchange rejected request")
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
	PositionBoth  PositionSide = "BOTH"
)

type OrderType string

const (
	OrderMarket           OrderType = "MARKET"
	OrderStopMarket       OrderType = "STOP_MARKET"
	OrderTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusExpired         OrderStatus = "EXPIRED"
	StatusRejected        OrderStatus = "REJECTED"
)

// Done reports whether the order can no longer fill.
func (s OrderStatus) Done() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// Balance 是 USDT 合约账户余额。
type Balance struct {
	Total         float64 `json:"total"`
	Available     float64 `json:"available"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// SymbolPrecision 描述下单时的价格 / 数量精度与过滤器。
type SymbolPrecision struct {
	Symbol            string  `json:"symbol"`
	PricePrecision    int     `json:"price_precision"`
	QuantityPrecision int     `json:"quantity_precision"`
	TickSize          float64 `json:"tick_size"`
	StepSize          float64 `json:"step_size"`
	MinQuantity       float64 `json:"min_quantity"`
	MinNotional       float64 `json:"min_notional"`
}

// OrderRequest 描述一笔合约订单。StopPrice 仅用于条件单。
type OrderRequest struct {
	Symbol       string
	Side         Side
	Type         OrderType
	Quantity     string
	StopPrice    string
	PositionSide PositionSide
	ReduceOnly   bool
}

type Order struct {
	ID          int64       `json:"id"`
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Type        OrderType   `json:"type"`
	Status      OrderStatus `json:"status"`
	AvgPrice    float64     `json:"avg_price"`
	ExecutedQty float64     `json:"executed_qty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type Position struct {
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	Amount        float64      `json:"amount"`
	EntryPrice    float64      `json:"entry_price"`
	MarkPrice     float64      `json:"mark_price"`
	UnrealizedPnL float64      `json:"unrealized_pnl"`
	Leverage      int          `json:"leverage"`
}

// Ticker24h 是 24 小时行情统计。
type Ticker24h struct {
	Symbol      string  `json:"symbol"`
	LastPrice   float64 `json:"last_price"`
	QuoteVolume float64 `json:"quote_volume"`
	ChangePct   float64 `json:"change_pct"`
}

// Candles is re-exported so callers only import this package.
type Candle = market.Candle
