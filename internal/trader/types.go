package trader

import (
	"errors"
	"time"

	"perpbot/internal/gateway/exchange"
	"perpbot/internal/strategy"
)

var (
	ErrTradeExists   = errors.New("open trade already exists for symbol")
	ErrTradeNotFound = errors.New("active trade not found")
	ErrEntryFailed   = errors.New("entry order failed")
	ErrInvalidSignal = errors.New("signal is not actionable")
)

type State string

const (
	StateOpen      State = "OPEN"
	StateCompleted State = "COMPLETED"
)

type ExitReason string

const (
	ReasonTakeProfit ExitReason = "take_profit"
	ReasonStopLoss   ExitReason = "stop_loss"
	ReasonManual     ExitReason = "manual"
	ReasonCloseAll   ExitReason = "close_all"
)

// Display 返回通知中的平仓原因文本。
func (r ExitReason) Display() string {
	switch r {
	case ReasonTakeProfit:
		return "Take Profit Hit"
	case ReasonStopLoss:
		return "Stop Loss Hit"
	case ReasonManual:
		return "Manual Close"
	case ReasonCloseAll:
		return "Close All"
	default:
		return string(r)
	}
}

// Trade 是一笔由机器人开出的仓位，从 OPEN 单向迁移到 COMPLETED。
type Trade struct {
	ID           string                `json:"id"`
	Symbol       string                `json:"symbol"`
	Action       strategy.Action       `json:"action"`
	PositionSide exchange.PositionSide `json:"position_side"`
	OrderSide    exchange.Side         `json:"order_side"`

	EntryPrice    float64   `json:"entry_price"`
	Quantity      float64   `json:"quantity"`
	Leverage      int       `json:"leverage"`
	TakeProfit    float64   `json:"take_profit"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfitPct float64   `json:"take_profit_pct"`
	StopLossPct   float64   `json:"stop_loss_pct"`
	EntryTime     time.Time `json:"entry_time"`
	Mode          string    `json:"mode"`
	RealTrade     bool      `json:"real_trade"`
	Protected     bool      `json:"protected"`
	Reasons       []string  `json:"reasons"`

	State              State      `json:"state"`
	ExitPrice          float64    `json:"exit_price,omitempty"`
	ExitTime           time.Time  `json:"exit_time,omitzero"`
	ExitReason         ExitReason `json:"exit_reason,omitempty"`
	ProfitPct          float64    `json:"profit_pct"`
	LeveragedProfitPct float64    `json:"leveraged_profit_pct"`
	ProfitUSDT         float64    `json:"profit_usdt"`

	EntryOrderID int64 `json:"entry_order_id,omitempty"`
	TPOrderID    int64 `json:"tp_order_id,omitempty"`
	SLOrderID    int64 `json:"sl_order_id,omitempty"`

	quantityText string
}

func (t *Trade) clone() Trade {
	out := *t
	out.Reasons = append([]string(nil), t.Reasons...)
	return out
}

func (t Trade) Win() bool { return t.ProfitPct > 0 }

// Duration is the holding time; zero while open.
func (t Trade) Duration() time.Duration {
	if t.ExitTime.IsZero() {
		return 0
	}
	return t.ExitTime.Sub(t.EntryTime)
}

// sidesFor maps a signal direction to the position and entry order sides.
func sidesFor(a strategy.Action) (exchange.PositionSide, exchange.Side, bool) {
	switch a {
	case strategy.Long:
		return exchange.PositionLong, exchange.SideBuy, true
	case strategy.Short:
		return exchange.PositionShort, exchange.SideSell, true
	default:
		return "", "", false
	}
}
