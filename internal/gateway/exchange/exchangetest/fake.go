// Package exchangetest provides an in-memory exchange.Client for tests.
package exchangetest

import (
	"context"
	"fmt"
	"sync"

	"perpbot/internal/gateway/exchange"
)

// Fake 是可配置的内存交易所。未设置的行情返回 ErrNotFound。
type Fake struct {
	mu sync.Mutex

	Prices     map[string]float64
	Series     map[string][]exchange.Candle
	Tickers    []exchange.Ticker24h
	Bal        exchange.Balance
	Precisions map[string]exchange.SymbolPrecision
	Positions  []exchange.Position
	Statuses   map[int64]exchange.Order

	// 注入错误
	BalanceErr   error
	CandlesErr   error
	TickersErr   error
	PlaceErr     func(req exchange.OrderRequest) error
	CancelErr    error
	PositionErr  error
	LeverageErr  error
	ModeErr      error
	OnCandles    func(symbol string)
	PingErr      error

	Orders     []exchange.OrderRequest
	Cancels    []int64
	Leverages  map[string]int
	HedgeMode  *bool
	CandleCall int

	nextID int64
}

var _ exchange.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Prices:     make(map[string]float64),
		Series:     make(map[string][]exchange.Candle),
		Precisions: make(map[string]exchange.SymbolPrecision),
		Statuses:   make(map[int64]exchange.Order),
		Leverages:  make(map[string]int),
		nextID:     1000,
	}
}

func (f *Fake) SetPrice(symbol string, price float64) {
	f.mu.Lock()
	f.Prices[symbol] = price
	f.mu.Unlock()
}

func (f *Fake) SetStatus(id int64, o exchange.Order) {
	f.mu.Lock()
	f.Statuses[id] = o
	f.mu.Unlock()
}

// PlacedOrders returns a copy of every accepted order request.
func (f *Fake) PlacedOrders() []exchange.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]exchange.OrderRequest(nil), f.Orders...)
}

func (f *Fake) CanceledOrders() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.Cancels...)
}

func (f *Fake) Ping(context.Context) error { return f.PingErr }

func (f *Fake) TickerPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Prices[symbol]
	if !ok {
		return 0, fmt.Errorf("ticker %s: %w", symbol, exchange.ErrNotFound)
	}
	return p, nil
}

func (f *Fake) Candles(_ context.Context, symbol, _ string, limit int) ([]exchange.Candle, error) {
	f.mu.Lock()
	f.CandleCall++
	hook := f.OnCandles
	err := f.CandlesErr
	series := append([]exchange.Candle(nil), f.Series[symbol]...)
	f.mu.Unlock()
	if hook != nil {
		hook(symbol)
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series, nil
}

func (f *Fake) Tickers24h(context.Context) ([]exchange.Ticker24h, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TickersErr != nil {
		return nil, f.TickersErr
	}
	return append([]exchange.Ticker24h(nil), f.Tickers...), nil
}

func (f *Fake) Volume24h(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TickersErr != nil {
		return 0, f.TickersErr
	}
	for _, t := range f.Tickers {
		if t.Symbol == symbol {
			return t.QuoteVolume, nil
		}
	}
	return 0, fmt.Errorf("volume %s: %w", symbol, exchange.ErrNotFound)
}

func (f *Fake) Balance(context.Context) (exchange.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return exchange.Balance{}, f.BalanceErr
	}
	return f.Bal, nil
}

func (f *Fake) SetBalance(b exchange.Balance) {
	f.mu.Lock()
	f.Bal = b
	f.mu.Unlock()
}

func (f *Fake) SymbolPrecision(_ context.Context, symbol string) (exchange.SymbolPrecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Precisions[symbol]
	if !ok {
		return exchange.SymbolPrecision{}, fmt.Errorf("precision %s: %w", symbol, exchange.ErrNotFound)
	}
	return p, nil
}

func (f *Fake) SetLeverage(_ context.Context, symbol string, leverage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LeverageErr != nil {
		return f.LeverageErr
	}
	f.Leverages[symbol] = leverage
	return nil
}

func (f *Fake) SetPositionMode(_ context.Context, hedge bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ModeErr != nil {
		return f.ModeErr
	}
	f.HedgeMode = &hedge
	return nil
}

func (f *Fake) PlaceOrder(_ context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlaceErr != nil {
		if err := f.PlaceErr(req); err != nil {
			return exchange.Order{}, err
		}
	}
	f.nextID++
	f.Orders = append(f.Orders, req)
	o := exchange.Order{ID: f.nextID, Symbol: req.Symbol, Side: req.Side, Type: req.Type, Status: exchange.StatusNew}
	if req.Type == exchange.OrderMarket {
		o.Status = exchange.StatusFilled
		o.AvgPrice = f.Prices[req.Symbol]
	}
	f.Statuses[o.ID] = o
	return o, nil
}

func (f *Fake) CancelOrder(_ context.Context, _ string, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CancelErr != nil {
		return f.CancelErr
	}
	f.Cancels = append(f.Cancels, orderID)
	if o, ok := f.Statuses[orderID]; ok {
		o.Status = exchange.StatusCanceled
		f.Statuses[orderID] = o
	}
	return nil
}

func (f *Fake) OrderStatus(_ context.Context, _ string, orderID int64) (exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.Statuses[orderID]
	if !ok {
		return exchange.Order{}, fmt.Errorf("order %d: %w", orderID, exchange.ErrNotFound)
	}
	return o, nil
}

func (f *Fake) OpenPositions(context.Context) ([]exchange.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PositionErr != nil {
		return nil, f.PositionErr
	}
	return append([]exchange.Position(nil), f.Positions...), nil
}
