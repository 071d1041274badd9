package exchange

import "context"

// Client 是交易核心所需的全部交易所能力。实现必须并发安全。
type Client interface {
	Ping(ctx context.Context) error

	TickerPrice(ctx context.Context, symbol string) (float64, error)
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	Tickers24h(ctx context.Context) ([]Ticker24h, error)
	Volume24h(ctx context.Context, symbol string) (float64, error)

	Balance(ctx context.Context) (Balance, error)
	SymbolPrecision(ctx context.Context, symbol string) (SymbolPrecision, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error
	// SetPositionMode switches hedge (dual side) mode; "no change needed"
	// responses count as success.
	SetPositionMode(ctx context.Context, hedge bool) error

	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	OrderStatus(ctx context.Context, symbol string, orderID int64) (Order, error)
	OpenPositions(ctx context.Context) ([]Position, error)
}
