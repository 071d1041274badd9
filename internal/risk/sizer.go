package risk

import (
	"context"
	"errors"
	"fmt"

	"perpbot/internal/config"
	"perpbot/internal/gateway/exchange"
	"perpbot/internal/logger"

	"github.com/shopspring/decimal"
)

var log = logger.With("risk")

// ErrSizingUnavailable 表示本次信号无法计算仓位，调用方应跳过该信号。
var ErrSizingUnavailable = errors.New("position sizing unavailable")

// DefaultQuantityPrecision is used when the symbol's metadata cannot be loaded.
const DefaultQuantityPrecision = 3

type AccountSource interface {
	Balance(ctx context.Context) (exchange.Balance, error)
	SymbolPrecision(ctx context.Context, symbol string) (exchange.SymbolPrecision, error)
}

type SettingsSource interface {
	Snapshot() config.Settings
}

type Sizer struct {
	account  AccountSource
	settings SettingsSource
}

func NewSizer(account AccountSource, settings SettingsSource) *Sizer {
	return &Sizer{account: account, settings: settings}
}

// Size 计算下单数量：notional × leverage / price，按数量精度向零截断。
func (s *Sizer) Size(ctx context.Context, symbol string, price float64) (decimal.Decimal, error) {
	if price <= 0 {
		return decimal.Zero, fmt.Errorf("%w: invalid price %v for %s", ErrSizingUnavailable, price, symbol)
	}
	bal, err := s.account.Balance(ctx)
	if err != nil {
		log.Errorf("sizing %s: failed to get balance: %v", symbol, err)
		return decimal.Zero, fmt.Errorf("%w: balance: %w", ErrSizingUnavailable, err)
	}
	trading := s.settings.Snapshot().Trading

	notional := decimal.NewFromFloat(trading.PositionSizeUSDT)
	if trading.UsePercentage {
		notional = decimal.NewFromFloat(bal.Available).
			Mul(decimal.NewFromFloat(trading.PositionSizePercentage)).
			Div(decimal.NewFromInt(100))
	}
	raw := notional.Mul(decimal.NewFromInt(int64(trading.Leverage))).Div(decimal.NewFromFloat(price))

	prec, err := s.account.SymbolPrecision(ctx, symbol)
	if err != nil {
		log.Warnf("sizing %s: precision unavailable, using %d decimals: %v", symbol, DefaultQuantityPrecision, err)
		prec = exchange.SymbolPrecision{Symbol: symbol, QuantityPrecision: DefaultQuantityPrecision}
	}
	qty := RoundQuantity(raw, prec)
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quantity rounds to zero for %s (notional %s)", ErrSizingUnavailable, symbol, notional.StringFixed(2))
	}
	if prec.MinQuantity > 0 && qty.LessThan(decimal.NewFromFloat(prec.MinQuantity)) {
		return decimal.Zero, fmt.Errorf("%w: quantity %s below min %v for %s", ErrSizingUnavailable, qty, prec.MinQuantity, symbol)
	}
	log.Debugf("sizing %s: notional=%s leverage=%d price=%v qty=%s", symbol, notional.StringFixed(2), trading.Leverage, price, qty)
	return qty, nil
}

// RoundQuantity truncates toward zero to the quantity precision and, when
// known, to a multiple of the step size.
func RoundQuantity(qty decimal.Decimal, prec exchange.SymbolPrecision) decimal.Decimal {
	places := prec.QuantityPrecision
	if places < 0 {
		places = DefaultQuantityPrecision
	}
	out := qty.Truncate(int32(places))
	if prec.StepSize > 0 {
		step := decimal.NewFromFloat(prec.StepSize)
		out = out.Div(step).Truncate(0).Mul(step)
	}
	return out
}
