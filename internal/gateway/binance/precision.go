package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"perpbot/internal/gateway/exchange"

	"golang.org/x/sync/singleflight"
)

// precisionCache 按交易对缓存 exchangeInfo 精度，进程生命周期内不过期。
type precisionCache struct {
	mu    sync.RWMutex
	items map[string]exchange.SymbolPrecision
	group singleflight.Group
	load  func(ctx context.Context) (map[string]exchange.SymbolPrecision, error)
}

func newPrecisionCache(load func(ctx context.Context) (map[string]exchange.SymbolPrecision, error)) *precisionCache {
	return &precisionCache{
		items: make(map[string]exchange.SymbolPrecision),
		load:  load,
	}
}

func (p *precisionCache) lookup(sym string) (exchange.SymbolPrecision, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.items[sym]
	return v, ok
}

func (p *precisionCache) get(ctx context.Context, sym string) (exchange.SymbolPrecision, error) {
	if v, ok := p.lookup(sym); ok {
		return v, nil
	}
	_, err, _ := p.group.Do("exchangeInfo", func() (any, error) {
		items, err := p.load(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		for k, v := range items {
			p.items[k] = v
		}
		p.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return exchange.SymbolPrecision{}, err
	}
	if v, ok := p.lookup(sym); ok {
		return v, nil
	}
	return exchange.SymbolPrecision{}, fmt.Errorf("precision %s: %w", sym, exchange.ErrNotFound)
}

func (c *Client) loadExchangeInfo(ctx context.Context) (map[string]exchange.SymbolPrecision, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, classify("exchange info", err)
	}
	out := make(map[string]exchange.SymbolPrecision, len(info.Symbols))
	for i := range info.Symbols {
		s := &info.Symbols[i]
		sp := exchange.SymbolPrecision{
			Symbol:            strings.ToUpper(s.Symbol),
			PricePrecision:    s.PricePrecision,
			QuantityPrecision: s.QuantityPrecision,
		}
		if f := s.LotSizeFilter(); f != nil {
			sp.MinQuantity = parseFloat(f.MinQuantity)
			sp.StepSize = parseFloat(f.StepSize)
		}
		if f := s.PriceFilter(); f != nil {
			sp.TickSize = parseFloat(f.TickSize)
		}
		if f := s.MinNotionalFilter(); f != nil {
			sp.MinNotional = parseFloat(f.Notional)
		}
		out[sp.Symbol] = sp
	}
	log.Infof("precision cache loaded %d symbols", len(out))
	return out, nil
}
