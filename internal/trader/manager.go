package trader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"perpbot/internal/config"
	"perpbot/internal/gateway/exchange"
	"perpbot/internal/gateway/notifier"
	"perpbot/internal/logger"
	"perpbot/internal/scheduler"
	"perpbot/internal/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var log = logger.With("trader")

const (
	defaultSettleDelay = time.Second
	protectTimeout     = 15 * time.Second
)

// Exchange 是交易生命周期需要的交易所能力。
type Exchange interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
	SymbolPrecision(ctx context.Context, symbol string) (exchange.SymbolPrecision, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	OrderStatus(ctx context.Context, symbol string, orderID int64) (exchange.Order, error)
	OpenPositions(ctx context.Context) ([]exchange.Position, error)
}

// Journal persists trades; failures are logged by the manager and never
// affect trading.
type Journal interface {
	SaveTrade(ctx context.Context, t Trade) error
}

type SettingsSource interface {
	Snapshot() config.Settings
}

type Options struct {
	SettleDelay time.Duration
	Journal     Journal
	Notifier    notifier.Notifier
	Now         func() time.Time
}

// OpenRequest 描述一次开仓：信号、已截断的数量与开仓时的交易参数。
type OpenRequest struct {
	Signal   strategy.Signal
	Quantity decimal.Decimal
	Settings config.TradingConfig
}

// Manager 维护活跃与已完成交易，每个交易对同时最多一笔 OPEN。
type Manager struct {
	ex       Exchange
	stats    *StatsBook
	settings SettingsSource
	journal  Journal
	notify   notifier.Notifier
	settle   time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	active    []*Trade
	completed []*Trade
	pending   map[string]struct{}
}

func NewManager(ex Exchange, stats *StatsBook, settings SettingsSource, opts Options) *Manager {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		ex:       ex,
		stats:    stats,
		settings: settings,
		journal:  opts.Journal,
		notify:   opts.Notifier,
		settle:   opts.SettleDelay,
		now:      opts.Now,
		pending:  make(map[string]struct{}),
	}
}

func (m *Manager) Stats() *StatsBook { return m.stats }

// Open 开仓。入场单失败时不记录交易；止盈止损单失败只会让交易处于未保护状态。
func (m *Manager) Open(ctx context.Context, req OpenRequest) (Trade, error) {
	sig := req.Signal
	posSide, orderSide, ok := sidesFor(sig.Action)
	if !ok {
		return Trade{}, fmt.Errorf("%w: %s %s", ErrInvalidSignal, sig.Symbol, sig.Action)
	}
	if !req.Quantity.IsPositive() {
		return Trade{}, fmt.Errorf("%w: quantity %s for %s", ErrInvalidSignal, req.Quantity, sig.Symbol)
	}
	if sig.Price <= 0 {
		return Trade{}, fmt.Errorf("%w: price %v for %s", ErrInvalidSignal, sig.Price, sig.Symbol)
	}
	if err := m.reserve(sig.Symbol); err != nil {
		return Trade{}, err
	}
	defer m.release(sig.Symbol)

	cfg := req.Settings
	pricePrec := strategy.DefaultPricePrecision
	if p, err := m.ex.SymbolPrecision(ctx, sig.Symbol); err == nil {
		pricePrec = p.PricePrecision
	} else {
		log.Warnf("[%s] price precision unavailable, using %d decimals: %v", sig.Symbol, pricePrec, err)
	}
	tp, sl := strategy.ProtectivePrices(sig.Action, sig.Price, cfg.TakeProfit, cfg.StopLoss, pricePrec)

	t := &Trade{
		ID:            uuid.NewString(),
		Symbol:        sig.Symbol,
		Action:        sig.Action,
		PositionSide:  posSide,
		OrderSide:     orderSide,
		EntryPrice:    sig.Price,
		Quantity:      req.Quantity.InexactFloat64(),
		Leverage:      cfg.Leverage,
		TakeProfit:    tp,
		StopLoss:      sl,
		TakeProfitPct: cfg.TakeProfit,
		StopLossPct:   cfg.StopLoss,
		EntryTime:     m.now(),
		Mode:          cfg.Mode,
		RealTrade:     cfg.UseRealTrading,
		Reasons:       append([]string(nil), sig.Reasons...),
		State:         StateOpen,
		quantityText:  req.Quantity.String(),
	}

	if t.RealTrade {
		if err := m.openOnExchange(ctx, t, cfg, pricePrec); err != nil {
			return Trade{}, err
		}
	}

	m.mu.Lock()
	m.active = append(m.active, t)
	out := t.clone()
	m.mu.Unlock()
	m.stats.recordOpen()

	log.Infof("[%s] opened %s qty=%s entry=%.4f tp=%.4f sl=%.4f real=%v protected=%v",
		t.Symbol, t.Action, t.quantityText, t.EntryPrice, t.TakeProfit, t.StopLoss, t.RealTrade, t.Protected)
	m.save(ctx, out)
	return out, nil
}

func (m *Manager) openOnExchange(ctx context.Context, t *Trade, cfg config.TradingConfig, pricePrec int) error {
	if err := m.ex.SetLeverage(ctx, t.Symbol, cfg.Leverage); err != nil {
		log.Warnf("[%s] set leverage %dx failed: %v", t.Symbol, cfg.Leverage, err)
	}
	orderPos := exchange.PositionBoth
	if cfg.HedgeMode {
		orderPos = t.PositionSide
	}
	entry, err := m.ex.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:       t.Symbol,
		Side:         t.OrderSide,
		Type:         exchange.OrderMarket,
		Quantity:     t.quantityText,
		PositionSide: orderPos,
	})
	if err != nil {
		log.Errorf("[%s] entry order failed: %v", t.Symbol, err)
		return fmt.Errorf("%w: %s: %w", ErrEntryFailed, t.Symbol, err)
	}
	t.EntryOrderID = entry.ID

	if !scheduler.Sleep(ctx, m.settle) {
		log.Warnf("[%s] cancelled while waiting for entry fill, placing protective orders anyway", t.Symbol)
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), protectTimeout)
	defer cancel()

	exitSide := t.OrderSide.Opposite()
	place := func(kind exchange.OrderType, stop float64) (int64, error) {
		o, err := m.ex.PlaceOrder(pctx, exchange.OrderRequest{
			Symbol:       t.Symbol,
			Side:         exitSide,
			Type:         kind,
			Quantity:     t.quantityText,
			StopPrice:    decimal.NewFromFloat(stop).StringFixed(int32(max(pricePrec, 0))),
			PositionSide: orderPos,
			ReduceOnly:   true,
		})
		return o.ID, err
	}
	var tpErr, slErr error
	t.TPOrderID, tpErr = place(exchange.OrderTakeProfitMarket, t.TakeProfit)
	if tpErr != nil {
		log.Warnf("[%s] take profit order failed: %v", t.Symbol, tpErr)
	}
	t.SLOrderID, slErr = place(exchange.OrderStopMarket, t.StopLoss)
	if slErr != nil {
		log.Warnf("[%s] stop loss order failed: %v", t.Symbol, slErr)
	}
	t.Protected = tpErr == nil && slErr == nil
	if !t.Protected {
		log.Warnf("[%s] trade %s is open without full protection", t.Symbol, t.ID)
	}
	return nil
}

// Complete 结算交易并移入已完成列表；重复结算返回 ErrTradeNotFound。
func (m *Manager) Complete(ctx context.Context, id string, exitPrice float64, reason ExitReason) (Trade, error) {
	m.mu.Lock()
	idx := slices.IndexFunc(m.active, func(t *Trade) bool { return t.ID == id })
	if idx < 0 {
		m.mu.Unlock()
		return Trade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	t := m.active[idx]
	m.active = slices.Delete(m.active, idx, idx+1)

	raw := strategy.ProfitPct(t.Action, t.EntryPrice, exitPrice)
	t.State = StateCompleted
	t.ExitPrice = exitPrice
	t.ExitTime = m.now()
	t.ExitReason = reason
	t.ProfitPct = raw
	t.LeveragedProfitPct = raw * float64(t.Leverage)
	t.ProfitUSDT = decimal.NewFromFloat(t.EntryPrice).
		Mul(decimal.NewFromFloat(t.Quantity)).
		Mul(decimal.NewFromFloat(raw)).
		Div(decimal.NewFromInt(100)).
		InexactFloat64()
	m.completed = append(m.completed, t)
	out := t.clone()
	m.mu.Unlock()

	m.stats.recordClose(out)
	if out.RealTrade {
		m.cancelProtective(ctx, out)
	}
	log.Infof("[%s] completed %s reason=%s exit=%.4f pnl=%.2f%% (%.2f%% lev) usdt=%.2f",
		out.Symbol, out.ID, reason, exitPrice, out.ProfitPct, out.LeveragedProfitPct, out.ProfitUSDT)
	m.save(ctx, out)
	m.enqueue(CompletedMessage(out))
	return out, nil
}

func (m *Manager) cancelProtective(ctx context.Context, t Trade) {
	cctx := context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, id := range []int64{t.TPOrderID, t.SLOrderID} {
		if id == 0 {
			continue
		}
		g.Go(func() error {
			if err := m.ex.CancelOrder(cctx, t.Symbol, id); err != nil {
				return fmt.Errorf("cancel %d: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warnf("[%s] cancel protective orders: %v", t.Symbol, err)
	}
}

// Close 手动平仓：实盘下以市价减仓单平掉，再按成交价结算。
func (m *Manager) Close(ctx context.Context, id string) (Trade, error) {
	t, ok := m.Get(id)
	if !ok || t.State != StateOpen {
		return Trade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	price, err := m.ex.TickerPrice(ctx, t.Symbol)
	if err != nil {
		return Trade{}, fmt.Errorf("close %s: ticker: %w", t.Symbol, err)
	}
	if t.RealTrade {
		o, err := m.ex.PlaceOrder(ctx, m.closeOrder(t.Symbol, t.OrderSide.Opposite(), t.PositionSide, t.quantityText))
		if err != nil {
			return Trade{}, fmt.Errorf("close %s: %w", t.Symbol, err)
		}
		if o.AvgPrice > 0 {
			price = o.AvgPrice
		}
	}
	return m.Complete(ctx, id, price, ReasonManual)
}

// CloseAll 实盘下平掉交易所全部持仓，然后结算所有活跃交易。
// 返回平掉的交易所持仓数与结算的模拟交易数之和。
func (m *Manager) CloseAll(ctx context.Context) (int, error) {
	closed := 0
	var errs []error
	if m.settings.Snapshot().Trading.UseRealTrading {
		positions, err := m.ex.OpenPositions(ctx)
		if err != nil {
			return 0, fmt.Errorf("close all: positions: %w", err)
		}
		for _, p := range positions {
			if p.Amount == 0 {
				continue
			}
			side := exchange.SideSell
			if p.Amount < 0 {
				side = exchange.SideBuy
			}
			qty := decimal.NewFromFloat(math.Abs(p.Amount)).String()
			if _, err := m.ex.PlaceOrder(ctx, m.closeOrder(p.Symbol, side, p.Side, qty)); err != nil {
				log.Errorf("[%s] close position failed: %v", p.Symbol, err)
				errs = append(errs, fmt.Errorf("%s: %w", p.Symbol, err))
				continue
			}
			closed++
		}
	}
	for _, t := range m.Active() {
		price, err := m.ex.TickerPrice(ctx, t.Symbol)
		if err != nil {
			log.Warnf("[%s] close all: ticker unavailable, settling at entry price: %v", t.Symbol, err)
			price = t.EntryPrice
		}
		if _, err := m.Complete(ctx, t.ID, price, ReasonCloseAll); err != nil {
			if !errors.Is(err, ErrTradeNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		if !t.RealTrade {
			closed++
		}
	}
	return closed, errors.Join(errs...)
}

func (m *Manager) closeOrder(symbol string, side exchange.Side, pos exchange.PositionSide, qty string) exchange.OrderRequest {
	orderPos := exchange.PositionBoth
	if m.settings.Snapshot().Trading.HedgeMode && pos != exchange.PositionBoth {
		orderPos = pos
	}
	return exchange.OrderRequest{
		Symbol:       symbol,
		Side:         side,
		Type:         exchange.OrderMarket,
		Quantity:     qty,
		PositionSide: orderPos,
		ReduceOnly:   true,
	}
}

func (m *Manager) reserve(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.pending[symbol]; busy || m.hasOpenLocked(symbol) {
		return fmt.Errorf("%w: %s", ErrTradeExists, symbol)
	}
	m.pending[symbol] = struct{}{}
	return nil
}

func (m *Manager) release(symbol string) {
	m.mu.Lock()
	delete(m.pending, symbol)
	m.mu.Unlock()
}

func (m *Manager) hasOpenLocked(symbol string) bool {
	return slices.ContainsFunc(m.active, func(t *Trade) bool { return t.Symbol == symbol })
}

func (m *Manager) HasOpen(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasOpenLocked(symbol)
}

func (m *Manager) Active() []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.active)
}

func (m *Manager) Completed() []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.completed)
}

func (m *Manager) Get(id string) (Trade, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, list := range [][]*Trade{m.active, m.completed} {
		for _, t := range list {
			if t.ID == id {
				return t.clone(), true
			}
		}
	}
	return Trade{}, false
}

func cloneAll(src []*Trade) []Trade {
	out := make([]Trade, 0, len(src))
	for _, t := range src {
		out = append(out, t.clone())
	}
	return out
}

func (m *Manager) save(ctx context.Context, t Trade) {
	if m.journal == nil {
		return
	}
	if err := m.journal.SaveTrade(context.WithoutCancel(ctx), t); err != nil {
		log.Warnf("[%s] journal write failed: %v", t.Symbol, err)
	}
}

func (m *Manager) enqueue(text string) {
	if m.notify == nil {
		return
	}
	m.notify.Enqueue(text, nil)
}
