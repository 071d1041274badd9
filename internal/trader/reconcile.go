package trader

import (
	"context"

	"perpbot/internal/gateway/exchange"
	"perpbot/internal/strategy"
)

// Reconcile 检查活跃交易是否已触发止盈或止损并结算，返回结算数量。
// 实盘交易查询 TP/SL 订单状态，模拟交易比较最新价格。
func (m *Manager) Reconcile(ctx context.Context) int {
	done := 0
	for _, t := range m.Active() {
		if ctx.Err() != nil {
			break
		}
		var (
			price  float64
			reason ExitReason
			hit    bool
		)
		if t.RealTrade {
			price, reason, hit = m.checkOrders(ctx, t)
		} else {
			price, reason, hit = m.checkPrice(ctx, t)
		}
		if !hit {
			continue
		}
		if _, err := m.Complete(ctx, t.ID, price, reason); err == nil {
			done++
		}
	}
	return done
}

func (m *Manager) checkOrders(ctx context.Context, t Trade) (float64, ExitReason, bool) {
	legs := []struct {
		id       int64
		reason   ExitReason
		fallback float64
	}{
		{t.TPOrderID, ReasonTakeProfit, t.TakeProfit},
		{t.SLOrderID, ReasonStopLoss, t.StopLoss},
	}
	for _, leg := range legs {
		if leg.id == 0 {
			continue
		}
		o, err := m.ex.OrderStatus(ctx, t.Symbol, leg.id)
		if err != nil {
			log.Warnf("[%s] order %d status: %v", t.Symbol, leg.id, err)
			continue
		}
		if o.Status != exchange.StatusFilled {
			continue
		}
		price := o.AvgPrice
		if price <= 0 {
			price = leg.fallback
		}
		return price, leg.reason, true
	}
	return 0, "", false
}

func (m *Manager) checkPrice(ctx context.Context, t Trade) (float64, ExitReason, bool) {
	price, err := m.ex.TickerPrice(ctx, t.Symbol)
	if err != nil {
		log.Warnf("[%s] ticker: %v", t.Symbol, err)
		return 0, "", false
	}
	switch t.Action {
	case strategy.Long:
		if price >= t.TakeProfit {
			return price, ReasonTakeProfit, true
		}
		if price <= t.StopLoss {
			return price, ReasonStopLoss, true
		}
	case strategy.Short:
		if price <= t.TakeProfit {
			return price, ReasonTakeProfit, true
		}
		if price >= t.StopLoss {
			return price, ReasonStopLoss, true
		}
	}
	return 0, "", false
}
