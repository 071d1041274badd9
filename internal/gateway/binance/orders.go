package binance

import (
	"context"
	"fmt"
	"time"

	"perpbot/internal/gateway/exchange"

	"github.com/adshao/go-binance/v2/futures"
)

// PlaceOrder 提交合约订单。条件单使用标记价格触发。
func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	s, err := exchangeSymbol(req.Symbol)
	if err != nil {
		return exchange.Order{}, err
	}
	if req.Side == "" || req.Type == "" {
		return exchange.Order{}, fmt.Errorf("order side and type are required")
	}
	if err := c.wait(ctx); err != nil {
		return exchange.Order{}, err
	}
	svc := c.api.NewCreateOrderService().
		Symbol(s).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type))
	if req.Quantity != "" {
		svc = svc.Quantity(req.Quantity)
	}
	if req.StopPrice != "" {
		svc = svc.StopPrice(req.StopPrice).WorkingType(futures.WorkingTypeMarkPrice)
	}
	if req.PositionSide != "" {
		svc = svc.PositionSide(futures.PositionSideType(req.PositionSide))
	}
	// 双向持仓模式下交易所拒绝 reduceOnly，positionSide 已保证只减仓。
	if req.ReduceOnly && !hedgeSide(req.PositionSide) {
		svc = svc.ReduceOnly(true)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return exchange.Order{}, classify(fmt.Sprintf("place %s %s %s", req.Type, req.Side, s), err)
	}
	log.Infof("order placed %s %s %s id=%d status=%s", s, req.Side, req.Type, res.OrderID, res.Status)
	return exchange.Order{
		ID:          res.OrderID,
		Symbol:      res.Symbol,
		Side:        exchange.Side(res.Side),
		Type:        exchange.OrderType(res.Type),
		Status:      exchange.OrderStatus(res.Status),
		AvgPrice:    parseFloat(res.AvgPrice),
		ExecutedQty: parseFloat(res.ExecutedQuantity),
		UpdatedAt:   millis(res.UpdateTime),
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, sym string, orderID int64) error {
	s, err := exchangeSymbol(sym)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err = c.api.NewCancelOrderService().Symbol(s).OrderID(orderID).Do(ctx)
	return classify(fmt.Sprintf("cancel %s #%d", s, orderID), err)
}

func (c *Client) OrderStatus(ctx context.Context, sym string, orderID int64) (exchange.Order, error) {
	s, err := exchangeSymbol(sym)
	if err != nil {
		return exchange.Order{}, err
	}
	if err := c.wait(ctx); err != nil {
		return exchange.Order{}, err
	}
	o, err := c.api.NewGetOrderService().Symbol(s).OrderID(orderID).Do(ctx)
	if err != nil {
		return exchange.Order{}, classify(fmt.Sprintf("order %s #%d", s, orderID), err)
	}
	avg := parseFloat(o.AvgPrice)
	if avg <= 0 {
		avg = parseFloat(o.StopPrice)
	}
	return exchange.Order{
		ID:          o.OrderID,
		Symbol:      o.Symbol,
		Side:        exchange.Side(o.Side),
		Type:        exchange.OrderType(o.Type),
		Status:      exchange.OrderStatus(o.Status),
		AvgPrice:    avg,
		ExecutedQty: parseFloat(o.ExecutedQuantity),
		UpdatedAt:   millis(o.UpdateTime),
	}, nil
}

func hedgeSide(ps exchange.PositionSide) bool {
	return ps == exchange.PositionLong || ps == exchange.PositionShort
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
