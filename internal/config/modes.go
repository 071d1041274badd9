package config

import "strings"

// TradingMode 是一组预置的杠杆 / 止盈止损 / 仓位参数。
type TradingMode struct {
	Name                string  `json:"name"`
	Leverage            int     `json:"leverage"`
	TakeProfit          float64 `json:"take_profit"`
	StopLoss            float64 `json:"stop_loss"`
	PositionSizePercent float64 `json:"position_size_percent"`
	MaxDailyTrades      int     `json:"max_daily_trades"`
	Description         string  `json:"description"`
}

var tradingModes = []TradingMode{
	{Name: "safe", Leverage: 5, TakeProfit: 0.6, StopLoss: 0.3, PositionSizePercent: 10, MaxDailyTrades: 10,
		Description: "Lower risk with conservative profit targets"},
	{Name: "standard", Leverage: 10, TakeProfit: 1.0, StopLoss: 0.5, PositionSizePercent: 15, MaxDailyTrades: 15,
		Description: "Balanced risk and profit targets"},
	{Name: "aggressive", Leverage: 20, TakeProfit: 1.5, StopLoss: 0.7, PositionSizePercent: 20, MaxDailyTrades: 20,
		Description: "Higher risk with wider profit targets"},
}

func LookupMode(name string) (TradingMode, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, m := range tradingModes {
		if m.Name == name {
			return m, true
		}
	}
	return TradingMode{}, false
}

func Modes() []TradingMode {
	return append([]TradingMode(nil), tradingModes...)
}

func ModeNames() []string {
	out := make([]string, 0, len(tradingModes))
	for _, m := range tradingModes {
		out = append(out, m.Name)
	}
	return out
}

// ApplyTo overwrites the preset-controlled fields of t.
func (m TradingMode) ApplyTo(t *TradingConfig) {
	if t == nil {
		return
	}
	t.Mode = m.Name
	t.Leverage = m.Leverage
	t.TakeProfit = m.TakeProfit
	t.StopLoss = m.StopLoss
	t.PositionSizePercentage = m.PositionSizePercent
	t.MaxDailyTrades = m.MaxDailyTrades
}
