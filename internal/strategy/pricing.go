package strategy

import (
	"github.com/shopspring/decimal"
)

// DefaultPricePrecision is used when the symbol's price precision is unknown.
const DefaultPricePrecision = 2

var hundred = decimal.NewFromInt(100)

// ProtectivePrices 计算止盈止损价格，tpPct/slPct 为百分比。
// LONG: tp = p*(1+tp%), sl = p*(1-sl%)；SHORT 方向相反。
func ProtectivePrices(action Action, entry, tpPct, slPct float64, precision int) (tp, sl float64) {
	if precision < 0 {
		precision = DefaultPricePrecision
	}
	p := decimal.NewFromFloat(entry)
	up := decimal.NewFromFloat(tpPct).Div(hundred)
	down := decimal.NewFromFloat(slPct).Div(hundred)
	one := decimal.NewFromInt(1)

	var tpD, slD decimal.Decimal
	switch action {
	case Short:
		tpD = p.Mul(one.Sub(up))
		slD = p.Mul(one.Add(down))
	default:
		tpD = p.Mul(one.Add(up))
		slD = p.Mul(one.Sub(down))
	}
	places := int32(precision)
	return tpD.Round(places).InexactFloat64(), slD.Round(places).InexactFloat64()
}

// RoundPrice rounds to the given number of decimals.
func RoundPrice(price float64, precision int) float64 {
	if precision < 0 {
		precision = DefaultPricePrecision
	}
	return decimal.NewFromFloat(price).Round(int32(precision)).InexactFloat64()
}

// ProfitPct 返回未加杠杆的收益百分比，entry<=0 时为 0。
func ProfitPct(action Action, entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	e := decimal.NewFromFloat(entry)
	x := decimal.NewFromFloat(exit)
	diff := x.Sub(e)
	if action == Short {
		diff = e.Sub(x)
	}
	return diff.Div(e).Mul(hundred).InexactFloat64()
}
