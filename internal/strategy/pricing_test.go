package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProtectivePrices(t *testing.T) {
	tp, sl := ProtectivePrices(Long, 100, 0.6, 0.3, 2)
	assert.Equal(t, 100.6, tp)
	assert.Equal(t, 99.7, sl)

	tp, sl = ProtectivePrices(Short, 100, 0.6, 0.3, 2)
	assert.Equal(t, 99.4, tp)
	assert.Equal(t, 100.3, sl)

	tp, sl = ProtectivePrices(Long, 0.123456, 1, 0.5, 4)
	assert.Equal(t, 0.1247, tp)
	assert.Equal(t, 0.1228, sl)

	tp, _ = ProtectivePrices(Long, 100, 1.005, 1, -1)
	assert.Equal(t, 101.01, tp)
}

func TestRoundPriceAndProfit(t *testing.T) {
	assert.Equal(t, 1.24, RoundPrice(1.235, 2))
	assert.Equal(t, 3.0, RoundPrice(2.9999, 0))

	assert.InDelta(t, 1.0, ProfitPct(Long, 100, 101), 1e-12)
	assert.InDelta(t, -1.0, ProfitPct(Long, 100, 99), 1e-12)
	assert.InDelta(t, 1.0, ProfitPct(Short, 100, 99), 1e-12)
	assert.Zero(t, ProfitPct(Long, 0, 10))
}
