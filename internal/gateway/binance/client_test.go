package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"perpbot/internal/gateway/exchange"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exchangeInfoBody = `{"symbols":[{"symbol":"BTCUSDT","pricePrecision":2,"quantityPrecision":3,"filters":[
{"filterType":"PRICE_FILTER","minPrice":"0.10","maxPrice":"100000","tickSize":"0.10"},
{"filterType":"LOT_SIZE","minQty":"0.001","maxQty":"1000","stepSize":"0.001"},
{"filterType":"MIN_NOTIONAL","notional":"100"}]}]}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "k", APISecret: "s", RESTBaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestConfigBaseURL(t *testing.T) {
	cfg := Config{}
	final := cfg.withDefaults()
	assert.Equal(t, defaultRESTBaseURL, final.BaseURL())
	final.UseTestnet = true
	assert.Equal(t, defaultTestnetBaseURL, final.BaseURL())
}

func TestCandlesParsesKlines(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "klines")
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`[[1000,"10","12","9","11","100",1999,"1100",7,"50","550","0"],
[2000,"11","13","10","10.5","80",2999,"840",5,"40","420","0"]]`))
	})
	out, err := c.Candles(context.Background(), "btc/usdt", "5m", 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1000), out[0].OpenTime)
	assert.InDelta(t, 11, out[0].Close, 1e-9)
	assert.InDelta(t, 10.5, out[1].Close, 1e-9)
	assert.Equal(t, int64(5), out[1].Trades)
}

func TestTickerPriceErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})
	_, err := c.TickerPrice(context.Background(), "FOOUSDT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, exchange.ErrNotFound))

	_, err = c.TickerPrice(context.Background(), "???")
	assert.True(t, errors.Is(err, exchange.ErrNotFound))
}

func TestSymbolPrecisionCachesExchangeInfo(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(exchangeInfoBody))
	})
	p, err := c.SymbolPrecision(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, p.PricePrecision)
	assert.Equal(t, 3, p.QuantityPrecision)
	assert.InDelta(t, 0.001, p.MinQuantity, 1e-12)
	assert.InDelta(t, 0.1, p.TickSize, 1e-12)
	assert.InDelta(t, 100, p.MinNotional, 1e-12)

	_, err = c.SymbolPrecision(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.SymbolPrecision(context.Background(), "ETHUSDT")
	assert.True(t, errors.Is(err, exchange.ErrNotFound))
}

func TestSetPositionModeAlreadySetIsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-4059,"msg":"No need to change position side."}`))
	})
	assert.NoError(t, c.SetPositionMode(context.Background(), true))
}

func TestPlaceOrderOmitsReduceOnlyInHedgeMode(t *testing.T) {
	var query atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		query.Store(r.Form.Encode())
		_, _ = w.Write([]byte(`{"orderId":42,"symbol":"BTCUSDT","status":"NEW","side":"SELL","type":"TAKE_PROFIT_MARKET","avgPrice":"0","updateTime":1}`))
	})
	o, err := c.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol:       "BTCUSDT",
		Side:         exchange.SideSell,
		Type:         exchange.OrderTakeProfitMarket,
		Quantity:     "0.010",
		StopPrice:    "100.60",
		PositionSide: exchange.PositionLong,
		ReduceOnly:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), o.ID)
	assert.Equal(t, exchange.StatusNew, o.Status)
	sent := query.Load().(string)
	assert.Contains(t, sent, "positionSide=LONG")
	assert.Contains(t, sent, "workingType=MARK_PRICE")
	assert.NotContains(t, sent, "reduceOnly")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		code int64
		want error
	}{
		{-2015, exchange.ErrAuth},
		{-1022, exchange.ErrAuth},
		{-1121, exchange.ErrNotFound},
		{-2019, exchange.ErrRejected},
		{-4164, exchange.ErrRejected},
		{-1001, exchange.ErrUnavailable},
	}
	for _, tc := range cases {
		err := classify("op", &common.APIError{Code: tc.code, Message: "x"})
		assert.True(t, errors.Is(err, tc.want), "code %d", tc.code)
	}
	assert.True(t, errors.Is(classify("op", errors.New("dial tcp: refused")), exchange.ErrUnavailable))
	assert.True(t, errors.Is(classify("op", context.Canceled), context.Canceled))
	assert.Nil(t, classify("op", nil))
}

func TestIsNoChange(t *testing.T) {
	assert.True(t, isNoChange(&common.APIError{Code: -4046, Message: "No need to change margin type."}))
	assert.True(t, isNoChange(errors.New("leverage already set")))
	assert.False(t, isNoChange(errors.New("boom")))
	assert.False(t, isNoChange(nil))
}
