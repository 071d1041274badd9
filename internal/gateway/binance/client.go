package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"perpbot/internal/gateway/exchange"
	"perpbot/internal/logger"
	"perpbot/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"
)

var log = logger.With("binance")

// Client 基于 go-binance SDK 实现 exchange.Client（U 本位合约）。
type Client struct {
	cfg     Config
	api     *futures.Client
	limiter *rate.Limiter

	precision *precisionCache
}

var _ exchange.Client = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	api := futures.NewClient(final.APIKey, final.APISecret)
	api.BaseURL = final.BaseURL()
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	api.HTTPClient = httpClient

	limit := rate.Inf
	if final.RateLimit > 0 {
		limit = rate.Limit(final.RateLimit)
	}
	c := &Client{
		cfg:     final,
		api:     api,
		limiter: rate.NewLimiter(limit, final.Burst),
	}
	c.precision = newPrecisionCache(c.loadExchangeInfo)
	if final.UseTestnet {
		log.Infof("using testnet endpoint %s", api.BaseURL)
	}
	return c, nil
}

// wait 在每次 REST 调用前获取限速令牌。
func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", exchange.ErrUnavailable, err)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return classify("ping", c.api.NewPingService().Do(ctx))
}

func (c *Client) TickerPrice(ctx context.Context, sym string) (float64, error) {
	s, err := exchangeSymbol(sym)
	if err != nil {
		return 0, err
	}
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	prices, err := c.api.NewListPricesService().Symbol(s).Do(ctx)
	if err != nil {
		return 0, classify("ticker price "+s, err)
	}
	for _, p := range prices {
		if p != nil && strings.EqualFold(p.Symbol, s) {
			if v := parseFloat(p.Price); v > 0 {
				return v, nil
			}
		}
	}
	return 0, fmt.Errorf("ticker price %s: %w", s, exchange.ErrNotFound)
}

func (c *Client) Candles(ctx context.Context, sym, interval string, limit int) ([]exchange.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	s, err := exchangeSymbol(sym)
	if err != nil {
		return nil, err
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	kls, err := c.api.NewKlinesService().Symbol(s).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, classify("klines "+s, err)
	}
	out := make([]exchange.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, exchange.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return out, nil
}

const maxKlineLimit = 1500

func (c *Client) Tickers24h(ctx context.Context) ([]exchange.Ticker24h, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	stats, err := c.api.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, classify("24h tickers", err)
	}
	out := make([]exchange.Ticker24h, 0, len(stats))
	for _, st := range stats {
		if st == nil {
			continue
		}
		out = append(out, exchange.Ticker24h{
			Symbol:      st.Symbol,
			LastPrice:   parseFloat(st.LastPrice),
			QuoteVolume: parseFloat(st.QuoteVolume),
			ChangePct:   parseFloat(st.PriceChangePercent),
		})
	}
	return out, nil
}

func (c *Client) Volume24h(ctx context.Context, sym string) (float64, error) {
	s, err := exchangeSymbol(sym)
	if err != nil {
		return 0, err
	}
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	stats, err := c.api.NewListPriceChangeStatsService().Symbol(s).Do(ctx)
	if err != nil {
		return 0, classify("24h volume "+s, err)
	}
	for _, st := range stats {
		if st != nil && strings.EqualFold(st.Symbol, s) {
			return parseFloat(st.QuoteVolume), nil
		}
	}
	return 0, fmt.Errorf("24h volume %s: %w", s, exchange.ErrNotFound)
}

func (c *Client) Balance(ctx context.Context) (exchange.Balance, error) {
	if err := c.wait(ctx); err != nil {
		return exchange.Balance{}, err
	}
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return exchange.Balance{}, classify("account", err)
	}
	for _, asset := range acct.Assets {
		if asset == nil || !strings.EqualFold(asset.Asset, quoteAsset) {
			continue
		}
		return exchange.Balance{
			Total:         parseFloat(asset.WalletBalance),
			Available:     parseFloat(asset.AvailableBalance),
			UnrealizedPnL: parseFloat(asset.UnrealizedProfit),
		}, nil
	}
	return exchange.Balance{}, fmt.Errorf("account asset %s: %w", quoteAsset, exchange.ErrNotFound)
}

const quoteAsset = "USDT"

func (c *Client) SetLeverage(ctx context.Context, sym string, leverage int) error {
	s, err := exchangeSymbol(sym)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err = c.api.NewChangeLeverageService().Symbol(s).Leverage(leverage).Do(ctx)
	if isNoChange(err) {
		return nil
	}
	return classify("set leverage "+s, err)
}

func (c *Client) SetPositionMode(ctx context.Context, hedge bool) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.api.NewChangePositionModeService().DualSide(hedge).Do(ctx)
	if isNoChange(err) {
		log.Debugf("position mode already dual=%v", hedge)
		return nil
	}
	return classify("set position mode", err)
}

func (c *Client) OpenPositions(ctx context.Context) ([]exchange.Position, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	risks, err := c.api.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, classify("position risk", err)
	}
	out := make([]exchange.Position, 0)
	for _, r := range risks {
		if r == nil {
			continue
		}
		amt := parseFloat(r.PositionAmt)
		if amt == 0 {
			continue
		}
		side := exchange.PositionSide(strings.ToUpper(r.PositionSide))
		if side == "" || side == exchange.PositionBoth {
			side = exchange.PositionLong
			if amt < 0 {
				side = exchange.PositionShort
			}
		}
		if amt < 0 {
			amt = -amt
		}
		out = append(out, exchange.Position{
			Symbol:        r.Symbol,
			Side:          side,
			Amount:        amt,
			EntryPrice:    parseFloat(r.EntryPrice),
			MarkPrice:     parseFloat(r.MarkPrice),
			UnrealizedPnL: parseFloat(r.UnRealizedProfit),
		})
	}
	return out, nil
}

func (c *Client) SymbolPrecision(ctx context.Context, sym string) (exchange.SymbolPrecision, error) {
	s, err := exchangeSymbol(sym)
	if err != nil {
		return exchange.SymbolPrecision{}, err
	}
	return c.precision.get(ctx, s)
}

func exchangeSymbol(sym string) (string, error) {
	s := symbol.Normalize(sym)
	if s == "" {
		return "", fmt.Errorf("invalid symbol %q: %w", sym, exchange.ErrNotFound)
	}
	return s, nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
