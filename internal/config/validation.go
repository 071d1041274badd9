package config

import (
	"fmt"
	"strings"

	"perpbot/internal/scheduler"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Indicators.validate(); err != nil {
		return err
	}
	if err := c.Dynamic.validate(); err != nil {
		return err
	}
	if err := c.HTTP.validate(); err != nil {
		return err
	}
	if c.Trading.UseRealTrading && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("trading.use_real_trading requires exchange.api_key and exchange.api_secret (or %s/%s)", EnvBinanceKey, EnvBinanceSecret)
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	if e.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("exchange.http_timeout_seconds must be > 0")
	}
	if e.ProxyEnabled && strings.TrimSpace(e.ProxyURL) == "" {
		return fmt.Errorf("exchange.proxy_url is required when proxy_enabled is true")
	}
	if e.RateLimitBurst <= 0 {
		return fmt.Errorf("exchange.rate_limit_burst must be > 0")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.QueueSize <= 0 {
		return fmt.Errorf("notify.queue_size must be > 0")
	}
	if !n.Telegram.Enabled {
		return nil
	}
	if strings.TrimSpace(n.Telegram.BotToken) == "" {
		return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled (or %s)", EnvTelegramToken)
	}
	if len(n.Telegram.AdminIDs) == 0 {
		return fmt.Errorf("notify.telegram.admin_ids requires at least one chat id (or %s)", EnvTelegramAdmins)
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if _, ok := LookupMode(t.Mode); !ok {
		return fmt.Errorf("trading.mode must be one of %v, got %q", ModeNames(), t.Mode)
	}
	if err := checkLeverage(t.Leverage); err != nil {
		return fmt.Errorf("trading.leverage: %w", err)
	}
	if err := checkPercent(t.TakeProfit, false); err != nil {
		return fmt.Errorf("trading.take_profit: %w", err)
	}
	if err := checkPercent(t.StopLoss, false); err != nil {
		return fmt.Errorf("trading.stop_loss: %w", err)
	}
	if err := checkPercent(t.PositionSizePercentage, true); err != nil {
		return fmt.Errorf("trading.position_size_percentage: %w", err)
	}
	if t.PositionSizeUSDT <= 0 {
		return fmt.Errorf("trading.position_size_usdt must be > 0")
	}
	if t.MaxDailyTrades < 1 {
		return fmt.Errorf("trading.max_daily_trades must be >= 1")
	}
	if t.DailyProfitTarget <= 0 || t.DailyLossLimit <= 0 {
		return fmt.Errorf("trading.daily_profit_target and daily_loss_limit must be > 0")
	}
	if t.SignalCheckIntervalSeconds < 1 {
		return fmt.Errorf("trading.signal_check_interval must be >= 1")
	}
	if t.PostTradeDelaySeconds < 0 || t.OrderSettleMillis < 0 {
		return fmt.Errorf("trading delays must be >= 0")
	}
	if t.MonitorIntervalSeconds < 1 {
		return fmt.Errorf("trading.monitor_interval_seconds must be >= 1")
	}
	return nil
}

func (i *IndicatorConfig) validate() error {
	if i.RSIPeriod < 2 || i.EMAShort < 2 || i.EMALong < 2 || i.BBPeriod < 2 {
		return fmt.Errorf("indicators periods must be >= 2")
	}
	if i.EMAShort >= i.EMALong {
		return fmt.Errorf("indicators.ema_short (%d) must be < ema_long (%d)", i.EMAShort, i.EMALong)
	}
	if i.RSIOversold <= 0 || i.RSIOverbought >= 100 || i.RSIOversold >= i.RSIOverbought {
		return fmt.Errorf("indicators rsi thresholds must satisfy 0 < oversold < overbought < 100")
	}
	if i.BBStd <= 0 {
		return fmt.Errorf("indicators.bb_std must be > 0")
	}
	if !scheduler.IsExchangeInterval(i.CandleTimeframe) {
		return fmt.Errorf("indicators.candle_timeframe %q is not a futures kline interval", i.CandleTimeframe)
	}
	if i.SignalStrengthThreshold < 0 || i.SignalStrengthThreshold > 100 {
		return fmt.Errorf("indicators.signal_strength_threshold must be within 0-100")
	}
	return nil
}

func (d *DynamicConfig) validate() error {
	if d.PairSelection && len(d.WatchlistSymbols) == 0 {
		return fmt.Errorf("dynamic.dynamic_watchlist_symbols is required when dynamic_pair_selection is on")
	}
	if d.MaxActivePairs < 1 {
		return fmt.Errorf("dynamic.max_active_dynamic_pairs must be >= 1")
	}
	if d.MinVolumeUSDT < 0 {
		return fmt.Errorf("dynamic.min_24h_volume_usdt_for_scan must be >= 0")
	}
	if d.ScanIntervalSeconds < minScanIntervalSeconds {
		return fmt.Errorf("dynamic.dynamic_scan_interval_seconds must be >= %d", minScanIntervalSeconds)
	}
	if d.APICallDelayMillis < 0 {
		return fmt.Errorf("dynamic.api_call_delay_millis must be >= 0")
	}
	return nil
}

func (h *HTTPConfig) validate() error {
	if !h.Enabled {
		return nil
	}
	if strings.TrimSpace(h.JWTSecret) == "" && !h.AllowInsecure {
		return fmt.Errorf("http.jwt_secret is required (or %s); set http.allow_insecure for local use", EnvJWTSecret)
	}
	if h.JWTSecret != "" && len(h.JWTSecret) < 16 {
		return fmt.Errorf("http.jwt_secret must be at least 16 characters")
	}
	return nil
}

const (
	minLeverage            = 1
	maxLeverage            = 125
	minScanIntervalSeconds = 10
)

func checkLeverage(v int) error {
	if v < minLeverage || v > maxLeverage {
		return fmt.Errorf("must be within %d-%d, got %d", minLeverage, maxLeverage, v)
	}
	return nil
}

// checkPercent validates a percentage in (0, 100); allowHundred widens it to (0, 100].
func checkPercent(v float64, allowHundred bool) error {
	if v <= 0 {
		return fmt.Errorf("must be > 0, got %v", v)
	}
	if v > 100 || (!allowHundred && v == 100) {
		return fmt.Errorf("must be < 100, got %v", v)
	}
	return nil
}
