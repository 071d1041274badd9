package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultRESTBaseURL        = "https://fapi.binance.com"
	defaultTestnetBaseURL     = "https://testnet.binancefuture.com"
	defaultHTTPTimeoutSeconds = 15
	defaultRateLimitPerSecond = 10
	defaultRateLimitBurst     = 20
	defaultNotifyQueueSize    = 256
	defaultTelegramAPIBase    = "https://api.telegram.org"
	defaultTelegramTimeout    = 10
	defaultTradingMode        = "safe"
	defaultLeverage           = 5
	defaultTakeProfit         = 0.6
	defaultStopLoss           = 0.3
	defaultPositionSizePct    = 10.0
	defaultPositionSizeUSDT   = 100
	defaultMaxDailyTrades     = 10
	defaultDailyProfitTarget  = 5.0
	defaultDailyLossLimit     = 3.0
	defaultSignalInterval     = 30
	defaultPostTradeDelay     = 2
	defaultOrderSettleMillis  = 1000
	defaultMonitorInterval    = 15
	defaultRSIPeriod          = 14
	defaultRSIOversold        = 30
	defaultRSIOverbought      = 70
	defaultEMAShort           = 20
	defaultEMALong            = 50
	defaultBBPeriod           = 20
	defaultBBStd              = 2.0
	defaultCandleTimeframe    = "5m"
	defaultSignalThreshold    = 30
	defaultMaxActivePairs     = 3
	defaultMinVolumeUSDT      = 5_000_000
	defaultScanInterval       = 300
	defaultAPICallDelayMillis = 500
	defaultHTTPAddr           = ":9991"
	defaultTokenTTLHours      = 24
)

var (
	defaultTradingPairs = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "ADAUSDT", "SOLUSDT"}
	defaultWatchlist    = []string{
		"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "ADAUSDT", "XRPUSDT", "DOGEUSDT",
		"AVAXUSDT", "DOTUSDT", "MATICUSDT", "SHIBUSDT", "TRXUSDT", "LINKUSDT",
		"LTCUSDT", "ATOMUSDT", "ETCUSDT", "BCHUSDT", "XLMUSDT", "NEARUSDT", "ALGOUSDT",
		"FTMUSDT", "MANAUSDT", "SANDUSDT", "APEUSDT", "AXSUSDT", "FILUSDT", "ICPUSDT",
	}
)

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults(keySet{})
	return c
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Indicators.applyDefaults(keys)
	c.Dynamic.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		boolFieldDefault("app.watch_config", &a.Watch, true),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.rest_base_url", &e.RESTBaseURL, defaultRESTBaseURL),
		stringFieldDefault("exchange.testnet_base_url", &e.TestnetBaseURL, defaultTestnetBaseURL),
		intFieldDefault("exchange.http_timeout_seconds", &e.HTTPTimeoutSeconds, defaultHTTPTimeoutSeconds),
		intFieldDefault("exchange.rate_limit_burst", &e.RateLimitBurst, defaultRateLimitBurst),
		fieldDefault{
			key:   "exchange.rate_limit_per_second",
			need:  func() bool { return e.RateLimitPerSecond <= 0 },
			apply: func() { e.RateLimitPerSecond = defaultRateLimitPerSecond },
		},
	)
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("notify.queue_size", &n.QueueSize, defaultNotifyQueueSize),
		stringFieldDefault("notify.telegram.api_base", &n.Telegram.APIBase, defaultTelegramAPIBase),
		intFieldDefault("notify.telegram.timeout_seconds", &n.Telegram.TimeoutSeconds, defaultTelegramTimeout),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("trading.mode", &t.Mode, defaultTradingMode),
		boolFieldDefault("trading.apply_mode_on_start", &t.ApplyModeOnStart, true),
		intFieldDefault("trading.leverage", &t.Leverage, defaultLeverage),
		floatFieldDefault("trading.take_profit", &t.TakeProfit, defaultTakeProfit),
		floatFieldDefault("trading.stop_loss", &t.StopLoss, defaultStopLoss),
		boolFieldDefault("trading.use_percentage", &t.UsePercentage, true),
		floatFieldDefault("trading.position_size_percentage", &t.PositionSizePercentage, defaultPositionSizePct),
		floatFieldDefault("trading.position_size_usdt", &t.PositionSizeUSDT, defaultPositionSizeUSDT),
		intFieldDefault("trading.max_daily_trades", &t.MaxDailyTrades, defaultMaxDailyTrades),
		floatFieldDefault("trading.daily_profit_target", &t.DailyProfitTarget, defaultDailyProfitTarget),
		floatFieldDefault("trading.daily_loss_limit", &t.DailyLossLimit, defaultDailyLossLimit),
		boolFieldDefault("trading.hedge_mode", &t.HedgeMode, true),
		listFieldDefault("trading.trading_pairs", &t.TradingPairs, defaultTradingPairs),
		intFieldDefault("trading.signal_check_interval", &t.SignalCheckIntervalSeconds, defaultSignalInterval),
		intFieldDefault("trading.post_trade_delay_seconds", &t.PostTradeDelaySeconds, defaultPostTradeDelay),
		intFieldDefault("trading.order_settle_millis", &t.OrderSettleMillis, defaultOrderSettleMillis),
		intFieldDefault("trading.monitor_interval_seconds", &t.MonitorIntervalSeconds, defaultMonitorInterval),
	)
}

func (i *IndicatorConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("indicators.rsi_period", &i.RSIPeriod, defaultRSIPeriod),
		floatFieldDefault("indicators.rsi_oversold", &i.RSIOversold, defaultRSIOversold),
		floatFieldDefault("indicators.rsi_overbought", &i.RSIOverbought, defaultRSIOverbought),
		intFieldDefault("indicators.ema_short", &i.EMAShort, defaultEMAShort),
		intFieldDefault("indicators.ema_long", &i.EMALong, defaultEMALong),
		intFieldDefault("indicators.bb_period", &i.BBPeriod, defaultBBPeriod),
		floatFieldDefault("indicators.bb_std", &i.BBStd, defaultBBStd),
		stringFieldDefault("indicators.candle_timeframe", &i.CandleTimeframe, defaultCandleTimeframe),
		intFieldDefault("indicators.signal_strength_threshold", &i.SignalStrengthThreshold, defaultSignalThreshold),
	)
}

func (d *DynamicConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("dynamic.dynamic_pair_selection", &d.PairSelection, true),
		listFieldDefault("dynamic.dynamic_watchlist_symbols", &d.WatchlistSymbols, defaultWatchlist),
		intFieldDefault("dynamic.max_active_dynamic_pairs", &d.MaxActivePairs, defaultMaxActivePairs),
		floatFieldDefault("dynamic.min_24h_volume_usdt_for_scan", &d.MinVolumeUSDT, defaultMinVolumeUSDT),
		intFieldDefault("dynamic.dynamic_scan_interval_seconds", &d.ScanIntervalSeconds, defaultScanInterval),
		intFieldDefault("dynamic.api_call_delay_millis", &d.APICallDelayMillis, defaultAPICallDelayMillis),
	)
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("http.enabled", &h.Enabled, true),
		stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr),
		intFieldDefault("http.token_ttl_hours", &h.TokenTTLHours, defaultTokenTTLHours),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func listFieldDefault(key string, target *[]string, def []string) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && len(*target) == 0 },
		apply: func() {
			if target != nil {
				*target = append([]string(nil), def...)
			}
		},
	}
}
