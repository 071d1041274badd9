package config

import "strings"

// Config 是 perpbot 的主配置载体。
type Config struct {
	App        AppConfig       `toml:"app"`
	Exchange   ExchangeConfig  `toml:"exchange"`
	Notify     NotifyConfig    `toml:"notify"`
	Trading    TradingConfig   `toml:"trading"`
	Indicators IndicatorConfig `toml:"indicators"`
	Dynamic    DynamicConfig   `toml:"dynamic"`
	Risk       RiskConfig      `toml:"risk"`
	HTTP       HTTPConfig      `toml:"http"`
	Journal    JournalConfig   `toml:"journal"`

	// Path is the file the config was loaded from; used for hot reload.
	Path string `toml:"-"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogPath   string `toml:"log_path"`
	AutoStart bool   `toml:"auto_start"`
	Watch     bool   `toml:"watch_config"`
}

// ExchangeConfig 描述 Binance U 本位合约接入参数。
type ExchangeConfig struct {
	APIKey             string  `toml:"api_key"`
	APISecret          string  `toml:"api_secret"`
	UseTestnet         bool    `toml:"use_testnet"`
	RESTBaseURL        string  `toml:"rest_base_url"`
	TestnetBaseURL     string  `toml:"testnet_base_url"`
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds"`
	ProxyEnabled       bool    `toml:"proxy_enabled"`
	ProxyURL           string  `toml:"proxy_url"`
	RateLimitPerSecond float64 `toml:"rate_limit_per_second"`
	RateLimitBurst     int     `toml:"rate_limit_burst"`
}

type NotifyConfig struct {
	QueueSize int            `toml:"queue_size"`
	Telegram  TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled        bool     `toml:"enabled"`
	BotToken       string   `toml:"bot_token"`
	AdminIDs       []string `toml:"admin_ids"`
	APIBase        string   `toml:"api_base"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// TradingConfig 控制交易模式、仓位与每日风控阈值。
type TradingConfig struct {
	Mode                       string   `toml:"mode"`
	ApplyModeOnStart           bool     `toml:"apply_mode_on_start"`
	Leverage                   int      `toml:"leverage"`
	TakeProfit                 float64  `toml:"take_profit"`
	StopLoss                   float64  `toml:"stop_loss"`
	UsePercentage              bool     `toml:"use_percentage"`
	PositionSizePercentage     float64  `toml:"position_size_percentage"`
	PositionSizeUSDT           float64  `toml:"position_size_usdt"`
	MaxDailyTrades             int      `toml:"max_daily_trades"`
	DailyProfitTarget          float64  `toml:"daily_profit_target"`
	DailyLossLimit             float64  `toml:"daily_loss_limit"`
	UseRealTrading             bool     `toml:"use_real_trading"`
	HedgeMode                  bool     `toml:"hedge_mode"`
	TradingPairs               []string `toml:"trading_pairs"`
	SignalCheckIntervalSeconds int      `toml:"signal_check_interval"`
	PostTradeDelaySeconds      int      `toml:"post_trade_delay_seconds"`
	OrderSettleMillis          int      `toml:"order_settle_millis"`
	MonitorIntervalSeconds     int      `toml:"monitor_interval_seconds"`
}

// IndicatorConfig 描述 RSI / EMA / 布林带参数。
type IndicatorConfig struct {
	RSIPeriod               int     `toml:"rsi_period"`
	RSIOversold             float64 `toml:"rsi_oversold"`
	RSIOverbought           float64 `toml:"rsi_overbought"`
	EMAShort                int     `toml:"ema_short"`
	EMALong                 int     `toml:"ema_long"`
	BBPeriod                int     `toml:"bb_period"`
	BBStd                   float64 `toml:"bb_std"`
	CandleTimeframe         string  `toml:"candle_timeframe"`
	SignalStrengthThreshold int     `toml:"signal_strength_threshold"`
}

// DynamicConfig 控制动态交易对扫描。
type DynamicConfig struct {
	PairSelection       bool     `toml:"dynamic_pair_selection"`
	WatchlistSymbols    []string `toml:"dynamic_watchlist_symbols"`
	MaxActivePairs      int      `toml:"max_active_dynamic_pairs"`
	MinVolumeUSDT       float64  `toml:"min_24h_volume_usdt_for_scan"`
	ScanIntervalSeconds int      `toml:"dynamic_scan_interval_seconds"`
	APICallDelayMillis  int      `toml:"api_call_delay_millis"`
}

type RiskConfig struct {
	RefreshBalance bool `toml:"refresh_balance"`
}

type HTTPConfig struct {
	Enabled       bool   `toml:"enabled"`
	Addr          string `toml:"addr"`
	JWTSecret     string `toml:"jwt_secret"`
	AllowInsecure bool   `toml:"allow_insecure"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
}

type JournalConfig struct {
	Path string `toml:"path"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
