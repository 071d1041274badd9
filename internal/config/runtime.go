package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"perpbot/internal/logger"
	"perpbot/internal/pkg/convert"
	"perpbot/internal/pkg/symbol"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownParam = errors.New("unknown config parameter")
	ErrInvalidValue = errors.New("invalid config value")
)

// Settings 是运行期可调整参数的快照，组件每个周期读取一次。
type Settings struct {
	Trading    TradingConfig
	Indicators IndicatorConfig
	Dynamic    DynamicConfig
	Risk       RiskConfig
	UseTestnet bool
}

func SettingsFromConfig(cfg *Config) Settings {
	if cfg == nil {
		return Settings{}
	}
	s := Settings{
		Trading:    cfg.Trading,
		Indicators: cfg.Indicators,
		Dynamic:    cfg.Dynamic,
		Risk:       cfg.Risk,
		UseTestnet: cfg.Exchange.UseTestnet,
	}
	return s.clone()
}

func (s Settings) clone() Settings {
	s.Trading.TradingPairs = append([]string(nil), s.Trading.TradingPairs...)
	s.Dynamic.WatchlistSymbols = append([]string(nil), s.Dynamic.WatchlistSymbols...)
	return s
}

func (s Settings) SignalCheckInterval() time.Duration {
	return time.Duration(s.Trading.SignalCheckIntervalSeconds) * time.Second
}

func (s Settings) ScanInterval() time.Duration {
	return time.Duration(s.Dynamic.ScanIntervalSeconds) * time.Second
}

func (s Settings) APICallDelay() time.Duration {
	return time.Duration(s.Dynamic.APICallDelayMillis) * time.Millisecond
}

func (s Settings) MonitorInterval() time.Duration {
	return time.Duration(s.Trading.MonitorIntervalSeconds) * time.Second
}

// ChangeListener 在参数成功更新后被调用。
type ChangeListener func(param string, value any)

// Runtime owns the mutable trading configuration. Every write goes through
// Update, which coerces the value to the parameter's type and validates it.
type Runtime struct {
	mu        sync.RWMutex
	settings  Settings
	pairs     *PairSet
	listeners []ChangeListener
}

func NewRuntime(cfg *Config) *Runtime {
	s := SettingsFromConfig(cfg)
	return &Runtime{
		settings: s,
		pairs:    NewPairSet(s.Trading.TradingPairs),
	}
}

// Pairs exposes the guarded active trading-pair set.
func (r *Runtime) Pairs() *PairSet {
	return r.pairs
}

// Snapshot returns a deep copy; TradingPairs reflects the live pair set.
func (r *Runtime) Snapshot() Settings {
	r.mu.RLock()
	s := r.settings.clone()
	r.mu.RUnlock()
	s.Trading.TradingPairs = r.pairs.Snapshot()
	return s
}

func (r *Runtime) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Update sets one named parameter. Unknown names return ErrUnknownParam;
// values that fail coercion or validation return ErrInvalidValue and leave
// the configuration untouched.
func (r *Runtime) Update(name string, value any) error {
	name = strings.ToLower(strings.TrimSpace(name))
	p, ok := paramIndex[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	coerced, err := p.kind.coerce(value)
	if err != nil {
		return fmt.Errorf("%w: %s expects %s: %v", ErrInvalidValue, name, p.kind, err)
	}
	r.mu.Lock()
	next := r.settings.clone()
	next.Trading.TradingPairs = r.pairs.Snapshot()
	if err := p.set(&next, coerced); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
	}
	r.settings = next
	if name == ParamTradingPairs {
		r.pairs.Replace(next.Trading.TradingPairs)
	}
	applied := p.get(&next)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.Unlock()

	logger.Infof("config: %s updated to %v", name, applied)
	for _, fn := range listeners {
		fn(name, applied)
	}
	return nil
}

// ApplyMode applies the named trading-mode preset.
func (r *Runtime) ApplyMode(name string) (TradingMode, error) {
	mode, ok := LookupMode(name)
	if !ok {
		return TradingMode{}, fmt.Errorf("%w: trading_mode must be one of %v", ErrInvalidValue, ModeNames())
	}
	return mode, r.Update(ParamTradingMode, mode.Name)
}

// Get returns the current value of a parameter.
func (r *Runtime) Get(name string) (any, error) {
	p, ok := paramIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	s := r.Snapshot()
	return p.get(&s), nil
}

// Values returns every settable parameter with its current value.
func (r *Runtime) Values() map[string]any {
	s := r.Snapshot()
	return paramValues(&s)
}

// YAML renders the settable parameters (no credentials).
func (r *Runtime) YAML() ([]byte, error) {
	return yaml.Marshal(r.Values())
}

// ParamNames lists the settable parameters in sorted order.
func ParamNames() []string {
	out := make([]string, 0, len(paramIndex))
	for name := range paramIndex {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ParamKind reports the type name a parameter expects.
func ParamKind(name string) (string, bool) {
	p, ok := paramIndex[name]
	if !ok {
		return "", false
	}
	return p.kind.String(), true
}

func paramValues(s *Settings) map[string]any {
	out := make(map[string]any, len(paramIndex))
	for name, p := range paramIndex {
		out[name] = p.get(s)
	}
	return out
}

type paramKind int

const (
	kindString paramKind = iota
	kindBool
	kindInt
	kindFloat
	kindList
)

func (k paramKind) String() string {
	switch k {
	case kindBool:
		return "bool"
	case kindInt:
		return "int"
	case kindFloat:
		return "float"
	case kindList:
		return "list"
	default:
		return "string"
	}
}

func (k paramKind) coerce(v any) (any, error) {
	switch k {
	case kindBool:
		return convert.ToBool(v)
	case kindInt:
		return convert.ToInt(v)
	case kindFloat:
		return convert.ToFloat64(v)
	case kindList:
		return convert.ToStringList(v)
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("got %T", v)
		}
		return strings.TrimSpace(s), nil
	}
}

type param struct {
	name string
	kind paramKind
	get  func(s *Settings) any
	set  func(s *Settings, v any) error
}

const (
	ParamTradingMode            = "trading_mode"
	ParamLeverage               = "leverage"
	ParamTakeProfit             = "take_profit"
	ParamStopLoss               = "stop_loss"
	ParamUsePercentage          = "use_percentage"
	ParamPositionSizePercentage = "position_size_percentage"
	ParamPositionSizeUSDT       = "position_size_usdt"
	ParamMaxDailyTrades         = "max_daily_trades"
	ParamDailyProfitTarget      = "daily_profit_target"
	ParamDailyLossLimit         = "daily_loss_limit"
	ParamTradingPairs           = "trading_pairs"
	ParamDynamicPairSelection   = "dynamic_pair_selection"
	ParamDynamicWatchlist       = "dynamic_watchlist_symbols"
	ParamMaxActiveDynamicPairs  = "max_active_dynamic_pairs"
	ParamMinVolumeUSDT          = "min_24h_volume_usdt_for_scan"
	ParamDynamicScanInterval    = "dynamic_scan_interval_seconds"
	ParamUseTestnet             = "use_testnet"
	ParamUseRealTrading         = "use_real_trading"
	ParamSignalCheckInterval    = "signal_check_interval"
	ParamSignalThreshold        = "signal_strength_threshold"
)

var paramIndex = buildParamIndex(
	param{name: ParamTradingMode, kind: kindString,
		get: func(s *Settings) any { return s.Trading.Mode },
		set: func(s *Settings, v any) error {
			mode, ok := LookupMode(v.(string))
			if !ok {
				return fmt.Errorf("must be one of %v", ModeNames())
			}
			mode.ApplyTo(&s.Trading)
			return nil
		}},
	param{name: ParamLeverage, kind: kindInt,
		get: func(s *Settings) any { return s.Trading.Leverage },
		set: func(s *Settings, v any) error {
			if err := checkLeverage(v.(int)); err != nil {
				return err
			}
			s.Trading.Leverage = v.(int)
			return nil
		}},
	floatParam(ParamTakeProfit, func(s *Settings) *float64 { return &s.Trading.TakeProfit }, func(f float64) error { return checkPercent(f, false) }),
	floatParam(ParamStopLoss, func(s *Settings) *float64 { return &s.Trading.StopLoss }, func(f float64) error { return checkPercent(f, false) }),
	boolParam(ParamUsePercentage, func(s *Settings) *bool { return &s.Trading.UsePercentage }),
	floatParam(ParamPositionSizePercentage, func(s *Settings) *float64 { return &s.Trading.PositionSizePercentage }, func(f float64) error { return checkPercent(f, true) }),
	floatParam(ParamPositionSizeUSDT, func(s *Settings) *float64 { return &s.Trading.PositionSizeUSDT }, positive),
	intParam(ParamMaxDailyTrades, func(s *Settings) *int { return &s.Trading.MaxDailyTrades }, 1),
	floatParam(ParamDailyProfitTarget, func(s *Settings) *float64 { return &s.Trading.DailyProfitTarget }, positive),
	floatParam(ParamDailyLossLimit, func(s *Settings) *float64 { return &s.Trading.DailyLossLimit }, positive),
	symbolListParam(ParamTradingPairs, func(s *Settings) *[]string { return &s.Trading.TradingPairs }, true),
	boolParam(ParamDynamicPairSelection, func(s *Settings) *bool { return &s.Dynamic.PairSelection }),
	symbolListParam(ParamDynamicWatchlist, func(s *Settings) *[]string { return &s.Dynamic.WatchlistSymbols }, false),
	intParam(ParamMaxActiveDynamicPairs, func(s *Settings) *int { return &s.Dynamic.MaxActivePairs }, 1),
	floatParam(ParamMinVolumeUSDT, func(s *Settings) *float64 { return &s.Dynamic.MinVolumeUSDT }, nonNegative),
	intParam(ParamDynamicScanInterval, func(s *Settings) *int { return &s.Dynamic.ScanIntervalSeconds }, minScanIntervalSeconds),
	boolParam(ParamUseTestnet, func(s *Settings) *bool { return &s.UseTestnet }),
	boolParam(ParamUseRealTrading, func(s *Settings) *bool { return &s.Trading.UseRealTrading }),
	intParam(ParamSignalCheckInterval, func(s *Settings) *int { return &s.Trading.SignalCheckIntervalSeconds }, 1),
	param{name: ParamSignalThreshold, kind: kindInt,
		get: func(s *Settings) any { return s.Indicators.SignalStrengthThreshold },
		set: func(s *Settings, v any) error {
			n := v.(int)
			if n < 0 || n > 100 {
				return fmt.Errorf("must be within 0-100, got %d", n)
			}
			s.Indicators.SignalStrengthThreshold = n
			return nil
		}},
)

func buildParamIndex(params ...param) map[string]param {
	out := make(map[string]param, len(params))
	for _, p := range params {
		out[p.name] = p
	}
	return out
}

func floatParam(name string, field func(*Settings) *float64, check func(float64) error) param {
	return param{name: name, kind: kindFloat,
		get: func(s *Settings) any { return *field(s) },
		set: func(s *Settings, v any) error {
			f := v.(float64)
			if err := check(f); err != nil {
				return err
			}
			*field(s) = f
			return nil
		}}
}

func intParam(name string, field func(*Settings) *int, min int) param {
	return param{name: name, kind: kindInt,
		get: func(s *Settings) any { return *field(s) },
		set: func(s *Settings, v any) error {
			n := v.(int)
			if n < min {
				return fmt.Errorf("must be >= %d, got %d", min, n)
			}
			*field(s) = n
			return nil
		}}
}

func boolParam(name string, field func(*Settings) *bool) param {
	return param{name: name, kind: kindBool,
		get: func(s *Settings) any { return *field(s) },
		set: func(s *Settings, v any) error {
			*field(s) = v.(bool)
			return nil
		}}
}

func symbolListParam(name string, field func(*Settings) *[]string, allowEmpty bool) param {
	return param{name: name, kind: kindList,
		get: func(s *Settings) any { return append([]string(nil), (*field(s))...) },
		set: func(s *Settings, v any) error {
			list, bad := symbol.NormalizeList(v.([]string))
			if len(bad) > 0 {
				return fmt.Errorf("invalid symbols %v", bad)
			}
			if len(list) == 0 && !allowEmpty {
				return fmt.Errorf("list must not be empty")
			}
			*field(s) = list
			return nil
		}}
}

func positive(f float64) error {
	if f <= 0 {
		return fmt.Errorf("must be > 0, got %v", f)
	}
	return nil
}

func nonNegative(f float64) error {
	if f < 0 {
		return fmt.Errorf("must be >= 0, got %v", f)
	}
	return nil
}
