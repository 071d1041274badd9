package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"perpbot/internal/logger"
	"perpbot/internal/pkg/convert"
	"perpbot/internal/pkg/symbol"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 环境变量优先于配置文件中的密钥字段。
const (
	EnvBinanceKey     = "BINANCE_API_KEY"
	EnvBinanceSecret  = "BINANCE_API_SECRET"
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramAdmins = "TELEGRAM_ADMIN_IDS"
	EnvJWTSecret      = "PERPBOT_JWT_SECRET"
)

// Load reads the YAML config at path (following include lists), applies
// defaults and env overrides, and validates the result.
func Load(path string) (*Config, error) {
	loadDotEnv(path)
	files, err := resolveConfigIncludes(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	flattenConfigKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	cfg.applyEnvOverrides()
	if err := cfg.normalizeSymbols(); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	cfg.Path = files[len(files)-1]
	return &cfg, nil
}

// loadDotEnv 尝试加载工作目录与配置目录下的 .env，缺失时忽略。
func loadDotEnv(path string) {
	candidates := []string{".env"}
	if dir := filepath.Dir(strings.TrimSpace(path)); dir != "" && dir != "." {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, file := range candidates {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			logger.Warnf("config: load %s failed: %v", file, err)
		}
	}
}

func (c *Config) applyEnvOverrides() {
	if v, ok := lookupEnv(EnvBinanceKey); ok {
		c.Exchange.APIKey = v
	}
	if v, ok := lookupEnv(EnvBinanceSecret); ok {
		c.Exchange.APISecret = v
	}
	if v, ok := lookupEnv(EnvTelegramToken); ok {
		c.Notify.Telegram.BotToken = v
	}
	if v, ok := lookupEnv(EnvTelegramAdmins); ok {
		ids, _ := convert.ToStringList(v)
		c.Notify.Telegram.AdminIDs = ids
	}
	if v, ok := lookupEnv(EnvJWTSecret); ok {
		c.HTTP.JWTSecret = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (c *Config) normalizeSymbols() error {
	pairs, bad := symbol.NormalizeList(c.Trading.TradingPairs)
	if len(bad) > 0 {
		return fmt.Errorf("trading.trading_pairs contains invalid symbols: %v", bad)
	}
	c.Trading.TradingPairs = pairs
	watch, bad := symbol.NormalizeList(c.Dynamic.WatchlistSymbols)
	if len(bad) > 0 {
		return fmt.Errorf("dynamic.dynamic_watchlist_symbols contains invalid symbols: %v", bad)
	}
	c.Dynamic.WatchlistSymbols = watch
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

func resolveConfigIncludes(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	stack := make(map[string]bool)
	files, err := collectConfigFiles(abs, seen, stack)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []string{abs}, nil
	}
	return files, nil
}

func collectConfigFiles(path string, seen, stack map[string]bool) ([]string, error) {
	path = filepath.Clean(path)
	if stack[path] {
		return nil, fmt.Errorf("include cycle detected: %s", path)
	}
	if seen[path] {
		return nil, nil
	}
	stack[path] = true
	includes, err := parseIncludeList(path)
	if err != nil {
		return nil, fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	dir := filepath.Dir(path)
	var ordered []string
	for _, inc := range includes {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		incPath := inc
		if !filepath.IsAbs(inc) {
			incPath = filepath.Join(dir, inc)
		}
		sub, err := collectConfigFiles(incPath, seen, stack)
		if err != nil {
			return nil, err
		}
		if len(sub) > 0 {
			ordered = append(ordered, sub...)
		}
	}
	delete(stack, path)
	seen[path] = true
	ordered = append(ordered, path)
	return ordered, nil
}

func parseIncludeList(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	if _, ok := raw.(string); ok {
		return nil, fmt.Errorf("include must be a string array")
	}
	return convert.ToStringList(raw)
}

// flattenConfigKeys 记录文件中显式出现的键（小写点分路径），用于区分零值与缺省。
func flattenConfigKeys(prefix string, node any, dest keySet) {
	m, ok := node.(map[string]any)
	if !ok {
		dest.mark(prefix)
		return
	}
	for k, v := range m {
		next := strings.ToLower(strings.TrimSpace(k))
		if next == "" {
			continue
		}
		if prefix != "" {
			next = prefix + "." + next
		}
		flattenConfigKeys(next, v, dest)
	}
}
