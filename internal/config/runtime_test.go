package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults(keySet{})
	return cfg
}

func TestRuntimeUpdateCoercesAndValidates(t *testing.T) {
	rt := NewRuntime(testConfig())

	require.NoError(t, rt.Update("leverage", "12"))
	require.NoError(t, rt.Update("take_profit", 0.9))
	require.NoError(t, rt.Update("dynamic_pair_selection", "off"))
	require.NoError(t, rt.Update("max_active_dynamic_pairs", float64(4)))

	s := rt.Snapshot()
	assert.Equal(t, 12, s.Trading.Leverage)
	assert.InDelta(t, 0.9, s.Trading.TakeProfit, 1e-9)
	assert.False(t, s.Dynamic.PairSelection)
	assert.Equal(t, 4, s.Dynamic.MaxActivePairs)

	cases := []struct {
		name  string
		param string
		value any
	}{
		{"leverage too high", "leverage", 500},
		{"leverage fractional", "leverage", 2.5},
		{"tp zero", "take_profit", 0},
		{"pct above hundred", "position_size_percentage", 101},
		{"not a bool", "use_real_trading", "maybe"},
		{"scan interval too short", "dynamic_scan_interval_seconds", 2},
		{"empty watchlist", "dynamic_watchlist_symbols", []string{}},
		{"bad pair", "trading_pairs", []any{"BTCUSDT", "?"}},
		{"unknown mode", "trading_mode", "yolo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := rt.Update(tc.param, tc.value)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidValue))
		})
	}
	assert.Equal(t, 12, rt.Snapshot().Trading.Leverage)
}

func TestRuntimeUnknownParam(t *testing.T) {
	rt := NewRuntime(testConfig())
	err := rt.Update("api_secret", "x")
	assert.True(t, errors.Is(err, ErrUnknownParam))
	_, err = rt.Get("nope")
	assert.True(t, errors.Is(err, ErrUnknownParam))
}

func TestRuntimeTradingModeAppliesPreset(t *testing.T) {
	rt := NewRuntime(testConfig())
	mode, err := rt.ApplyMode("aggressive")
	require.NoError(t, err)
	assert.Equal(t, "aggressive", mode.Name)

	s := rt.Snapshot()
	assert.Equal(t, "aggressive", s.Trading.Mode)
	assert.Equal(t, 20, s.Trading.Leverage)
	assert.InDelta(t, 1.5, s.Trading.TakeProfit, 1e-9)
	assert.InDelta(t, 0.7, s.Trading.StopLoss, 1e-9)
	assert.InDelta(t, 20, s.Trading.PositionSizePercentage, 1e-9)
	assert.Equal(t, 20, s.Trading.MaxDailyTrades)
}

func TestRuntimeTradingPairsShareSet(t *testing.T) {
	rt := NewRuntime(testConfig())
	require.NoError(t, rt.Update("trading_pairs", "sol/usdt, doge/usdt"))
	assert.Equal(t, []string{"SOLUSDT", "DOGEUSDT"}, rt.Pairs().Snapshot())

	rt.Pairs().Add("BTCUSDT")
	assert.Equal(t, []string{"SOLUSDT", "DOGEUSDT", "BTCUSDT"}, rt.Snapshot().Trading.TradingPairs)
}

func TestRuntimeSnapshotIsolated(t *testing.T) {
	rt := NewRuntime(testConfig())
	s := rt.Snapshot()
	s.Dynamic.WatchlistSymbols[0] = "MUTATED"
	assert.NotEqual(t, "MUTATED", rt.Snapshot().Dynamic.WatchlistSymbols[0])
}

func TestRuntimeOnChange(t *testing.T) {
	rt := NewRuntime(testConfig())
	var got []string
	rt.OnChange(func(param string, value any) {
		got = append(got, param)
	})
	require.NoError(t, rt.Update("use_testnet", true))
	assert.Error(t, rt.Update("leverage", 0))
	assert.Equal(t, []string{"use_testnet"}, got)
	assert.True(t, rt.Snapshot().UseTestnet)
}

func TestRuntimeYAMLHasNoSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.Exchange.APISecret = "super-secret"
	rt := NewRuntime(cfg)
	raw, err := rt.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "super-secret")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &decoded))
	assert.Equal(t, 5, decoded["leverage"])
	assert.ElementsMatch(t, ParamNames(), keysOf(decoded))
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestWatcherReloadAppliesOnlyChangedParams(t *testing.T) {
	clearSecretEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "trading:\n  leverage: 7\nhttp:\n  allow_insecure: true\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	rt := NewRuntime(cfg)
	w, err := NewWatcher(cfg, rt)
	require.NoError(t, err)

	require.NoError(t, rt.Update("take_profit", 0.8))
	writeFile(t, dir, "config.yaml", "trading:\n  leverage: 9\nhttp:\n  allow_insecure: true\n")

	n, err := w.Reload()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	s := rt.Snapshot()
	assert.Equal(t, 9, s.Trading.Leverage)
	assert.InDelta(t, 0.8, s.Trading.TakeProfit, 1e-9)
	assert.Equal(t, filepath.Clean(path), filepath.Clean(cfg.Path))
}

func TestDiffParamsOrdersModeFirst(t *testing.T) {
	prev := map[string]any{"leverage": 5, "trading_mode": "safe", "stop_loss": 0.3}
	next := map[string]any{"leverage": 6, "trading_mode": "standard", "stop_loss": 0.3}
	assert.Equal(t, []string{"trading_mode", "leverage"}, diffParams(prev, next))
}
