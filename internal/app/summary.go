package app

import (
	"fmt"
	"strings"

	"perpbot/internal/config"
	"perpbot/internal/pkg/text"
)

// StartupSummary 是启动时打印的配置摘要。
type StartupSummary struct {
	Env         string
	Exchange    string
	Mode        string
	RealTrading bool
	Leverage    int
	TakeProfit  float64
	StopLoss    float64
	Sizing      string
	Timeframe   string
	Pairs       []string
	Dynamic     bool
	Watchlist   int
	Telegram    bool
	AdminAddr   string
	JournalPath string
	WatchConfig bool
	AutoStart   bool
}

func newStartupSummary(cfg *config.Config, s config.Settings) *StartupSummary {
	exchangeName := "binance-futures"
	if s.UseTestnet {
		exchangeName += " (testnet)"
	}
	sizing := fmt.Sprintf("%.2f USDT", s.Trading.PositionSizeUSDT)
	if s.Trading.UsePercentage {
		sizing = fmt.Sprintf("%.2f%% of balance", s.Trading.PositionSizePercentage)
	}
	addr := ""
	if cfg.HTTP.Enabled {
		addr = cfg.HTTP.Addr
	}
	return &StartupSummary{
		Env:         cfg.App.Env,
		Exchange:    exchangeName,
		Mode:        s.Trading.Mode,
		RealTrading: s.Trading.UseRealTrading,
		Leverage:    s.Trading.Leverage,
		TakeProfit:  s.Trading.TakeProfit,
		StopLoss:    s.Trading.StopLoss,
		Sizing:      sizing,
		Timeframe:   s.Indicators.CandleTimeframe,
		Pairs:       s.Trading.TradingPairs,
		Dynamic:     s.Dynamic.PairSelection,
		Watchlist:   len(s.Dynamic.WatchlistSymbols),
		Telegram:    cfg.Notify.Telegram.Enabled && cfg.Notify.Telegram.BotToken != "",
		AdminAddr:   addr,
		JournalPath: cfg.Journal.Path,
		WatchConfig: cfg.App.Watch && cfg.Path != "",
		AutoStart:   cfg.App.AutoStart,
	}
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[交易 (TRADING)]")
	fmt.Printf("  环境: %s | 交易所: %s\n", orDash(s.Env), s.Exchange)
	fmt.Printf("  模式: %s | 实盘: %s\n", s.Mode, text.RealTrade(s.RealTrading))
	fmt.Printf("  杠杆: %dx | 止盈: %.2f%% | 止损: %.2f%%\n", s.Leverage, s.TakeProfit, s.StopLoss)
	fmt.Printf("  仓位: %s | 周期: %s\n", s.Sizing, s.Timeframe)
	fmt.Println()

	fmt.Println("[交易对 (PAIRS)]")
	fmt.Printf("  当前: %s\n", formatList(s.Pairs))
	fmt.Printf("  动态选择: %s (观察列表 %d 个)\n", text.Enabled(s.Dynamic), s.Watchlist)
	fmt.Println()

	fmt.Println("[服务 (SERVICES)]")
	fmt.Printf("  Telegram: %s\n", text.Enabled(s.Telegram))
	fmt.Printf("  后台 API: %s\n", orDash(s.AdminAddr))
	fmt.Printf("  交易日志: %s\n", orDash(s.JournalPath))
	fmt.Printf("  配置热更新: %s | 自动启动: %s\n", text.Enabled(s.WatchConfig), text.Enabled(s.AutoStart))
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
