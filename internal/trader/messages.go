package trader

import (
	"fmt"
	"strconv"

	"perpbot/internal/gateway/notifier"
	"perpbot/internal/pkg/text"
	"perpbot/internal/strategy"
)

const timeLayout = "2006-01-02 15:04:05"

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// OpenedMessage 渲染开仓通知。
func OpenedMessage(t Trade) string {
	icon := "🔴"
	if t.Action == strategy.Long {
		icon = "🟢"
	}
	reasons := make([]string, 0, len(t.Reasons))
	for _, r := range t.Reasons {
		reasons = append(reasons, "• "+r)
	}
	return notifier.StructuredMessage{
		Icon:  icon,
		Title: fmt.Sprintf("NEW %s POSITION", t.Action),
		Sections: []notifier.MessageSection{
			{Lines: []string{
				"Symbol: " + t.Symbol,
				fmt.Sprintf("Entry Price: $%.4f", t.EntryPrice),
				"Quantity: " + formatQty(t.Quantity),
				fmt.Sprintf("Leverage: %dx", t.Leverage),
				fmt.Sprintf("Take Profit: $%.4f (+%v%%)", t.TakeProfit, t.TakeProfitPct),
				fmt.Sprintf("Stop Loss: $%.4f (-%v%%)", t.StopLoss, t.StopLossPct),
				"Time: " + t.EntryTime.Format(timeLayout),
				"Mode: " + text.Capitalize(t.Mode),
			}},
			{Title: "Signal Reasons:", Lines: reasons},
		},
		Footer: "Real Trade: " + text.RealTrade(t.RealTrade),
	}.Render()
}

// CompletedMessage 渲染平仓通知。
func CompletedMessage(t Trade) string {
	icon, result := "❌", "LOSS"
	if t.Win() {
		icon, result = "✅", "WIN"
	}
	return notifier.StructuredMessage{
		Icon:  icon,
		Title: "TRADE COMPLETED - " + result,
		Sections: []notifier.MessageSection{{Lines: []string{
			"Symbol: " + t.Symbol,
			"Action: " + string(t.Action),
			fmt.Sprintf("Entry Price: $%.4f", t.EntryPrice),
			fmt.Sprintf("Exit Price: $%.4f", t.ExitPrice),
			fmt.Sprintf("Profit/Loss: %.2f%% (Raw) / %.2f%% (Leveraged)", t.ProfitPct, t.LeveragedProfitPct),
			fmt.Sprintf("Profit USDT: $%.2f", t.ProfitUSDT),
			"Quantity: " + formatQty(t.Quantity),
			fmt.Sprintf("Leverage: %dx", t.Leverage),
			"Close Reason: " + t.ExitReason.Display(),
			"Entry Time: " + t.EntryTime.Format(timeLayout),
			"Exit Time: " + t.ExitTime.Format(timeLayout),
			fmt.Sprintf("Duration: %d seconds", int(t.Duration().Seconds())),
			"Mode: " + text.Capitalize(t.Mode),
			"Real Trade: " + text.RealTrade(t.RealTrade),
		}}},
	}.Render()
}

// StatsMessage 渲染当日统计。
func StatsMessage(s DailyStats, mode string, realTrading bool) string {
	realText := "Disabled (Simulation)"
	if realTrading {
		realText = "Enabled"
	}
	return notifier.StructuredMessage{
		Icon:  "📊",
		Title: "DAILY TRADING STATS - " + s.Date,
		Sections: []notifier.MessageSection{
			{Lines: []string{
				fmt.Sprintf("Total Trades: %d", s.TotalTrades),
				fmt.Sprintf("Winning Trades: %d", s.WinningTrades),
				fmt.Sprintf("Losing Trades: %d", s.LosingTrades),
				fmt.Sprintf("Win Rate: %.1f%%", s.WinRate),
			}},
			{Lines: []string{
				fmt.Sprintf("Total Profit/Loss: %.2f%%", s.TotalProfitPct),
				fmt.Sprintf("Total Profit USDT: $%.2f", s.TotalProfitUSDT),
			}},
			{Lines: []string{
				fmt.Sprintf("Starting Balance: $%.2f", s.StartingBalance),
				fmt.Sprintf("Current Balance: $%.2f", s.CurrentBalance),
				fmt.Sprintf("Balance Change: %.2f%%", s.BalanceChangePct),
			}},
		},
		Footer: "Trading Mode: " + text.Capitalize(mode) + "\nReal Trading: " + realText,
	}.Render()
}
