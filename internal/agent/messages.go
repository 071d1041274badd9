package agent

import (
	"fmt"
	"strings"

	"perpbot/internal/config"
	"perpbot/internal/pkg/text"
)

func startedMessage(s config.Settings) string {
	t := s.Trading
	pairs := "None Configured"
	switch {
	case s.Dynamic.PairSelection:
		pairs = "Dynamic Selection Active"
	case len(t.TradingPairs) > 0:
		pairs = strings.Join(t.TradingPairs, ", ")
	}
	realTrading := "❌ Disabled (Simulation)"
	if t.UseRealTrading {
		realTrading = "✅ Enabled"
	}
	var b strings.Builder
	b.WriteString("🚀 <b>Trading Bot Started</b> 🚀\n\n")
	fmt.Fprintf(&b, "<b>Mode:</b> %s\n", text.Capitalize(t.Mode))
	fmt.Fprintf(&b, "<b>Leverage:</b> %dx\n", t.Leverage)
	fmt.Fprintf(&b, "<b>Take Profit:</b> %v%%\n", t.TakeProfit)
	fmt.Fprintf(&b, "<b>Stop Loss:</b> %v%%\n", t.StopLoss)
	fmt.Fprintf(&b, "<b>Position Size:</b> %v%% of balance\n", t.PositionSizePercentage)
	fmt.Fprintf(&b, "<b>Daily Profit Target:</b> %v%%\n", t.DailyProfitTarget)
	fmt.Fprintf(&b, "<b>Daily Loss Limit:</b> %v%%\n", t.DailyLossLimit)
	fmt.Fprintf(&b, "<b>Trading Pairs:</b> %s\n", pairs)
	fmt.Fprintf(&b, "<b>Dynamic Pair Selection:</b> %s\n", text.Enabled(s.Dynamic.PairSelection))
	fmt.Fprintf(&b, "<b>Real Trading:</b> %s", realTrading)
	return b.String()
}

const stoppedMessage = "⏹️ <b>Trading Bot Stopped</b> ⏹️"
