package visual

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/shopspring/decimal"

	"perpbot/internal/trader"
)

var ErrNoTrades = errors.New("no completed trades")

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEquity        = "#3b82f6"

	chartWidthPx     = 1200
	equityHeightPx   = 480
	perTradeHeightPx = 260
)

// EquityPoint 是按平仓时间累计的杠杆收益。
type EquityPoint struct {
	At         time.Time
	Symbol     string
	TradePct   float64
	Cumulative float64
}

// EquityCurve sorts completed trades by exit time and accumulates leveraged profit %.
func EquityCurve(trades []trader.Trade) []EquityPoint {
	done := make([]trader.Trade, 0, len(trades))
	for _, t := range trades {
		if t.State == trader.StateCompleted {
			done = append(done, t)
		}
	}
	sort.SliceStable(done, func(i, j int) bool { return done[i].ExitTime.Before(done[j].ExitTime) })

	out := make([]EquityPoint, 0, len(done))
	sum := decimal.Zero
	for _, t := range done {
		sum = sum.Add(decimal.NewFromFloat(t.LeveragedProfitPct))
		cum, _ := sum.Round(4).Float64()
		out = append(out, EquityPoint{
			At:         t.ExitTime,
			Symbol:     t.Symbol,
			TradePct:   t.LeveragedProfitPct,
			Cumulative: cum,
		})
	}
	return out
}

// RenderEquity renders the cumulative PnL page as standalone HTML.
func RenderEquity(title string, trades []trader.Trade) ([]byte, error) {
	points := EquityCurve(trades)
	if len(points) == 0 {
		return nil, ErrNoTrades
	}
	xAxis := make([]string, len(points))
	cumulative := make([]opts.LineData, len(points))
	perTrade := make([]opts.BarData, len(points))
	for i, p := range points {
		xAxis[i] = fmt.Sprintf("%s %s", p.At.UTC().Format("01-02 15:04"), p.Symbol)
		cumulative[i] = opts.LineData{Value: p.Cumulative}
		color := colorBull
		if p.TradePct < 0 {
			color = colorBear
		}
		perTrade[i] = opts.BarData{
			Value:     p.TradePct,
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.8)},
		}
	}
	last := points[len(points)-1]

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(equityHeightPx)),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      fmt.Sprintf("%d trades | cumulative %.2f%%", len(points), last.Cumulative),
			Left:          "center",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary, Formatter: "{value}%"},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Cumulative PnL %", cumulative,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
	)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(perTradeHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: "Per trade %", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	bar.SetXAxis(xAxis)
	bar.AddSeries("Trade PnL %", perTrade)

	page := components.NewPage()
	page.PageTitle = title
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line, bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func initOpts(height int) opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", height),
		BackgroundColor: colorBackground,
	}
}
