package trader

import (
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// DailyStats 是当日交易统计。WinRate / BalanceChangePct 在快照时计算。
type DailyStats struct {
	Date             string  `json:"date"`
	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	TotalProfitPct   float64 `json:"total_profit_pct"`
	TotalProfitUSDT  float64 `json:"total_profit_usdt"`
	StartingBalance  float64 `json:"starting_balance"`
	CurrentBalance   float64 `json:"current_balance"`
	ROI              float64 `json:"roi"`
	WinRate          float64 `json:"win_rate"`
	BalanceChangePct float64 `json:"balance_change_pct"`
}

func (s DailyStats) derive() DailyStats {
	s.WinRate = 0
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	}
	s.BalanceChangePct = 0
	if s.StartingBalance > 0 {
		s.BalanceChangePct = (s.CurrentBalance - s.StartingBalance) / s.StartingBalance * 100
	}
	return s
}

// StatsBook guards the day's counters shared by the trade manager and the
// daily risk monitor.
type StatsBook struct {
	mu    sync.RWMutex
	stats DailyStats
}

func NewStatsBook(now time.Time) *StatsBook {
	return &StatsBook{stats: DailyStats{Date: now.Format(dateLayout)}}
}

func (b *StatsBook) Snapshot() DailyStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats.derive()
}

func (b *StatsBook) Date() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats.Date
}

// Reset 开始新的交易日，余额同时作为起始与当前余额。
func (b *StatsBook) Reset(day time.Time, balance float64) {
	b.mu.Lock()
	b.stats = DailyStats{
		Date:            day.Format(dateLayout),
		StartingBalance: balance,
		CurrentBalance:  balance,
	}
	b.mu.Unlock()
}

func (b *StatsBook) SetCurrentBalance(balance float64) {
	b.mu.Lock()
	b.stats.CurrentBalance = balance
	b.recomputeROI()
	b.mu.Unlock()
}

func (b *StatsBook) recordOpen() {
	b.mu.Lock()
	b.stats.TotalTrades++
	b.mu.Unlock()
}

func (b *StatsBook) recordClose(t Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.TotalProfitPct += t.LeveragedProfitPct
	b.stats.TotalProfitUSDT += t.ProfitUSDT
	if t.Win() {
		b.stats.WinningTrades++
	} else {
		b.stats.LosingTrades++
	}
	if t.RealTrade && b.stats.CurrentBalance > 0 {
		b.stats.CurrentBalance += t.ProfitUSDT
	}
	b.recomputeROI()
}

func (b *StatsBook) recomputeROI() {
	if b.stats.StartingBalance > 0 {
		b.stats.ROI = (b.stats.CurrentBalance - b.stats.StartingBalance) / b.stats.StartingBalance * 100
	}
}
