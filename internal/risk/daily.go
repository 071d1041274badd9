package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"perpbot/internal/gateway/exchange"
	"perpbot/internal/gateway/notifier"
	"perpbot/internal/trader"
)

type HaltType string

const (
	HaltProfitTarget HaltType = "profit_target"
	HaltLossLimit    HaltType = "loss_limit"
	HaltMaxTrades    HaltType = "max_trades"
)

const resumeHint = "Trading will be paused for today. Use /starttrade to resume."

// Halt 描述一次触发的每日风控停机。
type Halt struct {
	Type    HaltType  `json:"type"`
	Message string    `json:"message"`
	Value   float64   `json:"value"`
	Limit   float64   `json:"limit"`
	At      time.Time `json:"at"`
}

type HaltJournal interface {
	SaveHalt(ctx context.Context, h Halt) error
}

type BalanceSource interface {
	Balance(ctx context.Context) (exchange.Balance, error)
}

type MonitorOptions struct {
	Notifier notifier.Notifier
	Journal  HaltJournal
	Now      func() time.Time
}

// Monitor 在每轮信号检查前评估当日盈亏与交易次数上限。
type Monitor struct {
	stats    *trader.StatsBook
	account  BalanceSource
	settings SettingsSource
	notify   notifier.Notifier
	journal  HaltJournal
	now      func() time.Time

	mu      sync.Mutex
	latched *Halt
}

func NewMonitor(stats *trader.StatsBook, account BalanceSource, settings SettingsSource, opts MonitorOptions) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		stats:    stats,
		account:  account,
		settings: settings,
		notify:   opts.Notifier,
		journal:  opts.Journal,
		now:      opts.Now,
	}
}

// WithinLimits reports whether trading may continue. A halt notifies once
// and stays latched until Reset.
func (m *Monitor) WithinLimits(ctx context.Context) (bool, Halt) {
	s := m.settings.Snapshot()
	if s.Risk.RefreshBalance && s.Trading.UseRealTrading {
		if bal, err := m.account.Balance(ctx); err != nil {
			log.Warnf("daily limits: balance refresh failed: %v", err)
		} else {
			m.stats.SetCurrentBalance(bal.Total)
		}
	}
	halt, hit := evaluate(m.stats.Snapshot(), s.Trading.DailyProfitTarget, s.Trading.DailyLossLimit, s.Trading.MaxDailyTrades)
	if !hit {
		return true, Halt{}
	}
	halt.At = m.now()

	m.mu.Lock()
	if m.latched != nil {
		h := *m.latched
		m.mu.Unlock()
		return false, h
	}
	m.latched = &halt
	m.mu.Unlock()

	log.Infof("daily limit reached: %s value=%.2f limit=%v", halt.Type, halt.Value, halt.Limit)
	if m.notify != nil {
		m.notify.Enqueue(halt.Message, nil)
	}
	if m.journal != nil {
		if err := m.journal.SaveHalt(context.WithoutCancel(ctx), halt); err != nil {
			log.Warnf("daily limits: journal write failed: %v", err)
		}
	}
	return false, halt
}

func evaluate(st trader.DailyStats, target, limit float64, maxTrades int) (Halt, bool) {
	if st.StartingBalance > 0 {
		pct := (st.CurrentBalance - st.StartingBalance) / st.StartingBalance * 100
		if pct >= target {
			return Halt{
				Type:  HaltProfitTarget,
				Value: pct,
				Limit: target,
				Message: fmt.Sprintf("🎯 DAILY PROFIT TARGET REACHED!\n\nCurrent profit: %.2f%%\nTarget: %v%%\n\n%s",
					pct, target, resumeHint),
			}, true
		}
		if pct <= -limit {
			return Halt{
				Type:  HaltLossLimit,
				Value: pct,
				Limit: limit,
				Message: fmt.Sprintf("⚠️ DAILY LOSS LIMIT REACHED!\n\nCurrent loss: %.2f%%\nLimit: -%v%%\n\n%s",
					pct, limit, resumeHint),
			}, true
		}
	}
	if maxTrades > 0 && st.TotalTrades >= maxTrades {
		return Halt{
			Type:  HaltMaxTrades,
			Value: float64(st.TotalTrades),
			Limit: float64(maxTrades),
			Message: fmt.Sprintf("📊 MAX DAILY TRADES REACHED\n\nTrades today: %d\nMax allowed: %d\n\n%s",
				st.TotalTrades, maxTrades, resumeHint),
		}, true
	}
	return Halt{}, false
}

// Reset 开始新的交易日并清除停机锁存。
// 实盘模式下以账户总余额作为起始余额，否则为 0。
func (m *Monitor) Reset(ctx context.Context) {
	balance := 0.0
	if m.settings.Snapshot().Trading.UseRealTrading {
		bal, err := m.account.Balance(ctx)
		if err != nil {
			log.Errorf("daily reset: balance unavailable: %v", err)
		} else {
			balance = bal.Total
		}
	}
	m.stats.Reset(m.now(), balance)
	m.mu.Lock()
	m.latched = nil
	m.mu.Unlock()
	log.Infof("daily stats reset for %s, starting balance %.2f", m.stats.Date(), balance)
}

// RolloverDue reports whether the calendar day changed since the last reset.
func (m *Monitor) RolloverDue() bool {
	return m.stats.Date() != m.now().Format("2006-01-02")
}

// Halted returns the latched halt, if any.
func (m *Monitor) Halted() (Halt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latched == nil {
		return Halt{}, false
	}
	return *m.latched, true
}
