package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"perpbot/internal/config"
	"perpbot/internal/gateway/exchange"
	"perpbot/internal/gateway/notifier"
	"perpbot/internal/logger"
	"perpbot/internal/scheduler"
	"perpbot/internal/strategy"
)

var log = logger.With("scanner")

const (
	errorBackoff     = 60 * time.Second
	minDisabledSleep = time.Second
)

type Evaluator interface {
	Evaluate(ctx context.Context, symbol, timeframe string) strategy.Signal
}

type TickerSource interface {
	Tickers24h(ctx context.Context) ([]exchange.Ticker24h, error)
}

type SettingsSource interface {
	Snapshot() config.Settings
}

// Candidate 是一次扫描中满足阈值的信号。
type Candidate struct {
	Symbol   string          `json:"symbol"`
	Action   strategy.Action `json:"action"`
	Strength int             `json:"strength"`
	Price    float64         `json:"price"`
	Reasons  []string        `json:"reasons"`
}

// Report 保留到下一轮扫描结束。
type Report struct {
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
	Liquid       int         `json:"liquid"`
	Candidates   []Candidate `json:"candidates"`
	Selected     []string    `json:"selected"`
	FallbackUsed bool        `json:"fallback_used"`
	Changed      bool        `json:"changed"`
}

func (r Report) clone() Report {
	r.Candidates = append([]Candidate(nil), r.Candidates...)
	r.Selected = append([]string(nil), r.Selected...)
	return r
}

// Scanner 定期从观察列表中挑选信号最强的交易对，替换活跃交易对集合。
type Scanner struct {
	tickers  TickerSource
	eval     Evaluator
	settings SettingsSource
	pairs    *config.PairSet
	notify   notifier.Notifier
	now      func() time.Time

	mu   sync.RWMutex
	last *Report
}

func New(tickers TickerSource, eval Evaluator, settings SettingsSource, pairs *config.PairSet, notify notifier.Notifier) *Scanner {
	return &Scanner{
		tickers:  tickers,
		eval:     eval,
		settings: settings,
		pairs:    pairs,
		notify:   notify,
		now:      time.Now,
	}
}

// Run blocks until ctx is done. While dynamic selection is disabled the
// loop idles at a tenth of the scan interval.
func (s *Scanner) Run(ctx context.Context) {
	scheduler.Loop{Name: "scanner", Task: s.tick, ErrorBackoff: errorBackoff}.Run(ctx)
}

func (s *Scanner) tick(ctx context.Context) time.Duration {
	cfg := s.settings.Snapshot()
	interval := cfg.ScanInterval()
	if !cfg.Dynamic.PairSelection {
		log.Debugf("dynamic pair selection disabled, idle")
		return max(interval/10, minDisabledSleep)
	}
	if _, err := s.Cycle(ctx); err != nil {
		if ctx.Err() != nil {
			log.Infof("scan aborted: %v", ctx.Err())
			return scheduler.Stop
		}
		log.Errorf("scan cycle failed: %v", err)
		return errorBackoff
	}
	return interval
}

// Cycle 执行一轮扫描。ctx 取消时在下一个交易对之前返回。
func (s *Scanner) Cycle(ctx context.Context) (Report, error) {
	cfg := s.settings.Snapshot()
	rep := Report{StartedAt: s.now()}
	log.Infof("starting scan cycle")

	liquid, fallback := s.liquid(ctx, cfg.Dynamic.WatchlistSymbols, cfg.Dynamic.MinVolumeUSDT)
	rep.Liquid = len(liquid)
	rep.FallbackUsed = fallback
	if len(liquid) == 0 {
		log.Infof("no liquid pairs from watchlist this cycle")
		rep.FinishedAt = s.now()
		s.store(rep)
		return rep, nil
	}

	threshold := cfg.Indicators.SignalStrengthThreshold
	delay := cfg.APICallDelay()
	for i, sym := range liquid {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("scan interrupted before %s: %w", sym, err)
		}
		sig := s.eval.Evaluate(ctx, sym, "")
		if sig.Actionable() && sig.Strength >= threshold {
			rep.Candidates = append(rep.Candidates, Candidate{
				Symbol:   sym,
				Action:   sig.Action,
				Strength: sig.Strength,
				Price:    sig.Price,
				Reasons:  append([]string(nil), sig.Reasons...),
			})
			log.Infof("strong signal for %s: %s strength %d", sym, sig.Action, sig.Strength)
		}
		if i < len(liquid)-1 && !scheduler.Sleep(ctx, delay) {
			return rep, fmt.Errorf("scan interrupted after %s: %w", sym, ctx.Err())
		}
	}

	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("scan interrupted after evaluation: %w", err)
	}

	sort.SliceStable(rep.Candidates, func(i, j int) bool {
		return rep.Candidates[i].Strength > rep.Candidates[j].Strength
	})
	n := min(cfg.Dynamic.MaxActivePairs, len(rep.Candidates))
	rep.Selected = make([]string, 0, n)
	for _, c := range rep.Candidates[:n] {
		rep.Selected = append(rep.Selected, c.Symbol)
	}

	prev, changed := s.pairs.Replace(rep.Selected)
	if !changed {
		log.Infof("no change to active trading pairs: %v", prev)
	} else {
		rep.Changed = true
		log.Warnf("active trading pairs updated: old=%v new=%v", prev, rep.Selected)
		if s.notify != nil {
			s.notify.Enqueue(updatedMessage(rep), nil)
		}
	}
	rep.FinishedAt = s.now()
	s.store(rep)
	return rep, nil
}

// liquid 返回观察列表中 24h 成交额达标的交易对，保持原顺序。
// 拉取行情失败时退回完整观察列表。
func (s *Scanner) liquid(ctx context.Context, watchlist []string, minVolume float64) ([]string, bool) {
	if len(watchlist) == 0 {
		log.Infof("dynamic watchlist is empty")
		return nil, false
	}
	tickers, err := s.tickers.Tickers24h(ctx)
	if err != nil || len(tickers) == 0 {
		log.Warnf("24h tickers unavailable, scanning full watchlist: %v", err)
		return append([]string(nil), watchlist...), true
	}
	volumes := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		volumes[t.Symbol] = t.QuoteVolume
	}
	out := make([]string, 0, len(watchlist))
	for _, sym := range watchlist {
		vol, ok := volumes[sym]
		switch {
		case !ok:
			log.Debugf("no 24h ticker for %s", sym)
		case vol < minVolume:
			log.Debugf("%s skipped, volume %.2f < %.2f", sym, vol, minVolume)
		default:
			out = append(out, sym)
		}
	}
	log.Infof("found %d liquid pairs: %v", len(out), out)
	return out, false
}

func (s *Scanner) store(rep Report) {
	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
}

// Last returns the most recent report.
func (s *Scanner) Last() (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Report{}, false
	}
	return s.last.clone(), true
}

func updatedMessage(rep Report) string {
	active := "None"
	if len(rep.Selected) > 0 {
		active = strings.Join(rep.Selected, ", ")
	}
	return fmt.Sprintf("🔄 <b>Dynamic Trading Pairs Updated</b> 🔄\n\nNow actively monitoring: %s\n(Scan found %d candidates from %d liquid pairs)",
		active, len(rep.Candidates), rep.Liquid)
}
