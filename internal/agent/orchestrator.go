package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"perpbot/internal/config"
	"perpbot/internal/gateway/notifier"
	"perpbot/internal/logger"
	"perpbot/internal/risk"
	"perpbot/internal/scanner"
	"perpbot/internal/strategy"
	"perpbot/internal/trader"

	"github.com/shopspring/decimal"
)

var log = logger.With("orchestrator")

const (
	scannerJoin       = 10 * time.Second
	reconcilerJoin    = 10 * time.Second
	signalJoinBuffer  = 5 * time.Second
	dispatcherJoin    = 15 * time.Second
	signalBackoff     = 10 * time.Second
	defaultMonitorGap = 15 * time.Second
)

type Evaluator interface {
	Evaluate(ctx context.Context, symbol, timeframe string) strategy.Signal
}

type Sizer interface {
	Size(ctx context.Context, symbol string, price float64) (decimal.Decimal, error)
}

type PositionModeSetter interface {
	SetPositionMode(ctx context.Context, hedge bool) error
}

type Params struct {
	Runtime    *config.Runtime
	Exchange   PositionModeSetter
	Signals    Evaluator
	Sizer      Sizer
	Trades     *trader.Manager
	Risk       *risk.Monitor
	Scanner    *scanner.Scanner
	Dispatcher *notifier.Dispatcher
}

type worker struct {
	name string
	join time.Duration
	done chan struct{}
}

// Orchestrator 负责启动与停止全部后台任务：信号循环、动态扫描、持仓对账与通知分发。
type Orchestrator struct {
	p Params

	mu        sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	workers   []*worker
	startedAt time.Time
	// gen 每次 Start 自增，用于丢弃上一轮遗留的停机请求。
	gen       uint64
}

func New(p Params) *Orchestrator {
	return &Orchestrator{p: p}
}

func (o *Orchestrator) Running() bool { return o.running.Load() }

// Start returns false when already running. ctx is used for the setup calls
// only; workers run until Stop.
func (o *Orchestrator) Start(ctx context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running.Load() {
		log.Infof("trading bot is already running")
		return false
	}
	log.Infof("starting trading bot")

	s := o.p.Runtime.Snapshot()
	if s.Trading.ApplyModeOnStart {
		if _, err := o.p.Runtime.ApplyMode(s.Trading.Mode); err != nil {
			log.Warnf("apply trading mode %q: %v", s.Trading.Mode, err)
		}
		s = o.p.Runtime.Snapshot()
	}
	if s.Trading.HedgeMode && o.p.Exchange != nil {
		if err := o.p.Exchange.SetPositionMode(ctx, true); err != nil {
			log.Errorf("set hedge position mode: %v", err)
		} else {
			log.Infof("hedge position mode active")
		}
	}
	o.p.Risk.Reset(ctx)

	// 工作协程的生命周期只由 Stop 控制，不跟随调用方（例如 HTTP 请求）的 ctx。
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel
	o.gen++
	o.running.Store(true)
	o.startedAt = time.Now()
	o.p.Dispatcher.Start()
	o.p.Dispatcher.Enqueue(startedMessage(s), nil)
	o.workers = []*worker{
		o.spawn(wctx, "scanner", scannerJoin, o.p.Scanner.Run),
		o.spawn(wctx, "signal-loop", s.SignalCheckInterval()+signalJoinBuffer, o.signalLoop(o.gen)),
		o.spawn(wctx, "reconciler", reconcilerJoin, o.runReconciler),
	}
	log.Infof("trading bot started: mode=%s real=%v pairs=%v dynamic=%v",
		s.Trading.Mode, s.Trading.UseRealTrading, s.Trading.TradingPairs, s.Dynamic.PairSelection)
	return true
}

func (o *Orchestrator) spawn(ctx context.Context, name string, join time.Duration, run func(context.Context)) *worker {
	w := &worker{name: name, join: join, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		run(ctx)
	}()
	return w
}

// Stop 按顺序停止：扫描器、信号循环、对账，最后发送停止通知并关闭分发器。
// 未运行时返回 false。
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running.Load() {
		log.Infof("trading bot is not running")
		return false
	}
	o.stopLocked()
	return true
}

// stopRun stops the bot only if run gen is still the current one.
func (o *Orchestrator) stopRun(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running.Load() || o.gen != gen {
		log.Infof("ignoring stop request from run %d (current %d)", gen, o.gen)
		return false
	}
	o.stopLocked()
	return true
}

func (o *Orchestrator) stopLocked() {
	log.Warnf("stopping trading bot")
	o.running.Store(false)
	o.cancel()
	for _, w := range o.workers {
		o.join(w)
	}
	o.workers = nil
	o.p.Dispatcher.Enqueue(stoppedMessage, nil)
	if n := o.p.Dispatcher.Stop(dispatcherJoin); n > 0 {
		log.Warnf("discarded %d queued notifications", n)
	}
	log.Infof("trading bot stopped")
}

func (o *Orchestrator) join(w *worker) {
	timer := time.NewTimer(w.join)
	defer timer.Stop()
	select {
	case <-w.done:
		log.Infof("%s stopped", w.name)
	case <-timer.C:
		log.Warnf("%s did not stop within %s", w.name, w.join)
	}
}

func (o *Orchestrator) requestStop(gen uint64) {
	go o.stopRun(gen)
}

// Status 汇总运行状态。
type Status struct {
	Running          bool                `json:"running"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	Mode             string              `json:"mode"`
	RealTrading      bool                `json:"real_trading"`
	DynamicSelection bool                `json:"dynamic_selection"`
	ActivePairs      []string            `json:"active_pairs"`
	ActiveTrades     []trader.Trade      `json:"active_trades"`
	Stats            trader.DailyStats   `json:"stats"`
	LastScan         *scanner.Report     `json:"last_scan,omitempty"`
	Halt             *risk.Halt          `json:"halt,omitempty"`
	Notifications    NotificationsStatus `json:"notifications"`
}

type NotificationsStatus struct {
	Running bool  `json:"running"`
	Dropped int64 `json:"dropped"`
}

func (o *Orchestrator) Status() Status {
	s := o.p.Runtime.Snapshot()
	st := Status{
		Running:          o.running.Load(),
		Mode:             s.Trading.Mode,
		RealTrading:      s.Trading.UseRealTrading,
		DynamicSelection: s.Dynamic.PairSelection,
		ActivePairs:      s.Trading.TradingPairs,
		ActiveTrades:     o.p.Trades.Active(),
		Stats:            o.p.Trades.Stats().Snapshot(),
		Notifications: NotificationsStatus{
			Running: o.p.Dispatcher.Running(),
			Dropped: o.p.Dispatcher.Dropped(),
		},
	}
	o.mu.Lock()
	if st.Running {
		at := o.startedAt
		st.StartedAt = &at
	}
	o.mu.Unlock()
	if rep, ok := o.p.Scanner.Last(); ok {
		st.LastScan = &rep
	}
	if h, ok := o.p.Risk.Halted(); ok {
		st.Halt = &h
	}
	return st
}
