package agent

import (
	"context"
	"errors"
	"time"

	"perpbot/internal/scheduler"
	"perpbot/internal/trader"
)

func (o *Orchestrator) signalLoop(gen uint64) func(context.Context) {
	return func(ctx context.Context) {
		task := func(ctx context.Context) time.Duration { return o.signalCycle(ctx, gen) }
		scheduler.Loop{Name: "signal-loop", Task: task, ErrorBackoff: signalBackoff}.Run(ctx)
	}
}

// signalCycle 执行一轮信号检查，返回下一轮前的等待时间。
func (o *Orchestrator) signalCycle(ctx context.Context, gen uint64) time.Duration {
	if o.p.Risk.RolloverDue() {
		log.Infof("new trading day, resetting daily stats")
		o.p.Risk.Reset(ctx)
	}
	if ok, halt := o.p.Risk.WithinLimits(ctx); !ok {
		log.Warnf("daily risk limit %s reached, stopping", halt.Type)
		o.requestStop(gen)
		return scheduler.Stop
	}

	s := o.p.Runtime.Snapshot()
	postDelay := time.Duration(s.Trading.PostTradeDelaySeconds) * time.Second
	for _, sym := range o.p.Runtime.Pairs().Snapshot() {
		if ctx.Err() != nil {
			return scheduler.Stop
		}
		if o.p.Trades.HasOpen(sym) {
			continue
		}
		sig := o.p.Signals.Evaluate(ctx, sym, "")
		if !sig.Actionable() {
			continue
		}
		log.Infof("[%s] %s signal strength %d: %v", sym, sig.Action, sig.Strength, sig.Reasons)
		qty, err := o.p.Sizer.Size(ctx, sym, sig.Price)
		if err != nil {
			log.Warnf("[%s] skip signal: %v", sym, err)
			continue
		}
		tr, err := o.p.Trades.Open(ctx, trader.OpenRequest{Signal: sig, Quantity: qty, Settings: s.Trading})
		if err != nil {
			if errors.Is(err, trader.ErrTradeExists) {
				log.Debugf("[%s] %v", sym, err)
			} else {
				log.Errorf("[%s] open trade: %v", sym, err)
			}
			continue
		}
		o.p.Dispatcher.Enqueue(trader.OpenedMessage(tr), nil)
		if postDelay > 0 && !scheduler.Sleep(ctx, postDelay) {
			return scheduler.Stop
		}
	}
	return s.SignalCheckInterval()
}

func (o *Orchestrator) runReconciler(ctx context.Context) {
	scheduler.Loop{Name: "reconciler", Task: func(ctx context.Context) time.Duration {
		if n := o.p.Trades.Reconcile(ctx); n > 0 {
			log.Infof("reconciled %d trades", n)
		}
		if gap := o.p.Runtime.Snapshot().MonitorInterval(); gap > 0 {
			return gap
		}
		return defaultMonitorGap
	}, ErrorBackoff: signalBackoff}.Run(ctx)
}
