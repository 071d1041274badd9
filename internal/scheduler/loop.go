package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	"perpbot/internal/logger"
)

// Stop 作为 Task 返回值时结束循环。
const Stop time.Duration = -1

// Sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Loop runs Task until ctx is cancelled or Task returns Stop. The value Task
// returns is the wait before the next iteration. A panicking Task is logged
// and retried after ErrorBackoff.
type Loop struct {
	Name         string
	Task         func(ctx context.Context) time.Duration
	ErrorBackoff time.Duration
}

func (l Loop) Run(ctx context.Context) {
	if l.Task == nil {
		logger.Warnf("scheduler: loop %s has no task, exit", l.Name)
		return
	}
	backoff := l.ErrorBackoff
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	log := logger.With(l.Name)
	log.Infof("loop started")
	defer log.Infof("loop stopped")
	for ctx.Err() == nil {
		wait, ok := l.runOnce(ctx, log)
		if !ok {
			wait = backoff
		}
		if wait == Stop {
			return
		}
		if !Sleep(ctx, wait) {
			return
		}
	}
}

func (l Loop) runOnce(ctx context.Context, log logger.Component) (wait time.Duration, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("loop panic: %v\n%s", r, debug.Stack())
			ok = false
		}
	}()
	return l.Task(ctx), true
}
