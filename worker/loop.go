package worker

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// Loop repeats a task until its context ends. A run that finds the previous
// one still in progress is skipped.
type Loop struct {
	interval time.Duration
	task     func()
	busy     atomic.Bool
	runs     atomic.Int64
	skips    atomic.Int64
}

// NewLoop repeats task every interval. A zero interval yields the processor
// between runs instead of sleeping.
func NewLoop(interval time.Duration, task func()) *Loop {
	return &Loop{interval: interval, task: task}
}

// RunOnce runs the task unless a run is already in progress.
func (l *Loop) RunOnce() bool {
	if !l.busy.CompareAndSwap(false, true) {
		l.skips.Add(1)
		return false
	}
	defer l.busy.Store(false)
	l.task()
	l.runs.Add(1)
	return true
}

// Run blocks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	var ticker *time.Ticker
	if l.interval > 0 {
		ticker = time.NewTicker(l.interval)
		defer ticker.Stop()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		l.RunOnce()
		if ticker == nil {
			runtime.Gosched()
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Loop) Runs() int64  { return l.runs.Load() }
func (l *Loop) Skips() int64 { return l.skips.Load() }
