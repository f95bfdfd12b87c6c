package helper

import (
	"sync"
	"time"
)

// Ticker signals the scheduler that the next cycle is due.
type Ticker interface {
	// C returns the channel ticks are delivered on.
	C() <-chan time.Time
	// Stop releases the ticker. No ticks are delivered afterwards.
	Stop()
	// Reset schedules the next tick, dropping a pending one.
	Reset()
}

// NewTimerTicker returns a Ticker that ticks once the interval passed since
// the last Reset. A slow cycle thus delays the next one instead of queueing
// ticks behind it.
func NewTimerTicker(interval time.Duration) Ticker {
	timer := time.NewTimer(interval)
	timer.Stop()
	return &timerTicker{timer: timer, interval: interval}
}

type timerTicker struct {
	timer    *time.Timer
	interval time.Duration
}

func (tt *timerTicker) C() <-chan time.Time { return tt.timer.C }

func (tt *timerTicker) Reset() {
	if !tt.timer.Stop() {
		select {
		case <-tt.timer.C:
		default:
		}
	}
	tt.timer.Reset(tt.interval)
}

func (tt *timerTicker) Stop() { tt.timer.Stop() }

// ManualTicker ticks when Tick is called. Stop and Reset call StopFunc and
// ResetFunc.
type ManualTicker struct {
	c         chan time.Time
	StopFunc  func()
	ResetFunc func()

	stopOnce sync.Once
}

// C returns the tick channel.
func (mt *ManualTicker) C() <-chan time.Time { return mt.c }

// Stop calls StopFunc once.
func (mt *ManualTicker) Stop() { mt.stopOnce.Do(mt.StopFunc) }

// Reset calls ResetFunc.
func (mt *ManualTicker) Reset() { mt.ResetFunc() }

// Tick delivers a tick. It blocks while a previous tick is pending.
func (mt *ManualTicker) Tick() { mt.c <- time.Now() }

// NewManualTicker returns a Ticker that can be manually controlled.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{
		c:         make(chan time.Time, 1),
		StopFunc:  func() {},
		ResetFunc: func() {},
	}
}

// NewCountTicker returns a ManualTicker that ticks on each of the first n
// Reset calls and calls done on the Reset after that.
func NewCountTicker(n int, done func()) *ManualTicker {
	ticker := NewManualTicker()
	ticker.ResetFunc = func() {
		if n == 0 {
			done()
			return
		}
		n--
		ticker.Tick()
	}

	return ticker
}
