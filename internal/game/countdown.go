// internal/game/countdown.go
//
// Per-round countdown.
//   - Clock/Timer abstract time.AfterFunc so tests can fire ticks by hand.
//   - The countdown re-arms one single-shot timer per second while a round
//     is running; stopping it invalidates any tick already in flight.

package game

import "time"

// Clock schedules single-shot callbacks. The real clock wraps time.AfterFunc;
// tests substitute a manually fired one.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// tickEvent is posted to the engine loop when a countdown timer fires.
type tickEvent struct{ seq uint64 }

// countdown is a chained one-second timer scoped to a single Round stage.
// Every start/stop bumps seq, so a tick that fired before the timer was
// stopped is recognized as stale by the loop.
type countdown struct {
	clock    Clock
	interval time.Duration
	seq      uint64
	timer    Timer
}

// arm schedules the next tick and invalidates any earlier one.
func (c *countdown) arm(post func(event)) {
	c.stop()
	seq := c.seq
	c.timer = c.clock.AfterFunc(c.interval, func() { post(tickEvent{seq: seq}) })
}

func (c *countdown) stop() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.seq++
}

func (c *countdown) current(t tickEvent) bool {
	return c.timer != nil && t.seq == c.seq
}
