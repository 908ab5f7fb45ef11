package calendar

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Speed is a named tick-rate preset.
type Speed string

const (
	SpeedStopped Speed = "stopped"
	SpeedDaily   Speed = "daily"   // one tick per real second
	SpeedMonthly Speed = "monthly" // one month of ticks per real ~1.5s
)

// Clock advances the simulated date on a real-time timer and invokes a tick
// callback for each elapsed day. The callback runs on the clock goroutine;
// if a tick's processing has not finished when the next timer fires, that
// tick is skipped (never queued) and counted as dropped.
type Clock struct {
	sys System

	mu         sync.Mutex
	date       Date
	totalDays  uint64
	totalTicks uint64
	speed      Speed
	running    bool
	stopCh     chan struct{}

	intervals map[Speed]time.Duration
	onTick    func(Date)

	ticking atomic.Bool
	dropped atomic.Uint64
}

// NewClock creates a stopped clock at the calendar epoch.
func NewClock(sys System, daily, monthly time.Duration) *Clock {
	return &Clock{
		sys:   sys,
		date:  sys.Epoch(),
		speed: SpeedStopped,
		intervals: map[Speed]time.Duration{
			SpeedDaily:   daily,
			SpeedMonthly: monthly,
		},
	}
}

// OnTick sets the per-day callback. Must be called before Start.
func (c *Clock) OnTick(fn func(Date)) { c.onTick = fn }

// Now returns the current simulated date.
func (c *Clock) Now() Date {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date
}

// Running reports whether the timer is active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Speed returns the active speed preset.
func (c *Clock) Speed() Speed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Counters returns total days advanced and ticks processed since the last
// SetDate, plus dropped ticks since start.
func (c *Clock) Counters() (days, ticks, dropped uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalDays, c.totalTicks, c.dropped.Load()
}

// SetDate forces the simulated date and resets the derived counters. The
// run state is unchanged.
func (c *Clock) SetDate(d Date) error {
	if err := c.sys.Validate(d); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.date = d
	c.totalDays = 0
	c.totalTicks = 0
	return nil
}

// Start begins ticking at the given speed. Starting an already running
// clock switches it to the new speed.
func (c *Clock) Start(speed Speed) {
	if speed == SpeedStopped {
		c.Stop()
		return
	}

	c.mu.Lock()
	interval, ok := c.intervals[speed]
	if !ok {
		c.mu.Unlock()
		slog.Warn("unknown clock speed", "speed", speed)
		return
	}
	if c.running {
		close(c.stopCh)
	}
	c.running = true
	c.speed = speed
	stop := make(chan struct{})
	c.stopCh = stop
	c.mu.Unlock()

	slog.Info("calendar started", "speed", speed, "interval", interval)
	go c.loop(interval, stop)
}

// Stop halts the timer. A tick in flight runs to completion.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	c.speed = SpeedStopped
	close(c.stopCh)
	slog.Info("calendar stopped", "date", c.date)
}

func (c *Clock) loop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.ticking.CompareAndSwap(false, true) {
				// Previous tick still processing. Skip, don't queue.
				n := c.dropped.Add(1)
				slog.Warn("tick dropped, previous tick still running", "dropped_total", n)
				continue
			}
			c.step()
			c.ticking.Store(false)
		}
	}
}

// Step advances the clock by one simulated day and invokes the tick
// callback synchronously. Exposed so tests and fast-forward paths can drive
// the simulation without real time passing.
func (c *Clock) Step() {
	if !c.ticking.CompareAndSwap(false, true) {
		n := c.dropped.Add(1)
		slog.Warn("tick dropped, previous tick still running", "dropped_total", n)
		return
	}
	c.step()
	c.ticking.Store(false)
}

func (c *Clock) step() {
	c.mu.Lock()
	c.date = c.sys.AddDays(c.date, 1)
	c.totalDays++
	c.totalTicks++
	date := c.date
	fn := c.onTick
	c.mu.Unlock()

	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick processing panicked", "date", date, "panic", r)
		}
	}()
	fn(date)
}
