// Package clock abstracts wall-clock reads so time-window logic (rate
// limits, staleness, pass expiry) can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the subset of the time package the engine depends on.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Read ticks from C; call Stop when done.
type Ticker struct {
	C        <-chan time.Time
	stopFunc func()
}

func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the standard time package. Times are UTC.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

// FakeClock stands still until Advance or Set is called. Tickers fire
// during Advance, at most once per call (matching the capacity-1 channel
// semantics of time.Ticker).
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTicker{
		ch:       make(chan time.Time, 1),
		interval: d,
		next:     c.current.Add(d),
	}
	c.tickers = append(c.tickers, ft)
	return &Ticker{C: ft.ch, stopFunc: func() {
		c.mu.Lock()
		ft.stopped = true
		c.mu.Unlock()
	}}
}

// Advance moves the clock forward by d and fires due tickers.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	live := c.tickers[:0]
	for _, ft := range c.tickers {
		if ft.stopped {
			continue
		}
		if !ft.next.After(c.current) {
			select {
			case ft.ch <- c.current:
			default:
			}
			for !ft.next.After(c.current) {
				ft.next = ft.next.Add(ft.interval)
			}
		}
		live = append(live, ft)
	}
	c.tickers = live
}

// Set jumps to t without firing tickers.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}
