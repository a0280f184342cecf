package testutils

import (
	"sync"
	"time"
)

// FakeTicker is driven by hand through Tick.
type FakeTicker struct {
	Interval time.Duration
	ch       chan time.Time

	mu      sync.Mutex
	stopped bool
}

func (t *FakeTicker) Tick() {
	t.ch <- time.Now()
}

func (t *FakeTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// FakeTickers records every ticker created through New.
type FakeTickers struct {
	mu      sync.Mutex
	tickers []*FakeTicker
	created chan *FakeTicker
}

func NewFakeTickers() *FakeTickers {
	return &FakeTickers{created: make(chan *FakeTicker, 16)}
}

// New matches session.TickerFunc.
func (f *FakeTickers) New(d time.Duration) (<-chan time.Time, func()) {
	t := &FakeTicker{Interval: d, ch: make(chan time.Time)}

	f.mu.Lock()
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()
	f.created <- t

	return t.ch, func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
	}
}

// Next waits for the next ticker to be created.
func (f *FakeTickers) Next(timeout time.Duration) *FakeTicker {
	select {
	case t := <-f.created:
		return t
	case <-time.After(timeout):
		return nil
	}
}

func (f *FakeTickers) All() []*FakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeTicker(nil), f.tickers...)
}

// Active returns the tickers that have not been stopped.
func (f *FakeTickers) Active() []*FakeTicker {
	var active []*FakeTicker
	for _, t := range f.All() {
		if !t.Stopped() {
			active = append(active, t)
		}
	}
	return active
}
