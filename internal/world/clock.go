// Package world drives the nexus in time: a ticking clock, the breath cycle
// listening to it and the scheduled exports.
package world

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ClockListener receives clock ticks.
type ClockListener interface {
	OnTick(now time.Time)
}

// Clock fans ticks out to listeners from one background goroutine.
// Listeners run sequentially on that goroutine.
type Clock struct {
	interval  time.Duration
	listeners []ClockListener
	lastTick  time.Time
	ticks     int64
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	now       func() time.Time
	logger    *zap.Logger
}

// NewClock creates a clock with the given tick interval.
func NewClock(interval time.Duration, logger *zap.Logger) *Clock {
	return &Clock{
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// AddListener registers a tick listener.
func (c *Clock) AddListener(l ClockListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// LastTick returns the time of the most recent tick.
func (c *Clock) LastTick() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastTick
}

// Ticks returns how many ticks have fired.
func (c *Clock) Ticks() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticks
}

// Start fires an immediate tick and then one per interval until Stop or
// ctx cancellation. Starting a running clock does nothing.
func (c *Clock) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.loop(ctx, done)
	c.logger.Info("clock started", zap.Duration("interval", c.interval))
}

// Stop halts the tick loop and waits for the in-flight tick to finish.
func (c *Clock) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("clock stopped")
}

func (c *Clock) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Clock) tick() {
	c.mu.Lock()
	now := c.now()
	c.lastTick = now
	c.ticks++
	listeners := make([]ClockListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnTick(now)
	}
}
