package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cleaner periodically deletes expired records.
type Cleaner struct {
	store    Store
	interval time.Duration
	batch    int
	logger   Logger
	now      func() time.Time

	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	started atomic.Bool
}

// NewCleaner constructs a Cleaner. Non-positive values fall back to an hourly sweep of 200.
func NewCleaner(store Store, interval time.Duration, batch int, logger Logger) *Cleaner {
	if interval <= 0 {
		interval = time.Hour
	}
	if batch <= 0 {
		batch = 200
	}
	return &Cleaner{
		store:    store,
		interval: interval,
		batch:    batch,
		logger:   logger,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop in a goroutine until Stop is called.
func (c *Cleaner) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.Sweep(context.Background())
			}
		}
	}()
}

// Sweep deletes expired records batch by batch until a short batch is seen.
func (c *Cleaner) Sweep(ctx context.Context) int {
	total := 0
	for {
		removed, err := c.store.CleanupExpired(ctx, c.now().UTC(), c.batch)
		total += removed
		if err != nil {
			if c.logger != nil {
				c.logger.Printf("idempotency: cleanup failed: %v", err)
			}
			return total
		}
		if removed < c.batch {
			return total
		}
	}
}

// Stop ends the loop and waits for an in-flight sweep.
func (c *Cleaner) Stop(ctx context.Context) error {
	c.once.Do(func() { close(c.stop) })
	if !c.started.Load() {
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
