package loop

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Driver is a ticker-based tick source for a Loop, for programs that have no
// display refresh to hook into. The goroutine running Start owns the Loop.
type Driver struct {
	loop     *Loop
	interval time.Duration
	logger   *slog.Logger
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDriver creates a Driver that ticks l every interval.
func NewDriver(l *Loop, interval time.Duration, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		loop:     l,
		interval: interval,
		logger:   logger.With("component", "driver"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start ticks the loop until ctx is cancelled or Stop is called.
func (d *Driver) Start(ctx context.Context) error {
	d.logger.Info("driver started", "interval", d.interval)
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.loop.Sync()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("driver stopping (context cancelled)")
			return ctx.Err()
		case <-d.stopCh:
			d.logger.Info("driver stopping (stop called)")
			return nil
		case <-ticker.C:
			d.loop.Tick()
		}
	}
}

// Stop ends Start and waits for the current tick to finish. Start must have
// been called.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	<-d.doneCh
}
