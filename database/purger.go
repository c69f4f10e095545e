package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ExpiryPurger removes entries that expired before now (unix milliseconds).
// *Table implements it.
type ExpiryPurger interface {
	PurgeExpired(ctx context.Context, now int64) (int64, error)
}

var _ ExpiryPurger = (*Table)(nil)

// Purger periodically removes expired entries in the background.
type Purger struct {
	target   ExpiryPurger
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PurgerOption configures a Purger.
type PurgerOption func(*Purger)

// WithPurgeClock sets the clock expiry is compared against.
func WithPurgeClock(now func() time.Time) PurgerOption {
	return func(p *Purger) {
		p.now = now
	}
}

// WithPurgeLogger sets the logger for purge failures.
func WithPurgeLogger(logger *slog.Logger) PurgerOption {
	return func(p *Purger) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPurger creates a Purger that runs every interval once started.
func NewPurger(target ExpiryPurger, interval time.Duration, opts ...PurgerOption) *Purger {
	var p = &Purger{
		target:   target,
		interval: interval,
		now:      time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start purges once and then launches the background worker. The worker runs
// independently of ctx, which only bounds the first purge, until Stop is
// called.
func (p *Purger) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return errors.New("purger already started")
	}
	if p.interval <= 0 {
		return errors.New("purge interval must be positive")
	}

	if _, err := p.PurgeOnce(ctx); err != nil {
		return err
	}

	var workerCtx context.Context
	workerCtx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})
	go p.worker(workerCtx, p.done)
	return nil
}

// Stop halts the background worker and waits for it to exit.
func (p *Purger) Stop() {
	p.mu.Lock()
	var cancel, done = p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// PurgeOnce removes the entries expired at the current time.
func (p *Purger) PurgeOnce(ctx context.Context) (int64, error) {
	return p.target.PurgeExpired(ctx, p.now().UnixMilli())
}

func (p *Purger) worker(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	var ticker = time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PurgeOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("failed to purge expired entries", "error", err)
			}
		}
	}
}
