package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reportr-backend/internal/events"
)

// CleanupService periodically deletes draft and generating sessions older than the TTL.
type CleanupService struct {
	repo      SessionRepository
	ttl       time.Duration
	interval  time.Duration
	publisher events.Publisher
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCleanupService(repo SessionRepository, ttl, interval time.Duration, publisher events.Publisher, logger *slog.Logger) *CleanupService {
	return &CleanupService{
		repo:      repo,
		ttl:       ttl,
		interval:  interval,
		publisher: publisher,
		logger:    logger,
	}
}

// Enabled is false when either the TTL or the interval is zero.
func (c *CleanupService) Enabled() bool {
	return c.ttl > 0 && c.interval > 0
}

// Start runs a sweep immediately and then once per interval until ctx is cancelled or
// Stop is called. It does nothing when disabled or already running.
func (c *CleanupService) Start(ctx context.Context) {
	if !c.Enabled() {
		c.logger.Info("session cleanup disabled", "ttl", c.ttl.String(), "interval", c.interval.String())
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.loop(ctx, c.done)
	c.logger.Info("session cleanup started", "ttl", c.ttl.String(), "interval", c.interval.String())
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (c *CleanupService) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *CleanupService) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one sweep and returns how many sessions were removed. Errors are
// logged, never returned, so a bad sweep cannot stop the loop.
func (c *CleanupService) RunOnce(ctx context.Context) int {
	removed, err := c.repo.DeleteExpired(ctx, c.ttl)
	if err != nil && ctx.Err() == nil {
		c.logger.ErrorContext(ctx, "session cleanup failed", "error", err, "removed", removed)
	}
	if removed > 0 {
		c.logger.InfoContext(ctx, "expired sessions removed", "removed", removed, "ttl", c.ttl.String())
		if c.publisher != nil {
			event := events.New(events.ReportExpired, uuid.Nil, events.ExpiredPayload(removed, c.ttl))
			if err := c.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
				c.logger.WarnContext(ctx, "failed to publish event", "event", string(event.Type), "error", err)
			}
		}
	}
	return removed
}
