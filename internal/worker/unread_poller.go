// Package worker holds the periodic background loops.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Default unread poller configuration values.
const (
	defaultUnreadPollInterval = 30 * time.Second
)

// UnreadCounter fetches the authoritative unread count.
// Declared on the consumer side.
type UnreadCounter interface {
	UnreadCount(ctx context.Context) (int, error)
}

// CountSink receives fresh unread counts.
type CountSink interface {
	ReplaceUnreadCount(count int)
}

// PollObserver records poll outcomes.
type PollObserver interface {
	ObservePoll(outcome string, d time.Duration)
}

// UnreadPollerConfig contains configuration for the unread poller.
type UnreadPollerConfig struct {
	// Interval is the time between unread count refreshes.
	Interval time.Duration

	// Enabled determines if the poller should run.
	Enabled bool
}

// DefaultUnreadPollerConfig returns sensible default configuration.
func DefaultUnreadPollerConfig() UnreadPollerConfig {
	return UnreadPollerConfig{
		Interval: defaultUnreadPollInterval,
		Enabled:  true,
	}
}

// UnreadPoller periodically re-derives the unread counter from the backend,
// correcting drift left by a lossy realtime channel.
type UnreadPoller struct {
	counter  UnreadCounter
	sink     CountSink
	observer PollObserver
	logger   *slog.Logger
	config   UnreadPollerConfig
}

// NewUnreadPoller creates a new unread poller.
func NewUnreadPoller(
	counter UnreadCounter,
	sink CountSink,
	logger *slog.Logger,
	config UnreadPollerConfig,
) *UnreadPoller {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = defaultUnreadPollInterval
	}

	return &UnreadPoller{
		counter: counter,
		sink:    sink,
		logger:  logger,
		config:  config,
	}
}

// SetObserver sets an optional poll observer. Must be called before Start.
func (p *UnreadPoller) SetObserver(observer PollObserver) {
	p.observer = observer
}

// Start refreshes immediately and then on every tick until ctx is cancelled.
// Once it returns no further refresh happens.
func (p *UnreadPoller) Start(ctx context.Context) error {
	if !p.config.Enabled {
		p.logger.InfoContext(ctx, "unread poller disabled")
		return nil
	}

	p.logger.InfoContext(ctx, "starting unread poller",
		slog.Duration("interval", p.config.Interval),
	)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "unread poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *UnreadPoller) refresh(ctx context.Context) {
	start := time.Now()
	count, err := p.counter.UnreadCount(ctx)
	elapsed := time.Since(start)

	// a fetch interrupted by shutdown must not touch the store
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		p.observe("error", elapsed)
		p.logger.WarnContext(ctx, "failed to refresh unread count",
			slog.String("error", err.Error()),
		)
		return
	}

	p.sink.ReplaceUnreadCount(count)
	p.observe("success", elapsed)
}

func (p *UnreadPoller) observe(outcome string, d time.Duration) {
	if p.observer != nil {
		p.observer.ObservePoll(outcome, d)
	}
}
