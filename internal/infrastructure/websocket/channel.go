package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
	"github.com/lllypuk/inboxsync/internal/domain/notification"
	"github.com/lllypuk/inboxsync/internal/domain/uuid"
	"github.com/lllypuk/inboxsync/internal/session"
)

// Default reconnect policy.
const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = 1 * time.Second
	defaultReconnectDelayMax = 5 * time.Second
)

// Channel errors.
var (
	ErrAlreadyRunning     = errors.New("realtime channel already running")
	ErrReconnectExhausted = errors.New("realtime reconnect attempts exhausted")
)

// State is the connection state of the channel.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Handler receives every notification event, unchanged. Deduplication is not the channel's job.
type Handler func(ctx context.Context, n notification.Notification)

// Observer is notified about lifecycle events (connect, disconnect, connect_error,
// notification) and state changes. Declared on the consumer side.
type Observer interface {
	ObserveEvent(event string)
	ObserveState(state State)
}

// ChannelConfig holds the reconnect policy.
type ChannelConfig struct {
	// ReconnectAttempts is the number of reconnect attempts after the first connect
	// attempt (or after a drop) before the channel gives up.
	ReconnectAttempts int

	// ReconnectDelay is the delay before the first reconnect attempt; it doubles per attempt.
	ReconnectDelay time.Duration

	// ReconnectDelayMax caps the reconnect delay.
	ReconnectDelayMax time.Duration
}

// DefaultChannelConfig returns the default reconnect policy: 5 attempts, 1s doubling to 5s.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		ReconnectAttempts: defaultReconnectAttempts,
		ReconnectDelay:    defaultReconnectDelay,
		ReconnectDelayMax: defaultReconnectDelayMax,
	}
}

// Channel maintains the realtime connection for one session.
type Channel struct {
	session    *session.Session
	transports []Transport
	handler    Handler
	config     ChannelConfig
	logger     *slog.Logger
	observer   Observer

	running atomic.Bool

	mu         sync.RWMutex
	state      State
	transport  string
	reconnects int
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithChannelConfig sets the reconnect policy.
func WithChannelConfig(config ChannelConfig) ChannelOption {
	return func(c *Channel) {
		c.config = config
	}
}

// WithChannelLogger sets the logger for the channel.
func WithChannelLogger(logger *slog.Logger) ChannelOption {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(observer Observer) ChannelOption {
	return func(c *Channel) {
		c.observer = observer
	}
}

// WithTransports sets the transports in preference order.
func WithTransports(transports ...Transport) ChannelOption {
	return func(c *Channel) {
		c.transports = transports
	}
}

// NewChannel creates a realtime channel. Without WithTransports it prefers a
// websocket to the session's RealtimeURL and falls back to SSE on its EventsURL.
func NewChannel(s *session.Session, handler Handler, opts ...ChannelOption) *Channel {
	c := &Channel{
		session: s,
		handler: handler,
		config:  DefaultChannelConfig(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.transports == nil {
		c.transports = []Transport{
			NewWebSocketTransport(s.RealtimeURL(), DefaultTransportConfig(), c.logger),
			NewSSETransport(s.EventsURL(), nil),
		}
	}

	return c
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Transport returns the name of the transport of the current (or last) connection.
func (c *Channel) Transport() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport
}

// Reconnects returns the total number of reconnect attempts made by this channel.
func (c *Channel) Reconnects() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnects
}

// Run activates the channel and blocks until ctx is cancelled, the reconnect budget
// is exhausted or the backend rejects the token. Once Run returns the handler is
// never invoked again. Without a valid session token the channel logs and returns
// nil without connecting.
func (c *Channel) Run(ctx context.Context) error {
	if err := c.session.Validate(ctx); err != nil {
		c.logger.WarnContext(ctx, "realtime channel not activated",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)
	defer c.setState(StateDisconnected)

	connID := uuid.NewUUID().Short()
	logger := c.logger.With(slog.String("conn_id", connID))

	c.setState(StateConnecting)

	attempt := 0
	for {
		stream, name, err := c.connect(ctx, logger)
		if ctx.Err() != nil {
			if stream != nil {
				_ = stream.Close()
			}
			return nil
		}

		if err == nil {
			attempt = 0
			c.connected(name)
			logger.InfoContext(ctx, "realtime channel connected", slog.String("transport", name))

			err = c.consume(ctx, stream)
			_ = stream.Close()
			if ctx.Err() != nil {
				c.emit(notification.EventDisconnect)
				return nil
			}

			c.emit(notification.EventDisconnect)
			logger.WarnContext(ctx, "realtime channel disconnected",
				slog.String("transport", name),
				slog.String("error", err.Error()),
			)
		} else {
			c.emit(notification.EventConnectError)
			logger.WarnContext(ctx, "realtime connect failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, errs.ErrAuth) {
				c.session.ReportUnauthorized(ctx, err)
				return err
			}
		}

		if attempt >= c.config.ReconnectAttempts {
			logger.ErrorContext(ctx, "realtime reconnect budget exhausted",
				slog.Int("attempts", attempt),
			)
			return fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempt)
		}

		attempt++
		c.reconnecting()

		delay := c.delay(attempt)
		logger.DebugContext(ctx, "realtime reconnect scheduled",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// connect tries each transport in preference order and returns the first stream.
func (c *Channel) connect(ctx context.Context, logger *slog.Logger) (Stream, string, error) {
	token, err := c.session.Token(ctx)
	if err != nil {
		return nil, "", err
	}

	if len(c.transports) == 0 {
		return nil, "", errors.New("no realtime transports configured")
	}

	var errList []error
	for _, t := range c.transports {
		stream, connErr := t.Connect(ctx, token)
		if connErr == nil {
			return stream, t.Name(), nil
		}
		if errors.Is(connErr, errs.ErrAuth) {
			return nil, "", connErr
		}
		logger.DebugContext(ctx, "realtime transport unavailable",
			slog.String("transport", t.Name()),
			slog.String("error", connErr.Error()),
		)
		errList = append(errList, fmt.Errorf("%s: %w", t.Name(), connErr))
		if ctx.Err() != nil {
			break
		}
	}

	return nil, "", errors.Join(errList...)
}

// consume forwards events until the stream fails or ctx is cancelled.
func (c *Channel) consume(ctx context.Context, stream Stream) error {
	stop := context.AfterFunc(ctx, func() {
		_ = stream.Close()
	})
	defer stop()

	for {
		evt, err := stream.Next()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch evt.Type {
		case notification.EventNotification:
			c.dispatch(ctx, evt.Data)
		default:
			c.logger.DebugContext(ctx, "ignoring realtime event", slog.String("type", evt.Type))
		}
	}
}

func (c *Channel) dispatch(ctx context.Context, data json.RawMessage) {
	var n notification.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		c.logger.WarnContext(ctx, "invalid notification payload", slog.String("error", err.Error()))
		return
	}
	if err := n.Validate(); err != nil {
		c.logger.WarnContext(ctx, "notification without id dropped")
		return
	}

	c.emit(notification.EventNotification)
	if c.handler != nil {
		c.handler(ctx, n)
	}
}

// delay returns the backoff before reconnect attempt n (1-based). A zero
// ReconnectDelayMax leaves the doubling uncapped.
func (c *Channel) delay(attempt int) time.Duration {
	d, limit := c.config.ReconnectDelay, c.config.ReconnectDelayMax
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if limit > 0 && d >= limit {
			break
		}
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

func (c *Channel) connected(transport string) {
	c.mu.Lock()
	c.transport = transport
	c.mu.Unlock()
	c.setState(StateConnected)
	c.emit(notification.EventConnect)
}

func (c *Channel) reconnecting() {
	c.mu.Lock()
	c.reconnects++
	c.mu.Unlock()
	c.setState(StateReconnecting)
}

func (c *Channel) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()

	if changed && c.observer != nil {
		c.observer.ObserveState(state)
	}
}

func (c *Channel) emit(event string) {
	if c.observer != nil {
		c.observer.ObserveEvent(event)
	}
}
