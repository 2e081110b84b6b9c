// Package push manages the platform push subscription lifecycle: support
// detection, the permission prompt, subscribe/unsubscribe and backend registration.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
	"github.com/lllypuk/inboxsync/internal/domain/notification"
	"github.com/lllypuk/inboxsync/internal/infrastructure/platform"
)

// Gateway is the part of the notification gateway the manager needs.
// Declared on the consumer side.
type Gateway interface {
	VapidPublicKey(ctx context.Context) (string, error)
	RegisterPushSubscription(ctx context.Context, sub notification.PushSubscription) error
	UnregisterPushSubscription(ctx context.Context) error
}

// Platform provides capability detection, permission and the platform subscription.
// Declared on the consumer side.
type Platform interface {
	Capabilities() platform.Capabilities
	Permission() platform.Permission
	RequestPermission(ctx context.Context) (platform.Permission, error)
	Subscription(ctx context.Context) (*platform.Subscription, error)
	Subscribe(ctx context.Context, applicationServerKey string) (*platform.Subscription, error)
	Unsubscribe(ctx context.Context) error
}

// State is a snapshot of the manager.
type State struct {
	Supported    bool
	Permission   platform.Permission
	Subscription *notification.PushSubscription

	// Err is the failure of the last operation, nil after a success.
	Err error
}

// Manager owns the push subscription of one device for one session.
// Operations never return errors; callers see the result and State().
type Manager struct {
	gateway  Gateway
	platform Platform
	logger   *slog.Logger

	// op serializes user-initiated operations.
	op sync.Mutex

	mu       sync.RWMutex
	state    State
	checked  bool
	disabled bool
}

// Option configures Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a push subscription manager.
func NewManager(gateway Gateway, p Platform, opts ...Option) *Manager {
	m := &Manager{
		gateway:  gateway,
		platform: p,
		logger:   slog.Default(),
		state: State{
			Permission: p.Permission(),
		},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.state
	if s.Subscription != nil {
		sub := *s.Subscription
		s.Subscription = &sub
	}
	return s
}

// CheckSupport reports whether the platform has both a background agent and a
// push manager. A negative answer disables the manager for the rest of the session.
func (m *Manager) CheckSupport() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disabled {
		return false
	}
	if m.checked {
		return m.state.Supported
	}

	caps := m.platform.Capabilities()
	m.checked = true
	m.state.Supported = caps.BackgroundAgent && caps.Push
	if !m.state.Supported {
		m.disabled = true
		m.state.Err = errs.ErrPlatformUnsupported
		m.logger.Info("push notifications are not supported on this platform",
			slog.Bool("background_agent", caps.BackgroundAgent),
			slog.Bool("push", caps.Push),
		)
	}
	return m.state.Supported
}

// Restore picks up a platform subscription left by a previous run so State reflects it.
// It never prompts.
func (m *Manager) Restore(ctx context.Context) {
	if !m.CheckSupport() {
		return
	}

	m.op.Lock()
	defer m.op.Unlock()

	sub, err := m.platform.Subscription(ctx)
	if err != nil {
		m.fail(ctx, "failed to read existing push subscription", err)
		return
	}

	m.mu.Lock()
	m.state.Permission = m.platform.Permission()
	if sub != nil {
		ps := sub.PushSubscription
		m.state.Subscription = &ps
	}
	m.mu.Unlock()
}

// RequestPermission shows the platform permission prompt. It must only be
// called in response to a user action. It returns whether permission was granted.
func (m *Manager) RequestPermission(ctx context.Context) bool {
	if !m.CheckSupport() {
		return false
	}

	m.op.Lock()
	defer m.op.Unlock()

	return m.requestPermission(ctx)
}

func (m *Manager) requestPermission(ctx context.Context) bool {
	perm, err := m.platform.RequestPermission(ctx)

	m.mu.Lock()
	m.state.Permission = perm
	m.mu.Unlock()

	if err != nil {
		m.fail(ctx, "permission request failed", err)
		return false
	}
	if perm != platform.PermissionGranted {
		m.fail(ctx, "notification permission not granted", errs.ErrPermissionDenied)
		return false
	}
	return true
}

// Subscribe opts the device into push: permission, platform subscription bound
// to the server key, then backend registration. A platform subscription bound
// to a different key is stale and gets replaced.
func (m *Manager) Subscribe(ctx context.Context) bool {
	if !m.CheckSupport() {
		return false
	}

	m.op.Lock()
	defer m.op.Unlock()

	if m.platform.Permission() != platform.PermissionGranted && !m.requestPermission(ctx) {
		return false
	}

	key, err := m.gateway.VapidPublicKey(ctx)
	if err != nil {
		m.fail(ctx, "failed to fetch push public key", err)
		return false
	}

	sub, err := m.platformSubscription(ctx, key)
	if err != nil {
		m.fail(ctx, "failed to create push subscription", err)
		return false
	}

	ps := sub.PushSubscription
	m.mu.Lock()
	m.state.Permission = platform.PermissionGranted
	m.state.Subscription = &ps
	m.mu.Unlock()

	if err = m.gateway.RegisterPushSubscription(ctx, ps); err != nil {
		m.fail(ctx, "failed to register push subscription", err)
		return false
	}

	m.mu.Lock()
	m.state.Err = nil
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "push subscription registered", slog.String("endpoint", ps.Endpoint))
	return true
}

func (m *Manager) platformSubscription(ctx context.Context, key string) (*platform.Subscription, error) {
	existing, err := m.platform.Subscription(ctx)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.ApplicationServerKey == key {
			return existing, nil
		}
		m.logger.InfoContext(ctx, "replacing push subscription bound to a stale key",
			slog.String("endpoint", existing.Endpoint),
		)
		if err = m.platform.Unsubscribe(ctx); err != nil {
			return nil, fmt.Errorf("cancel stale subscription: %w", err)
		}
	}

	return m.platform.Subscribe(ctx, key)
}

// Unsubscribe opts the device out. Without a local subscription it is a
// successful no-op. Otherwise the platform cancel and the backend unregister
// are both attempted; the result is true only when both succeed.
func (m *Manager) Unsubscribe(ctx context.Context) bool {
	m.op.Lock()
	defer m.op.Unlock()

	existing, err := m.platform.Subscription(ctx)
	if err != nil {
		m.fail(ctx, "failed to read push subscription", err)
		return false
	}
	if existing == nil {
		m.mu.Lock()
		m.state.Subscription = nil
		m.state.Err = nil
		m.mu.Unlock()
		return true
	}

	platformErr := m.platform.Unsubscribe(ctx)
	if platformErr != nil {
		platformErr = fmt.Errorf("platform cancel: %w", platformErr)
	}
	serverErr := m.gateway.UnregisterPushSubscription(ctx)
	if serverErr != nil {
		serverErr = fmt.Errorf("server unregister: %w", serverErr)
	}

	m.mu.Lock()
	if platformErr == nil {
		m.state.Subscription = nil
	}
	m.mu.Unlock()

	if err = errors.Join(platformErr, serverErr); err != nil {
		m.fail(ctx, "failed to remove push subscription", err)
		return false
	}

	m.mu.Lock()
	m.state.Err = nil
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "push subscription removed", slog.String("endpoint", existing.Endpoint))
	return true
}

func (m *Manager) fail(ctx context.Context, msg string, err error) {
	m.mu.Lock()
	m.state.Err = err
	m.mu.Unlock()

	m.logger.WarnContext(ctx, msg, slog.String("error", err.Error()))
}
