// Package service wires the notification sources into one activation scope.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lllypuk/inboxsync/internal/application/inbox"
	"github.com/lllypuk/inboxsync/internal/domain/notification"
	"github.com/lllypuk/inboxsync/internal/infrastructure/platform"
	"github.com/lllypuk/inboxsync/internal/infrastructure/websocket"
	"github.com/lllypuk/inboxsync/internal/session"
	"github.com/lllypuk/inboxsync/internal/worker"
)

// ErrAlreadyActive is returned by Start on an active Sync.
var ErrAlreadyActive = errors.New("sync already active")

// Gateway loads the inbox. Declared on the consumer side.
type Gateway interface {
	List(ctx context.Context, limit, offset int) ([]notification.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
}

// Notifier shows native notifications.
type Notifier interface {
	Capabilities() platform.Capabilities
	Permission() platform.Permission
	ShowNotification(ctx context.Context, n notification.NativeNotification) error
}

// Observer records inbox state and native notifications.
type Observer interface {
	ObserveInbox(unread, items, pending int)
	ObserveNativeShown()
}

// Status describes the activation.
type Status struct {
	Active bool

	// RealtimeRunning is false once the channel gave up (reconnect budget or
	// rejected token) while the activation still polls. Reactivate re-arms it.
	RealtimeRunning bool
	Realtime        websocket.State
	Transport       string
	Reconnects      int
}

// Sync supervises the realtime channel and the unread poller for one session.
// Start runs the initial load and launches both sources; Stop cancels them and
// waits, after which neither mutates the store.
type Sync struct {
	session  *session.Session
	store    *inbox.Store
	gateway  Gateway
	channel  *websocket.Channel
	poller   *worker.UnreadPoller
	notifier Notifier
	observer Observer
	logger   *slog.Logger

	channelOpts  []websocket.ChannelOption
	pollerConfig worker.UnreadPollerConfig

	// lifecycle serializes Start, Stop and Reactivate; mu guards the fields below
	// and is never held across network calls.
	lifecycle sync.Mutex

	mu              sync.Mutex
	parent          context.Context
	cancel          context.CancelFunc
	done            chan struct{}
	realtimeRunning bool
}

// Option configures Sync.
type Option func(*Sync)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sync) {
		s.logger = logger
	}
}

// WithNotifier enables native notifications for realtime arrivals.
func WithNotifier(n Notifier) Option {
	return func(s *Sync) {
		s.notifier = n
	}
}

// WithObserver sets the inbox observer (metrics).
func WithObserver(o Observer) Option {
	return func(s *Sync) {
		s.observer = o
	}
}

// WithChannelOptions passes options to the realtime channel.
func WithChannelOptions(opts ...websocket.ChannelOption) Option {
	return func(s *Sync) {
		s.channelOpts = append(s.channelOpts, opts...)
	}
}

// WithPollerConfig sets the unread poller configuration.
func WithPollerConfig(config worker.UnreadPollerConfig) Option {
	return func(s *Sync) {
		s.pollerConfig = config
	}
}

// NewSync creates a supervisor feeding store from gateway and the realtime channel.
func NewSync(s *session.Session, store *inbox.Store, gateway Gateway, opts ...Option) *Sync {
	sy := &Sync{
		session:      s,
		store:        store,
		gateway:      gateway,
		logger:       slog.Default(),
		pollerConfig: worker.DefaultUnreadPollerConfig(),
	}

	for _, opt := range opts {
		opt(sy)
	}

	channelOpts := append([]websocket.ChannelOption{websocket.WithChannelLogger(sy.logger)}, sy.channelOpts...)
	sy.channel = websocket.NewChannel(s, sy.handleNotification, channelOpts...)
	sy.poller = worker.NewUnreadPoller(gateway, store, sy.logger, sy.pollerConfig)

	return sy
}

// SetPollObserver sets an observer for unread poll outcomes.
func (s *Sync) SetPollObserver(o worker.PollObserver) {
	s.poller.SetObserver(o)
}

// Store returns the store fed by this supervisor.
func (s *Sync) Store() *inbox.Store {
	return s.store
}

// Status reports whether the sources are active and the realtime state.
func (s *Sync) Status() Status {
	s.mu.Lock()
	active := s.cancel != nil
	running := s.realtimeRunning
	s.mu.Unlock()

	return Status{
		Active:          active,
		RealtimeRunning: running,
		Realtime:        s.channel.State(),
		Transport:       s.channel.Transport(),
		Reconnects:      s.channel.Reconnects(),
	}
}

// Start activates the session: initial load, then the realtime channel and
// the unread poller in one cancellable scope. It requires a valid session token.
// The activation lives until Stop or until ctx is cancelled.
func (s *Sync) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	active := s.cancel != nil
	if !active {
		s.parent = ctx
	}
	s.mu.Unlock()

	if active {
		return ErrAlreadyActive
	}
	if err := s.session.Validate(ctx); err != nil {
		return fmt.Errorf("activate sync: %w", err)
	}

	s.load(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	s.setRealtimeRunning(true)
	g.Go(func() error {
		defer s.setRealtimeRunning(false)
		if err := s.channel.Run(gctx); err != nil {
			// the poller keeps correcting the counter without realtime
			s.logger.WarnContext(gctx, "realtime channel stopped",
				slog.String("error", err.Error()),
			)
		}
		return nil
	})

	g.Go(func() error {
		if err := s.poller.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if s.observer != nil {
		updates, unsubscribe := s.store.Subscribe()
		g.Go(func() error {
			defer unsubscribe()
			for {
				select {
				case <-gctx.Done():
					return nil
				case snap := <-updates:
					s.observer.ObserveInbox(snap.UnreadCount, len(snap.Items), snap.Pending)
				}
			}
		})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := g.Wait(); err != nil {
			s.logger.ErrorContext(ctx, "sync stopped with error", slog.String("error", err.Error()))
		}
	}()

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "sync activated")
	return nil
}

// Stop deactivates the session and waits for every source to return.
func (s *Sync) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.stop()
}

// Reactivate stops the current activation, if any, and starts a new one with
// a fresh token read and a fresh reconnect budget. The new activation inherits
// the context of the first Start; ctx only bounds the initial load when there was none.
func (s *Sync) Reactivate(ctx context.Context) error {
	s.lifecycle.Lock()
	s.stop()
	s.mu.Lock()
	parent := s.parent
	s.mu.Unlock()
	s.lifecycle.Unlock()

	if parent == nil {
		parent = context.WithoutCancel(ctx)
	}
	if err := parent.Err(); err != nil {
		return fmt.Errorf("activate sync: %w", err)
	}
	return s.Start(parent)
}

// Deactivate ends the session: sources stop and the inbox is emptied.
func (s *Sync) Deactivate() {
	s.Stop()
	s.store.Clear()
	s.logger.Info("session inbox cleared")
}

func (s *Sync) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done

	s.mu.Lock()
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	s.logger.Info("sync deactivated")
}

func (s *Sync) setRealtimeRunning(running bool) {
	s.mu.Lock()
	s.realtimeRunning = running
	s.mu.Unlock()
}

// load fetches the list and the unread count concurrently; each result is
// committed on its own so one failure does not discard the other.
func (s *Sync) load(ctx context.Context) {
	var g errgroup.Group

	g.Go(func() error {
		items, err := s.gateway.List(ctx, s.store.WindowSize(), 0)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to load notifications", slog.String("error", err.Error()))
			return nil
		}
		s.store.ReplaceItems(items)
		return nil
	})

	g.Go(func() error {
		count, err := s.gateway.UnreadCount(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to load unread count", slog.String("error", err.Error()))
			return nil
		}
		s.store.ReplaceUnreadCount(count)
		return nil
	})

	_ = g.Wait()
}

func (s *Sync) handleNotification(ctx context.Context, n notification.Notification) {
	if err := n.Validate(); err != nil {
		s.logger.WarnContext(ctx, "dropping malformed notification", slog.String("error", err.Error()))
		return
	}

	s.store.Add(n)
	s.showNative(ctx, n)
}

// showNative displays every arrival; the platform coalesces repeats by tag.
func (s *Sync) showNative(ctx context.Context, n notification.Notification) {
	if s.notifier == nil {
		return
	}
	if !s.notifier.Capabilities().LocalNotifications || s.notifier.Permission() != platform.PermissionGranted {
		return
	}

	if err := s.notifier.ShowNotification(ctx, notification.NativeFrom(n)); err != nil {
		s.logger.WarnContext(ctx, "failed to show native notification",
			slog.String("notification_id", n.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if s.observer != nil {
		s.observer.ObserveNativeShown()
	}
}
