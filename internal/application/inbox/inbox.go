package inbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
)

// Gateway confirms user actions with the backend.
// Declared on the consumer side.
type Gateway interface {
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

// Navigator opens deep links and closes the notification panel.
type Navigator interface {
	Navigate(ctx context.Context, url string)
	ClosePanel(ctx context.Context)
}

// Inbox applies user actions optimistically to the store and confirms them
// with the gateway. A rejected action is reverted.
type Inbox struct {
	store     *Store
	gateway   Gateway
	navigator Navigator
	logger    *slog.Logger
}

// Option configures Inbox.
type Option func(*Inbox)

// WithNavigator sets the navigator used after a notification is opened.
func WithNavigator(n Navigator) Option {
	return func(i *Inbox) {
		i.navigator = n
	}
}

// WithInboxLogger sets the logger.
func WithInboxLogger(logger *slog.Logger) Option {
	return func(i *Inbox) {
		i.logger = logger
	}
}

// New creates an Inbox over store.
func New(store *Store, gateway Gateway, opts ...Option) *Inbox {
	i := &Inbox{
		store:   store,
		gateway: gateway,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Store returns the underlying store.
func (i *Inbox) Store() *Store {
	return i.store
}

// MarkRead marks a notification read, then navigates to its deep link (if
// any) and closes the panel. Navigation happens even when the backend rejects
// the change.
func (i *Inbox) MarkRead(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: notification id is required", errs.ErrInvalidInput)
	}

	item, inWindow := i.store.Get(id)

	action := i.store.MarkRead(id)
	err := i.confirm(ctx, action, i.gateway.MarkRead(context.WithoutCancel(ctx), id))

	if i.navigator != nil {
		if inWindow && item.HasURL() {
			i.navigator.Navigate(ctx, item.URL)
		}
		i.navigator.ClosePanel(ctx)
	}

	return err
}

// MarkAllRead marks every notification read.
func (i *Inbox) MarkAllRead(ctx context.Context) error {
	action := i.store.MarkAllRead()
	return i.confirm(ctx, action, i.gateway.MarkAllRead(context.WithoutCancel(ctx)))
}

// Delete removes a notification.
func (i *Inbox) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: notification id is required", errs.ErrInvalidInput)
	}

	action := i.store.Remove(id)
	return i.confirm(ctx, action, i.gateway.Delete(context.WithoutCancel(ctx), id))
}

// confirm settles an optimistic action with the backend's answer. Backend
// calls run detached from the caller's cancellation so a dropped request does
// not revert a change the backend may already have applied.
func (i *Inbox) confirm(ctx context.Context, action Action, err error) error {
	if err == nil {
		i.store.Commit(action.ID)
		return nil
	}

	i.store.Revert(action.ID)
	i.logger.WarnContext(ctx, "notification action rejected, reverted",
		slog.String("action", string(action.Kind)),
		slog.String("notification_id", action.NotificationID),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%s: %w", action.Kind, err)
}
