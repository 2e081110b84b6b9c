package inbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/inboxsync/internal/application/inbox"
	"github.com/lllypuk/inboxsync/internal/domain/errs"
	"github.com/lllypuk/inboxsync/internal/domain/notification"
)

type recordingGateway struct {
	err   error
	calls []string

	// seen is the unread counter observed when the gateway was called.
	seen  []int
	store *inbox.Store
}

func (g *recordingGateway) record(call string) error {
	g.calls = append(g.calls, call)
	if g.store != nil {
		g.seen = append(g.seen, g.store.UnreadCount())
	}
	return g.err
}

func (g *recordingGateway) MarkRead(_ context.Context, id string) error {
	return g.record("read:" + id)
}

func (g *recordingGateway) MarkAllRead(context.Context) error {
	return g.record("read-all")
}

func (g *recordingGateway) Delete(_ context.Context, id string) error {
	return g.record("delete:" + id)
}

type recordingNavigator struct {
	urls   []string
	closed int
}

func (n *recordingNavigator) Navigate(_ context.Context, url string) {
	n.urls = append(n.urls, url)
}

func (n *recordingNavigator) ClosePanel(context.Context) {
	n.closed++
}

func newInbox(t *testing.T, gwErr error, items []notification.Notification, count int) (*inbox.Inbox, *recordingGateway, *recordingNavigator) {
	t.Helper()

	store := inbox.NewStore()
	store.Load(items, count)

	gw := &recordingGateway{err: gwErr, store: store}
	nav := &recordingNavigator{}
	return inbox.New(store, gw, inbox.WithNavigator(nav)), gw, nav
}

func TestInbox_MarkRead_Optimistic(t *testing.T) {
	// Arrange
	n9 := item("n9", false)
	n9.URL = "/tasks/42"
	ib, gw, nav := newInbox(t, nil, []notification.Notification{n9, item("n1", false)}, 2)

	// Act
	err := ib.MarkRead(context.Background(), "n9")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"read:n9"}, gw.calls)
	assert.Equal(t, []int{1}, gw.seen, "store is updated before the gateway call")

	got, ok := ib.Store().Get("n9")
	require.True(t, ok)
	assert.True(t, got.Read)
	assert.Equal(t, 1, ib.Store().UnreadCount())
	assert.Equal(t, 0, ib.Store().Snapshot().Pending)

	assert.Equal(t, []string{"/tasks/42"}, nav.urls)
	assert.Equal(t, 1, nav.closed)
}

func TestInbox_MarkRead_WithoutURL(t *testing.T) {
	ib, _, nav := newInbox(t, nil, []notification.Notification{item("n1", false)}, 1)

	require.NoError(t, ib.MarkRead(context.Background(), "n1"))

	assert.Empty(t, nav.urls)
	assert.Equal(t, 1, nav.closed)
}

func TestInbox_MarkRead_RevertedOnFailure(t *testing.T) {
	n1 := item("n1", false)
	n1.URL = "/calendar"
	ib, gw, nav := newInbox(t, errs.ErrTransport, []notification.Notification{n1}, 1)

	err := ib.MarkRead(context.Background(), "n1")

	require.ErrorIs(t, err, errs.ErrTransport)
	assert.Equal(t, []int{0}, gw.seen)

	got, _ := ib.Store().Get("n1")
	assert.False(t, got.Read)
	assert.Equal(t, 1, ib.Store().UnreadCount())
	assert.Equal(t, 0, ib.Store().Snapshot().Pending)
	assert.Equal(t, []string{"/calendar"}, nav.urls)
}

// slowGateway answers after a delay unless its context is cancelled first.
type slowGateway struct {
	delay time.Duration
}

func (g slowGateway) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(g.delay):
		return nil
	}
}

func (g slowGateway) MarkRead(ctx context.Context, _ string) error { return g.wait(ctx) }
func (g slowGateway) MarkAllRead(ctx context.Context) error { return g.wait(ctx) }
func (g slowGateway) Delete(ctx context.Context, _ string) error { return g.wait(ctx) }

func TestInbox_CallerCancellationDoesNotRevert(t *testing.T) {
	tests := []struct {
		name   string
		act    func(ctx context.Context, ib *inbox.Inbox) error
		unread int
		items  int
	}{
		{
			name:   "mark read",
			act:    func(ctx context.Context, ib *inbox.Inbox) error { return ib.MarkRead(ctx, "n1") },
			unread: 1,
			items:  2,
		},
		{
			name:   "mark all read",
			act:    func(ctx context.Context, ib *inbox.Inbox) error { return ib.MarkAllRead(ctx) },
			unread: 0,
			items:  2,
		},
		{
			name:   "delete",
			act:    func(ctx context.Context, ib *inbox.Inbox) error { return ib.Delete(ctx, "n1") },
			unread: 1,
			items:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := inbox.NewStore()
			store.Load([]notification.Notification{item("n1", false), item("n2", false)}, 2)
			ib := inbox.New(store, slowGateway{delay: 50 * time.Millisecond})

			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(5*time.Millisecond, cancel)
			defer cancel()

			require.NoError(t, tt.act(ctx, ib))

			snapshot := store.Snapshot()
			assert.Equal(t, 0, snapshot.Pending)
			assert.Equal(t, tt.unread, snapshot.UnreadCount)
			assert.Len(t, snapshot.Items, tt.items)
		})
	}
}

func TestInbox_MarkRead_EmptyID(t *testing.T) {
	ib, gw, _ := newInbox(t, nil, nil, 0)

	err := ib.MarkRead(context.Background(), "")

	require.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Empty(t, gw.calls)
}

func TestInbox_MarkAllRead(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ib, gw, _ := newInbox(t, nil, []notification.Notification{item("n1", false), item("n2", false)}, 30)

		require.NoError(t, ib.MarkAllRead(context.Background()))

		assert.Equal(t, []string{"read-all"}, gw.calls)
		assert.Equal(t, []int{0}, gw.seen)
		snap := ib.Store().Snapshot()
		assert.Equal(t, 0, snap.UnreadCount)
		for _, n := range snap.Items {
			assert.True(t, n.Read)
		}
	})

	t.Run("failure restores state", func(t *testing.T) {
		ib, _, _ := newInbox(t, errors.New("boom"), []notification.Notification{item("n1", false), item("n2", true)}, 30)

		require.Error(t, ib.MarkAllRead(context.Background()))

		snap := ib.Store().Snapshot()
		assert.Equal(t, 30, snap.UnreadCount)
		assert.False(t, snap.Items[0].Read)
		assert.True(t, snap.Items[1].Read)
	})
}

func TestInbox_Delete(t *testing.T) {
	t.Run("unread item", func(t *testing.T) {
		ib, gw, _ := newInbox(t, nil, []notification.Notification{item("n1", false), item("n2", true)}, 2)

		require.NoError(t, ib.Delete(context.Background(), "n1"))

		assert.Equal(t, []string{"delete:n1"}, gw.calls)
		assert.Equal(t, []int{1}, gw.seen)
		assert.Equal(t, []string{"n2"}, ids(ib.Store().Snapshot().Items))
	})

	t.Run("read item", func(t *testing.T) {
		ib, _, _ := newInbox(t, nil, []notification.Notification{item("n1", false), item("n2", true)}, 2)

		require.NoError(t, ib.Delete(context.Background(), "n2"))
		assert.Equal(t, 2, ib.Store().UnreadCount())
	})

	t.Run("failure puts item back", func(t *testing.T) {
		ib, _, _ := newInbox(t, errs.ErrAuth, []notification.Notification{item("n1", false), item("n2", true)}, 2)

		err := ib.Delete(context.Background(), "n1")

		require.ErrorIs(t, err, errs.ErrAuth)
		assert.Equal(t, []string{"n1", "n2"}, ids(ib.Store().Snapshot().Items))
		assert.Equal(t, 2, ib.Store().UnreadCount())
	})
}

func TestInbox_RealtimeThenRead(t *testing.T) {
	// fresh session: three items, badge "2"
	ib, gw, _ := newInbox(t, nil, []notification.Notification{item("n1", false), item("n2", false), item("n3", true)}, 2)
	require.Len(t, ib.Store().Snapshot().Items, 3)
	require.Equal(t, 2, ib.Store().UnreadCount())

	// realtime arrival goes first and bumps the badge
	require.True(t, ib.Store().Add(notification.Notification{ID: "n9", Title: "X", Read: false}))
	snap := ib.Store().Snapshot()
	assert.Len(t, snap.Items, 4)
	assert.Equal(t, "n9", snap.Items[0].ID)
	assert.Equal(t, 3, snap.UnreadCount)

	// user opens it
	require.NoError(t, ib.MarkRead(context.Background(), "n9"))
	got, _ := ib.Store().Get("n9")
	assert.True(t, got.Read)
	assert.Equal(t, 2, ib.Store().UnreadCount())
	assert.Equal(t, []string{"read:n9"}, gw.calls)
}
