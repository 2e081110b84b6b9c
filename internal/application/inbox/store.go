// Package inbox holds the client-side notification inbox: a bounded recency
// window of notifications plus the authoritative unread counter, and the
// optimistic user actions that mutate it.
package inbox

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/lllypuk/inboxsync/internal/domain/notification"
	"github.com/lllypuk/inboxsync/internal/domain/uuid"
)

// Default store configuration values.
const (
	defaultWindowSize     = 20
	defaultSubscriberSize = 1
)

// ActionKind identifies an optimistic mutation.
type ActionKind string

// Action kinds.
const (
	ActionMarkRead    ActionKind = "mark_read"
	ActionMarkAllRead ActionKind = "mark_all_read"
	ActionDelete      ActionKind = "delete"
)

// Action is a pending optimistic mutation. It stays pending until it is
// committed or reverted.
type Action struct {
	ID             uuid.UUID
	Kind           ActionKind
	NotificationID string
}

// compensation restores what an action changed.
type compensation struct {
	action Action

	// unreadDelta is added back to the counter on revert.
	unreadDelta int

	// unread are ids flipped from unread to read.
	unread []string

	// removed is the deleted item and its position.
	removed      *notification.Notification
	removedIndex int
}

// Snapshot is a consistent copy of the store state.
type Snapshot struct {
	Items       []notification.Notification
	UnreadCount int
	Pending     int
}

// Store is the client-owned inbox state for one session. Every merge is
// applied atomically under the store lock.
type Store struct {
	logger *slog.Logger
	bound  int

	mu          sync.Mutex
	items       []notification.Notification
	unreadCount int
	pending     map[uuid.UUID]compensation
	subscribers map[chan Snapshot]struct{}
}

// StoreOption configures Store.
type StoreOption func(*Store)

// WithWindowSize sets the bound of the recency window.
func WithWindowSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.bound = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		logger:      slog.Default(),
		bound:       defaultWindowSize,
		pending:     make(map[uuid.UUID]compensation),
		subscribers: make(map[chan Snapshot]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WindowSize returns the bound of the recency window.
func (s *Store) WindowSize() int {
	return s.bound
}

// Load replaces both the items and the counter.
func (s *Store) Load(items []notification.Notification, unreadCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replaceItemsLocked(items)
	s.unreadCount = max(unreadCount, 0)
	s.publishLocked()
}

// ReplaceItems replaces the window with a freshly listed page.
func (s *Store) ReplaceItems(items []notification.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replaceItemsLocked(items)
	s.publishLocked()
}

// ReplaceUnreadCount overwrites the counter with a server value, regardless of
// optimistic adjustments made since the last refresh.
func (s *Store) ReplaceUnreadCount(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unreadCount = max(count, 0)
	s.publishLocked()
}

// Add merges a realtime arrival. Ids already in the window are ignored; a new
// item is prepended, the window truncated, and the counter incremented if the
// item is unread. It reports whether the item was inserted.
func (s *Store) Add(n notification.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(n.ID) >= 0 {
		s.logger.Debug("duplicate notification ignored", slog.String("notification_id", n.ID))
		return false
	}

	s.items = slices.Insert(s.items, 0, n.Clone())
	if len(s.items) > s.bound {
		s.items = s.items[:s.bound]
	}
	if !n.Read {
		s.unreadCount++
	}

	s.publishLocked()
	return true
}

// MarkRead flips an item to read and decrements the counter. An item already
// read in the window leaves the counter unchanged; an id outside the window is
// assumed unread.
func (s *Store) MarkRead(id string) Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := compensation{action: s.newActionLocked(ActionMarkRead, id)}

	idx := s.indexLocked(id)
	decrement := idx < 0
	if idx >= 0 && !s.items[idx].Read {
		s.items[idx].Read = true
		c.unread = []string{id}
		decrement = true
	}
	if decrement && s.unreadCount > 0 {
		s.unreadCount--
		c.unreadDelta = 1
	}

	s.pending[c.action.ID] = c
	s.publishLocked()
	return c.action
}

// MarkAllRead flips every item to read and zeroes the counter.
func (s *Store) MarkAllRead() Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := compensation{
		action:      s.newActionLocked(ActionMarkAllRead, ""),
		unreadDelta: s.unreadCount,
	}
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			c.unread = append(c.unread, s.items[i].ID)
		}
	}
	s.unreadCount = 0

	s.pending[c.action.ID] = c
	s.publishLocked()
	return c.action
}

// Remove deletes an item from the window; deleting an unread item decrements
// the counter.
func (s *Store) Remove(id string) Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := compensation{action: s.newActionLocked(ActionDelete, id)}

	if idx := s.indexLocked(id); idx >= 0 {
		removed := s.items[idx]
		s.items = slices.Delete(s.items, idx, idx+1)
		c.removed = &removed
		c.removedIndex = idx

		if !removed.Read && s.unreadCount > 0 {
			s.unreadCount--
			c.unreadDelta = 1
		}
	}

	s.pending[c.action.ID] = c
	s.publishLocked()
	return c.action
}

// Commit forgets a confirmed action. It reports whether the action was pending.
func (s *Store) Commit(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

// Revert undoes a rejected action against the current state. It reports
// whether the action was pending.
func (s *Store) Revert(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.pending[id]
	if !ok {
		return false
	}
	delete(s.pending, id)

	for _, nid := range c.unread {
		if idx := s.indexLocked(nid); idx >= 0 {
			s.items[idx].Read = false
		}
	}
	if c.removed != nil && s.indexLocked(c.removed.ID) < 0 {
		at := min(c.removedIndex, len(s.items))
		s.items = slices.Insert(s.items, at, *c.removed)
		if len(s.items) > s.bound {
			s.items = s.items[:s.bound]
		}
	}
	s.unreadCount += c.unreadDelta

	s.logger.Debug("optimistic action reverted",
		slog.String("action_id", c.action.ID.String()),
		slog.String("kind", string(c.action.Kind)),
	)

	s.publishLocked()
	return true
}

// Clear empties the store and drops pending actions.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.unreadCount = 0
	clear(s.pending)
	s.publishLocked()
}

// Get returns the item with id if it is in the window.
func (s *Store) Get(id string) (notification.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return notification.Notification{}, false
	}
	return s.items[idx].Clone(), true
}

// UnreadCount returns the counter.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadCount
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every change. A slow
// subscriber only ever sees the latest snapshot; older ones are dropped.
// The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, defaultSubscriberSize)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) replaceItemsLocked(items []notification.Notification) {
	if len(items) > s.bound {
		items = items[:s.bound]
	}
	s.items = make([]notification.Notification, 0, len(items))
	for _, n := range items {
		s.items = append(s.items, n.Clone())
	}
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.items, func(n notification.Notification) bool {
		return n.ID == id
	})
}

func (s *Store) newActionLocked(kind ActionKind, notificationID string) Action {
	return Action{
		ID:             uuid.NewUUID(),
		Kind:           kind,
		NotificationID: notificationID,
	}
}

func (s *Store) snapshotLocked() Snapshot {
	items := make([]notification.Notification, 0, len(s.items))
	for _, n := range s.items {
		items = append(items, n.Clone())
	}
	return Snapshot{
		Items:       items,
		UnreadCount: s.unreadCount,
		Pending:     len(s.pending),
	}
}

func (s *Store) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}

	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// replace the stale snapshot with the latest one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
