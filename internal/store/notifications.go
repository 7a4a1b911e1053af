package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/pushline/internal/model"
)

// DefaultMaxRetained is used when Options.MaxRetained is not positive.
const DefaultMaxRetained = 50

// Options configures a NotificationStore.
type Options struct {
	// MaxRetained caps the number of stored notifications.
	MaxRetained int

	// RecordName overrides the persisted record name.
	RecordName string

	Logger *zap.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NotificationStore is the single source of truth for notification history.
// Every mutation recomputes the unread count before returning and writes the
// whole aggregate through the Persister. Persistence failures degrade to
// in-memory operation; they are logged, never returned.
type NotificationStore struct {
	mu          sync.Mutex
	persister   Persister
	recordName  string
	maxRetained int
	log         *zap.Logger
	now         func() time.Time

	state model.NotificationState
	ids   map[string]struct{}

	subsMu sync.Mutex
	subs   []func(model.NotificationState)
}

// Open builds a store and loads the persisted aggregate. A missing or
// unreadable record yields an empty store. Expired entries are purged and
// the unread count is recomputed before the store is returned.
func Open(ctx context.Context, p Persister, opts Options) *NotificationStore {
	s := &NotificationStore{
		persister:   p,
		recordName:  opts.RecordName,
		maxRetained: opts.MaxRetained,
		log:         opts.Logger,
		now:         opts.Now,
	}
	if s.recordName == "" {
		s.recordName = StateRecordName
	}
	if s.maxRetained <= 0 {
		s.maxRetained = DefaultMaxRetained
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.reset()
	s.load(ctx)
	return s
}

func (s *NotificationStore) reset() {
	s.state = model.NotificationState{
		Version:       model.StateVersion,
		Notifications: []model.Notification{},
	}
	s.ids = make(map[string]struct{})
}

// load reads the persisted record. Called once from Open.
func (s *NotificationStore) load(ctx context.Context) {
	if s.persister == nil {
		return
	}

	data, err := s.persister.Load(ctx, s.recordName)
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Warn("notification state unreadable, starting empty", zap.Error(err))
		return
	}

	var stored model.NotificationState
	if err := json.Unmarshal(data, &stored); err != nil {
		s.log.Warn("notification state corrupted, starting empty", zap.Error(err))
		return
	}

	before := len(stored.Notifications)
	kept := make([]model.Notification, 0, len(stored.Notifications))
	now := s.now()
	for _, n := range stored.Notifications {
		if n.ID == "" || n.IsExpired(now) {
			continue
		}
		if _, dup := s.ids[n.ID]; dup {
			continue
		}
		n.Priority = model.ParsePriority(string(n.Priority))
		s.ids[n.ID] = struct{}{}
		kept = append(kept, n)
	}
	sort.SliceStable(kept, func(i, j int) bool { return model.Newer(kept[i], kept[j]) })

	s.state.Notifications = kept
	s.state.LastSync = stored.LastSync
	s.evictLocked()
	s.recomputeLocked()

	if len(s.state.Notifications) != before || stored.UnreadCount != s.state.UnreadCount {
		s.persistLocked(ctx)
	}

	s.log.Debug("notification state loaded",
		zap.Int("stored", before),
		zap.Int("kept", len(s.state.Notifications)),
		zap.Int("unread", s.state.UnreadCount),
	)
}

// Insert adds n unless an entry with the same ID is already present.
// added reports whether n is now part of the stored collection: an entry
// older than everything retained in a full store is evicted at once.
// duplicate reports that the ID was already stored, which is the only case
// where n is known to be a repeat of an event seen before.
func (s *NotificationStore) Insert(ctx context.Context, n model.Notification) (added, duplicate bool) {
	if n.ID == "" {
		s.log.Warn("dropping notification without id", zap.String("title", n.Title))
		return false, false
	}

	s.mu.Lock()
	if _, dup := s.ids[n.ID]; dup {
		s.mu.Unlock()
		s.log.Debug("duplicate notification ignored", zap.String("id", n.ID))
		return false, true
	}

	n = n.Clone()
	n.Priority = model.ParsePriority(string(n.Priority))

	list := s.state.Notifications
	pos := sort.Search(len(list), func(i int) bool { return model.Newer(n, list[i]) })
	list = append(list, model.Notification{})
	copy(list[pos+1:], list[pos:])
	list[pos] = n
	s.state.Notifications = list
	s.ids[n.ID] = struct{}{}

	s.evictLocked()
	_, kept := s.ids[n.ID]

	now := s.now().UTC()
	s.state.LastSync = &now
	s.recomputeLocked()
	s.persistLocked(ctx)
	snap := s.state.Clone()
	s.mu.Unlock()

	s.publish(snap)
	return kept, false
}

// MarkRead flags the entry as read. Missing or already-read entries are a
// no-op.
func (s *NotificationStore) MarkRead(ctx context.Context, id string) {
	s.mutate(ctx, func() bool {
		i := s.indexLocked(id)
		if i < 0 || s.state.Notifications[i].Read {
			return false
		}
		s.state.Notifications[i].Read = true
		return true
	})
}

// MarkAllRead flags every active entry as read.
func (s *NotificationStore) MarkAllRead(ctx context.Context) {
	s.mutate(ctx, func() bool {
		changed := false
		for i := range s.state.Notifications {
			n := &s.state.Notifications[i]
			if !n.Read && !n.Archived {
				n.Read = true
				changed = true
			}
		}
		return changed
	})
}

// Archive removes the entry from active views while keeping it in history
// until it expires or is evicted.
func (s *NotificationStore) Archive(ctx context.Context, id string) {
	s.mutate(ctx, func() bool {
		i := s.indexLocked(id)
		if i < 0 || s.state.Notifications[i].Archived {
			return false
		}
		s.state.Notifications[i].Archived = true
		return true
	})
}

// PurgeExpired removes every entry whose expiry lies before now and
// returns how many were removed.
func (s *NotificationStore) PurgeExpired(ctx context.Context, now time.Time) int {
	removed := 0
	s.mutate(ctx, func() bool {
		kept := s.state.Notifications[:0]
		for _, n := range s.state.Notifications {
			if n.IsExpired(now) {
				delete(s.ids, n.ID)
				removed++
				continue
			}
			kept = append(kept, n)
		}
		s.state.Notifications = kept
		return removed > 0
	})
	return removed
}

// Clear resets the store to the empty aggregate and removes the persisted
// record so a later Open starts empty.
func (s *NotificationStore) Clear(ctx context.Context) {
	s.mu.Lock()
	s.reset()
	if s.persister != nil {
		if err := s.persister.Delete(ctx, s.recordName); err != nil {
			s.log.Warn("deleting notification state failed, overwriting", zap.Error(err))
			s.persistLocked(ctx)
		}
	}
	snap := s.state.Clone()
	s.mu.Unlock()

	s.publish(snap)
}

// Snapshot returns a deep copy of the aggregate.
func (s *NotificationStore) Snapshot() model.NotificationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// UnreadCount returns the number of unread, non-archived entries.
func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.UnreadCount
}

// LastSync returns the last sync instant, or nil if the client never synced.
func (s *NotificationStore) LastSync() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastSync == nil {
		return nil
	}
	t := *s.state.LastSync
	return &t
}

// Get returns the entry with the given ID.
func (s *NotificationStore) Get(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.Notification{}, false
	}
	return s.state.Notifications[i].Clone(), true
}

// Active returns non-archived entries, most recent first.
func (s *NotificationStore) Active() []model.Notification {
	return s.filter(func(n model.Notification) bool { return !n.Archived })
}

// Archived returns archived entries, most recent first.
func (s *NotificationStore) Archived() []model.Notification {
	return s.filter(func(n model.Notification) bool { return n.Archived })
}

// Unread returns unread, non-archived entries, most recent first.
func (s *NotificationStore) Unread() []model.Notification {
	return s.filter(model.Notification.IsUnread)
}

// Subscribe registers fn to receive a snapshot after every mutation.
// fn runs on the mutating goroutine after the store lock is released.
func (s *NotificationStore) Subscribe(fn func(model.NotificationState)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *NotificationStore) filter(keep func(model.Notification) bool) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, 0, len(s.state.Notifications))
	for _, n := range s.state.Notifications {
		if keep(n) {
			out = append(out, n.Clone())
		}
	}
	return out
}

// mutate runs fn under the lock; when fn reports a change the derived
// count is recomputed, the aggregate persisted and subscribers notified.
func (s *NotificationStore) mutate(ctx context.Context, fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	s.recomputeLocked()
	s.persistLocked(ctx)
	snap := s.state.Clone()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *NotificationStore) indexLocked(id string) int {
	if _, ok := s.ids[id]; !ok {
		return -1
	}
	for i, n := range s.state.Notifications {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// evictLocked trims the oldest entries beyond the retention cap. The list
// is kept sorted newest first, so the tail is always the oldest.
func (s *NotificationStore) evictLocked() {
	list := s.state.Notifications
	if len(list) <= s.maxRetained {
		return
	}
	for _, n := range list[s.maxRetained:] {
		delete(s.ids, n.ID)
	}
	s.state.Notifications = list[:s.maxRetained:s.maxRetained]
}

func (s *NotificationStore) recomputeLocked() {
	s.state.UnreadCount = model.CountUnread(s.state.Notifications)
}

func (s *NotificationStore) persistLocked(ctx context.Context) {
	if s.persister == nil {
		return
	}
	s.state.Version = model.StateVersion
	data, err := json.Marshal(s.state)
	if err != nil {
		s.log.Error("encoding notification state", zap.Error(err))
		return
	}
	if err := s.persister.Save(ctx, s.recordName, data); err != nil {
		s.log.Warn("persisting notification state failed, continuing in memory", zap.Error(err))
	}
}

func (s *NotificationStore) publish(snap model.NotificationState) {
	s.subsMu.Lock()
	subs := make([]func(model.NotificationState), len(s.subs))
	copy(subs, s.subs)
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
