package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/lockstep/pkg/domain"
)

// StoreEvent is one notification received by the DialogStore.
type StoreEvent struct {
	Kind      string // "opened", "closed" or "closed_all"
	ID        string
	Dismissal *domain.DismissalPolicy
}

// DialogStore implements ports.DialogStore in memory.
// Safe for concurrent use.
type DialogStore struct {
	mu      sync.RWMutex
	modal   map[string]bool
	open    map[string]*domain.DismissalPolicy
	events  []StoreEvent
	latency time.Duration
}

// StoreOption configures a DialogStore.
type StoreOption func(*DialogStore)

// WithModalDialogs registers the ids that denote modal dialogs.
func WithModalDialogs(ids ...string) StoreOption {
	return func(s *DialogStore) {
		for _, id := range ids {
			s.modal[id] = true
		}
	}
}

// WithLatency delays every notification, to simulate an asynchronous store.
func WithLatency(d time.Duration) StoreOption {
	return func(s *DialogStore) {
		s.latency = d
	}
}

// NewDialogStore creates a new in-memory dialog store.
func NewDialogStore(opts ...StoreOption) *DialogStore {
	s := &DialogStore{
		modal: make(map[string]bool),
		open:  make(map[string]*domain.DismissalPolicy),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetModalDialogs replaces the modal catalog.
func (s *DialogStore) SetModalDialogs(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modal = make(map[string]bool, len(ids))
	for _, id := range ids {
		s.modal[id] = true
	}
}

// NotifyOpened marks id as open.
func (s *DialogStore) NotifyOpened(ctx context.Context, id string, dismissal *domain.DismissalPolicy) error {
	if err := s.delay(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[id] = dismissal
	s.events = append(s.events, StoreEvent{Kind: "opened", ID: id, Dismissal: dismissal})
	return nil
}

// NotifyClosed marks id as closed. Closing a closed dialog is not an error.
func (s *DialogStore) NotifyClosed(ctx context.Context, id string) error {
	if err := s.delay(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, id)
	s.events = append(s.events, StoreEvent{Kind: "closed", ID: id})
	return nil
}

// NotifyClosedAll closes every dialog.
func (s *DialogStore) NotifyClosedAll(ctx context.Context) error {
	if err := s.delay(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = make(map[string]*domain.DismissalPolicy)
	s.events = append(s.events, StoreEvent{Kind: "closed_all"})
	return nil
}

// IsModalDialog reports whether id is in the modal catalog.
func (s *DialogStore) IsModalDialog(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modal[id], nil
}

// IsOpen reports whether id is currently open.
func (s *DialogStore) IsOpen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.open[id]
	return ok
}

// OpenDialogs returns the open dialog ids, sorted.
func (s *DialogStore) OpenDialogs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Events returns a copy of the notification journal.
func (s *DialogStore) Events() []StoreEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StoreEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *DialogStore) delay(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(s.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
