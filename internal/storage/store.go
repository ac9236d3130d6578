// File: internal/storage/store.go
package storage

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

const (
	// DefaultCapacity bounds the number of events kept in memory and on disk
	DefaultCapacity = 50000
	// DefaultQueryLimit is used when a query does not set a limit
	DefaultQueryLimit = 50
	// MaxQueryLimit caps the number of events a single query returns
	MaxQueryLimit = 200
)

// EventStore is the bounded, append-only ledger of indexed events.
// Newest events come first. Every append rewrites the persisted copy.
type EventStore struct {
	persister Persister
	logger    *logrus.Entry

	capacity      int
	queryMaxLimit int

	mu     sync.RWMutex
	events []models.IndexedEvent
	// bySignature holds the signatures currently in events
	bySignature map[string]struct{}
}

// EventStoreOption configures an EventStore
type EventStoreOption func(*EventStore)

// WithCapacity sets the maximum number of retained events
func WithCapacity(n int) EventStoreOption {
	return func(s *EventStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithQueryMaxLimit sets the cap applied to query limits
func WithQueryMaxLimit(n int) EventStoreOption {
	return func(s *EventStore) {
		if n > 0 {
			s.queryMaxLimit = n
		}
	}
}

// NewEventStore creates an empty store backed by persister.
// Call Load to restore persisted events.
func NewEventStore(persister Persister, opts ...EventStoreOption) *EventStore {
	s := &EventStore{
		persister:     persister,
		logger:        utils.ComponentLogger("event_store"),
		capacity:      DefaultCapacity,
		queryMaxLimit: MaxQueryLimit,
		bySignature:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory list with the persisted one. Missing or
// unreadable storage resets the store to empty instead of failing.
func (s *EventStore) Load(ctx context.Context) []models.IndexedEvent {
	events, err := s.persister.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load persisted events, starting empty")
		events = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make([]models.IndexedEvent, 0, len(events))
	s.bySignature = make(map[string]struct{}, len(events))
	for _, ev := range events {
		if ev.Signature == "" {
			continue
		}
		if _, dup := s.bySignature[ev.Signature]; dup {
			continue
		}
		s.bySignature[ev.Signature] = struct{}{}
		s.events = append(s.events, ev)
		if len(s.events) == s.capacity {
			break
		}
	}

	s.logger.WithField("events", len(s.events)).Info("Event store loaded")
	return s.snapshot(s.events)
}

// Append inserts ev at the head, evicts the oldest entry past capacity and
// rewrites the persisted copy. It reports whether ev was inserted; events
// whose signature is already stored are ignored. A persist failure is
// returned but the in-memory append stands.
func (s *EventStore) Append(ctx context.Context, ev models.IndexedEvent) (bool, error) {
	if ev.Signature == "" {
		return false, utils.NewAppError(utils.ErrCodeValidation, "Event signature is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.bySignature[ev.Signature]; dup {
		s.logger.WithField("signature", ev.Signature).Debug("Skipping duplicate event")
		return false, nil
	}

	s.events = append(s.events, models.IndexedEvent{})
	copy(s.events[1:], s.events)
	s.events[0] = ev
	s.bySignature[ev.Signature] = struct{}{}

	if len(s.events) > s.capacity {
		evicted := s.events[len(s.events)-1]
		s.events = s.events[:len(s.events)-1]
		delete(s.bySignature, evicted.Signature)
	}

	if err := s.persister.Save(ctx, s.events); err != nil {
		s.logger.WithError(err).WithField("signature", ev.Signature).Error("Failed to persist events")
		return true, utils.NewAppError(utils.ErrCodeDatabase, "Failed to persist events", err.Error())
	}
	return true, nil
}

// Query returns up to min(limit, cap) events, newest first. Mint restricts
// the result to that token instance. Before returns only events stored
// after that signature; an unknown signature yields an empty page.
func (s *EventStore) Query(filter models.EventFilter) []models.IndexedEvent {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > s.queryMaxLimit {
		limit = s.queryMaxLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := s.events
	if filter.Before != "" {
		idx := s.indexOf(filter.Before)
		if idx < 0 {
			return []models.IndexedEvent{}
		}
		candidates = candidates[idx+1:]
	}

	out := make([]models.IndexedEvent, 0, min(limit, len(candidates)))
	for _, ev := range candidates {
		if filter.Mint != "" && ev.Mint != filter.Mint {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Latest returns the most recently appended event
func (s *EventStore) Latest() (models.IndexedEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) == 0 {
		return models.IndexedEvent{}, false
	}
	return s.events[0], true
}

// Contains reports whether an event with the signature is stored
func (s *EventStore) Contains(signature string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bySignature[signature]
	return ok
}

// Len returns the number of stored events
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Capacity returns the retention bound
func (s *EventStore) Capacity() int {
	return s.capacity
}

// Close releases the persister
func (s *EventStore) Close() error {
	return s.persister.Close()
}

func (s *EventStore) indexOf(signature string) int {
	if _, ok := s.bySignature[signature]; !ok {
		return -1
	}
	for i := range s.events {
		if s.events[i].Signature == signature {
			return i
		}
	}
	return -1
}

func (s *EventStore) snapshot(events []models.IndexedEvent) []models.IndexedEvent {
	out := make([]models.IndexedEvent, len(events))
	copy(out, events)
	return out
}
