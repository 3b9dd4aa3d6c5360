package resilience

import (
	"context"
	"sync"
	"time"
)

// Item is one queued outbound write awaiting retry.
type Item struct {
	ID            int64
	Kind          string
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// Store is the retry queue. Implementations are bounded: Enqueue at
// capacity evicts and returns the oldest item rather than rejecting the
// new one or silently overwriting.
type Store interface {
	// Enqueue appends an item. When the queue is full the oldest item
	// is removed and returned so the caller can report the eviction.
	Enqueue(ctx context.Context, kind string, payload []byte) (evicted *Item, err error)

	// Oldest returns up to limit items from the head of the queue in
	// original order, including items whose NextAttemptAt is still in
	// the future. The queue is strictly FIFO: a backed-off head blocks
	// everything behind it, so the caller decides where to stop.
	Oldest(ctx context.Context, limit int) ([]Item, error)

	// MarkAttempt increments an item's attempt count and reschedules it.
	MarkAttempt(ctx context.Context, id int64, next time.Time) error

	// Remove deletes an item, whether delivered or dropped.
	Remove(ctx context.Context, id int64) error

	// Len returns the number of queued items.
	Len(ctx context.Context) (int, error)
}

// MemoryStore is an in-memory Store for tests and for deployments that
// accept losing the queue on restart.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	nextID   int64
	items    []Item
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore holding at most capacity items.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{
		capacity: capacity,
		nextID:   1,
		now:      time.Now,
	}
}

// SetClock overrides the time source used to stamp NextAttemptAt and
// CreatedAt. For tests; Controller.SetClock forwards here.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) Enqueue(_ context.Context, kind string, payload []byte) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted *Item
	if len(s.items) >= s.capacity {
		old := s.items[0]
		s.items = s.items[1:]
		evicted = &old
	}

	now := s.now()
	item := Item{
		ID:            s.nextID,
		Kind:          kind,
		Payload:       append([]byte(nil), payload...),
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	s.nextID++
	s.items = append(s.items, item)
	return evicted, nil
}

func (s *MemoryStore) Oldest(_ context.Context, limit int) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	if n > limit {
		n = limit
	}
	return append([]Item(nil), s.items[:n]...), nil
}

func (s *MemoryStore) MarkAttempt(_ context.Context, id int64, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Attempts++
			s.items[i].NextAttemptAt = next
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}
