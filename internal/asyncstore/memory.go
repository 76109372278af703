package asyncstore

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/carles-abarca/NEO6/internal/errors"
)

// MemoryStore is the zero-config default: a bounded ring of recent
// results guarded by a single mutex. Once Capacity entries are held,
// inserting a new one evicts the oldest.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // oldest at Front, newest at Back
	byID     map[string]*list.Element
}

type memEntry struct {
	id     string
	result Result
}

// NewMemoryStore builds a ring store holding at most capacity results.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{
		capacity: capacity,
		order:    list.New(),
		byID:     make(map[string]*list.Element),
	}
}

func (s *MemoryStore) Put(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	el := s.order.PushBack(&memEntry{id: id, result: Result{ID: id, Status: Pending, CreatedAt: now, UpdatedAt: now}})
	s.byID[id] = el

	if s.order.Len() > s.capacity {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.byID, oldest.Value.(*memEntry).id)
	}
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, data interface{}) error {
	return s.update(id, func(e *memEntry) {
		e.result.Status = Done
		e.result.Data = data
		e.result.UpdatedAt = time.Now()
	})
}

func (s *MemoryStore) Fail(_ context.Context, id string, errMsg string) error {
	return s.update(id, func(e *memEntry) {
		e.result.Status = Failed
		e.result.Error = errMsg
		e.result.UpdatedAt = time.Now()
	})
}

func (s *MemoryStore) update(id string, mutate func(*memEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.byID[id]
	if !ok {
		return errors.Internal("async invocation " + id + " not found or evicted")
	}
	mutate(el.Value.(*memEntry))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.byID[id]
	if !ok {
		return Result{}, false, nil
	}
	return el.Value.(*memEntry).result, true, nil
}
