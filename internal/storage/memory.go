package storage

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

const DefaultSessionCapacity = 10000

type memoryEntry struct {
	session *Session
	expires time.Time
}

// MemorySessionStore is an in-process LRU with TTL expiry. Callers always receive copies.
type MemorySessionStore struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front is most recently used
	items    map[string]*list.Element
	now      func() time.Time
}

func NewMemorySessionStore(capacity int, ttl time.Duration) *MemorySessionStore {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &MemorySessionStore{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// lookup must be called with mu held. Expired entries are dropped on access.
func (m *MemorySessionStore) lookup(id string) (*Session, bool) {
	el, ok := m.items[id]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if m.now().After(entry.expires) {
		m.order.Remove(el)
		delete(m.items, id)
		return nil, false
	}
	m.order.MoveToFront(el)
	return entry.session, true
}

// put must be called with mu held.
func (m *MemorySessionStore) put(s *Session) {
	entry := &memoryEntry{session: s, expires: m.now().Add(m.ttl)}
	if el, ok := m.items[s.UserID]; ok {
		el.Value = entry
		m.order.MoveToFront(el)
		return
	}
	m.items[s.UserID] = m.order.PushFront(entry)
	for m.order.Len() > m.capacity {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(*memoryEntry).session.UserID)
	}
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Clone(), nil
}

func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	if s == nil || s.UserID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := s.Clone()
	touch(c, m.now())
	m.put(c)
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[id]; ok {
		m.order.Remove(el)
		delete(m.items, id)
	}
	return nil
}

func (m *MemorySessionStore) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s *Session
	if cur, ok := m.lookup(id); ok {
		s = cur.Clone()
	} else {
		s = &Session{UserID: id}
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	s.UserID = id
	touch(s, m.now())
	m.put(s)
	return s.Clone(), nil
}

// Count includes entries that expired but were not accessed since.
func (m *MemorySessionStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len(), nil
}
