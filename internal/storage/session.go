// Package storage keeps conversation state: short-term sessions, long-term memory and the
// request log.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	"psti_chatbot/internal/knowledge"
)

const (
	SessionTTL        = 40 * time.Minute
	DefaultHistoryCap = 10
)

var ErrSessionNotFound = errors.New("session not found")

// Turn is one message of the short-term history.
type Turn struct {
	Role      schema.RoleType `json:"role"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
}

func (t Turn) Message() *schema.Message {
	return &schema.Message{Role: t.Role, Content: t.Text}
}

type Session struct {
	UserID            string            `json:"user_id"`
	LastIntent        string            `json:"last_intent,omitempty"`
	LastResponseIndex int               `json:"last_response_index"`
	Context           knowledge.Context `json:"context"`
	History           []Turn            `json:"history"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Context = s.Context.Clone()
	c.History = append([]Turn(nil), s.History...)
	return &c
}

// Messages converts the history for a chat model prompt.
func (s *Session) Messages() []*schema.Message {
	out := make([]*schema.Message, 0, len(s.History))
	for _, t := range s.History {
		out = append(out, t.Message())
	}
	return out
}

// SessionStore persists sessions by user id.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// Update loads the session, or starts an empty one with zero CreatedAt, applies fn and
	// stores the result. An error from fn aborts the write.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Count(ctx context.Context) (int, error)
}

// touch stamps a session before it is written.
func touch(s *Session, now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	if s.Context == nil {
		s.Context = knowledge.Context{}
	}
}

// SeedFunc returns the context a brand new session starts with.
type SeedFunc func(ctx context.Context, userID string) knowledge.Context

// SessionManager applies conversation rules on top of a SessionStore.
type SessionManager struct {
	store      SessionStore
	historyCap int
	seed       SeedFunc
}

func NewSessionManager(store SessionStore, historyCap int) *SessionManager {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &SessionManager{store: store, historyCap: historyCap}
}

// WithSeed sets the context source for sessions created from now on.
func (m *SessionManager) WithSeed(fn SeedFunc) *SessionManager {
	m.seed = fn
	return m
}

func (m *SessionManager) Store() SessionStore { return m.store }

func (m *SessionManager) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	seed := m.seedFor(ctx, id)
	return m.store.Update(ctx, id, func(s *Session) error {
		if s.CreatedAt.IsZero() && len(seed) > 0 {
			if s.Context == nil {
				s.Context = knowledge.Context{}
			}
			for k, v := range seed {
				s.Context[k] = v
			}
		}
		return fn(s)
	})
}

// seedFor runs the seed function outside the store's Update, and only for users without a
// session, so a slow seed never holds a store lock.
func (m *SessionManager) seedFor(ctx context.Context, id string) knowledge.Context {
	if m.seed == nil {
		return nil
	}
	_, err := m.store.Get(ctx, id)
	if !errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return m.seed(ctx, id)
}

func (m *SessionManager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	return m.update(ctx, id, func(*Session) error { return nil })
}

// RecordTurn appends to the history, evicting the oldest turns beyond the cap.
func (m *SessionManager) RecordTurn(ctx context.Context, id string, role schema.RoleType, text string) error {
	_, err := m.update(ctx, id, func(s *Session) error {
		s.History = append(s.History, Turn{Role: role, Text: text, Timestamp: time.Now()})
		if over := len(s.History) - m.historyCap; over > 0 {
			s.History = append([]Turn(nil), s.History[over:]...)
		}
		return nil
	})
	return err
}

func (m *SessionManager) SetLastIntent(ctx context.Context, id, tag string, index int) error {
	_, err := m.update(ctx, id, func(s *Session) error {
		s.LastIntent = tag
		s.LastResponseIndex = index
		return nil
	})
	return err
}

// RotateResponse advances the last response index to (last+1) mod count and returns it.
func (m *SessionManager) RotateResponse(ctx context.Context, id string, count int) (int, error) {
	if count <= 0 {
		return 0, fmt.Errorf("response count must be positive, got %d", count)
	}
	var next int
	_, err := m.update(ctx, id, func(s *Session) error {
		next = ((s.LastResponseIndex+1)%count + count) % count
		s.LastResponseIndex = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// MergeContext overwrites the given keys and leaves the others alone.
func (m *SessionManager) MergeContext(ctx context.Context, id string, values knowledge.Context) error {
	if len(values) == 0 {
		return nil
	}
	_, err := m.update(ctx, id, func(s *Session) error {
		if s.Context == nil {
			s.Context = knowledge.Context{}
		}
		for k, v := range values {
			s.Context[k] = v
		}
		return nil
	})
	return err
}

// History returns the last n turns, or all of them when n <= 0.
func (m *SessionManager) History(ctx context.Context, id string, n int) ([]Turn, error) {
	s, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if n > 0 && len(s.History) > n {
		return s.History[len(s.History)-n:], nil
	}
	return s.History, nil
}

func (m *SessionManager) Reset(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// SessionStats provides statistics about a session
type SessionStats struct {
	UserID          string `json:"user_id"`
	MessageCount    int    `json:"message_count"`
	LastIntent      string `json:"last_intent,omitempty"`
	ContextKeys     int    `json:"context_keys"`
	DurationMinutes int64  `json:"duration_minutes"`
}

func GetSessionStats(s *Session) SessionStats {
	stats := SessionStats{
		UserID:       s.UserID,
		MessageCount: len(s.History),
		LastIntent:   s.LastIntent,
		ContextKeys:  len(s.Context),
	}
	if !s.CreatedAt.IsZero() && s.UpdatedAt.After(s.CreatedAt) {
		stats.DurationMinutes = int64(s.UpdatedAt.Sub(s.CreatedAt) / time.Minute)
	}
	return stats
}
