package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psti_chatbot/internal/knowledge"
)

func TestMemorySessionStore_GetSaveDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(10, time.Minute)

	_, err := store.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Save(ctx, &Session{UserID: "u1", LastIntent: "greeting"}))
	s, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "greeting", s.LastIntent)
	assert.False(t, s.CreatedAt.IsZero())
	assert.NotNil(t, s.Context)

	// returned sessions are copies
	s.LastIntent = "changed"
	again, _ := store.Get(ctx, "u1")
	assert.Equal(t, "greeting", again.LastIntent)

	require.NoError(t, store.Delete(ctx, "u1"))
	_, err = store.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Error(t, store.Save(ctx, &Session{}))
}

func TestMemorySessionStore_TTLAndLRU(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(2, time.Minute)
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, &Session{UserID: "a"}))
	require.NoError(t, store.Save(ctx, &Session{UserID: "b"}))
	_, err := store.Get(ctx, "a") // a is now most recent
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, &Session{UserID: "c"}))

	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrSessionNotFound, "least recently used is evicted")
	_, err = store.Get(ctx, "a")
	assert.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrSessionNotFound, "expired")
}

func TestMemorySessionStore_UpdateAbortsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(10, time.Minute)

	boom := errors.New("boom")
	_, err := store.Update(ctx, "u1", func(s *Session) error {
		s.LastIntent = "x"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = store.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_RecordTurnCap(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(NewMemorySessionStore(10, time.Minute), 3)

	for i := 1; i <= 5; i++ {
		require.NoError(t, m.RecordTurn(ctx, "u1", schema.User, fmt.Sprintf("pesan %d", i)))
	}
	turns, err := m.History(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "pesan 3", turns[0].Text)
	assert.Equal(t, "pesan 5", turns[2].Text)

	last, err := m.History(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, "pesan 5", last[0].Text)

	none, err := m.History(ctx, "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSessionManager_RotateResponse(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(NewMemorySessionStore(10, time.Minute), 0)

	require.NoError(t, m.SetLastIntent(ctx, "u1", "about_psti", 0))
	var got []int
	for i := 0; i < 4; i++ {
		idx, err := m.RotateResponse(ctx, "u1", 3)
		require.NoError(t, err)
		got = append(got, idx)
	}
	assert.Equal(t, []int{1, 2, 0, 1}, got)

	s, err := m.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "about_psti", s.LastIntent)
	assert.Equal(t, 1, s.LastResponseIndex)

	_, err = m.RotateResponse(ctx, "u1", 0)
	assert.Error(t, err)
}

func TestSessionManager_MergeContextAndSeed(t *testing.T) {
	ctx := context.Background()
	seeded := 0
	m := NewSessionManager(NewMemorySessionStore(10, time.Minute), 0).
		WithSeed(func(_ context.Context, userID string) knowledge.Context {
			seeded++
			return knowledge.Context{knowledge.KeyKnownTopics: "lab,beasiswa"}
		})

	require.NoError(t, m.MergeContext(ctx, "u1", knowledge.Context{knowledge.KeyLastStudent: "Gery"}))
	require.NoError(t, m.MergeContext(ctx, "u1", knowledge.Context{knowledge.KeyLastProject: "Apik"}))

	s, err := m.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Gery", s.Context.Get(knowledge.KeyLastStudent))
	assert.Equal(t, "Apik", s.Context.Get(knowledge.KeyLastProject))
	assert.Equal(t, "lab,beasiswa", s.Context.Get(knowledge.KeyKnownTopics))
	assert.Equal(t, 1, seeded, "seeded only when the session is created")

	_, err = m.GetOrCreate(ctx, "")
	assert.Error(t, err)
}

func TestSessionManager_SeedRunsOutsideStoreLock(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(10, time.Minute)
	m := NewSessionManager(store, 0).WithSeed(func(ctx context.Context, userID string) knowledge.Context {
		// blocks forever if the store mutex is held while seeding
		n, _ := store.Count(ctx)
		return knowledge.Context{knowledge.KeyKnownTopics: fmt.Sprint(n)}
	})

	done := make(chan error, 1)
	go func() { done <- m.RecordTurn(ctx, "u1", schema.User, "halo") }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("seed deadlocked on the session store")
	}

	s, err := m.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "0", s.Context.Get(knowledge.KeyKnownTopics))
}

func TestSessionManager_UsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(NewMemorySessionStore(100, time.Minute), 50)

	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = m.RecordTurn(ctx, id, schema.User, "halo")
			}
		}(fmt.Sprintf("user-%d", u))
	}
	wg.Wait()

	for u := 0; u < 8; u++ {
		turns, err := m.History(ctx, fmt.Sprintf("user-%d", u), 0)
		require.NoError(t, err)
		assert.Len(t, turns, 20)
	}
	n, err := m.Store().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestSession_Messages(t *testing.T) {
	s := &Session{History: []Turn{{Role: schema.User, Text: "halo"}, {Role: schema.Assistant, Text: "Hai!"}}}
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Equal(t, "Hai!", msgs[1].Content)

	stats := GetSessionStats(s)
	assert.Equal(t, 2, stats.MessageCount)
}
