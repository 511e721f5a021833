package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psti_chatbot/internal/knowledge"
	"psti_chatbot/internal/metrics"
	"psti_chatbot/internal/storage"
)

func TestObservers_RecordReplies(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	reqLog, err := storage.OpenRequestLog(ctx, filepath.Join(dir, "requests.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reqLog.Close() })
	lt := storage.NewJSONLongtermManager(filepath.Join(dir, "longterm"), 0, 0.8)
	m := metrics.New(metrics.Config{})

	f := newFixture(t, testCatalog(t, true), RequestLogObserver(reqLog), MetricsObserver(m), LongtermObserver(lt))
	f.send(t, "u1", "apa itu psti")
	f.send(t, "u1", "siapa alvin")
	f.send(t, "u1", "qwerty")

	a, err := reqLog.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, a.TotalRequests)
	assert.Equal(t, 1, a.Provenance["knowledge"].Count)
	// "qwerty" is answered from memory with the previous topic
	assert.Equal(t, 1, a.Provenance["memory"].Count)
	assert.Equal(t, 1, a.IntentDistribution["about_psti"])

	mem, err := lt.LoadMemory("u1")
	require.NoError(t, err)
	require.Len(t, mem.History, 1, "only the confident classifier answer is remembered")
	assert.Equal(t, "about_psti", mem.History[0].Intent)
	assert.Equal(t, []string{"psti"}, mem.Facts)

	seed := LongtermSeed(lt)
	assert.Equal(t, knowledge.Context{knowledge.KeyKnownTopics: "psti"}, seed(ctx, "u1"))
	assert.Nil(t, seed(ctx, "nobody"))
}
