package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psti_chatbot/internal/classifier"
	"psti_chatbot/internal/decision"
	"psti_chatbot/internal/knowledge"
	"psti_chatbot/internal/nlp"
	"psti_chatbot/internal/response"
	"psti_chatbot/internal/storage"
)

var testLabels = []string{"greeting", "about_psti", "info_beasiswa"}

// keywordClassifier maps halo, psti and beasiswa onto one label each with weight 5.
func keywordClassifier(t *testing.T) *classifier.Classifier {
	t.Helper()
	vocab, err := nlp.NewVocabulary(nlp.StrategyBagOfWords, map[string]int{"halo": 0, "psti": 1, "beasiswa": 2}, 3, 0)
	require.NoError(t, err)
	bundle, err := classifier.NewBundle(vocab, nlp.ModelOptions(), testLabels, []classifier.LayerSpec{{
		Type:       classifier.LayerDense,
		Activation: classifier.ActivationSoftmax,
		Units:      3,
		Weights:    [][]float64{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}},
		Bias:       []float64{0, 0, 0},
	}})
	require.NoError(t, err)
	c, err := classifier.New(bundle)
	require.NoError(t, err)
	return c
}

func testCatalog(t *testing.T, withBeasiswa bool) *response.Catalog {
	t.Helper()
	intents := []response.Intent{
		{Tag: "greeting", Description: "sapaan", Responses: []string{"Halo! Ada yang bisa dibantu?"}},
		{Tag: "about_psti", Description: "informasi Lab PSTI", Responses: []string{"PSTI satu", "PSTI dua", "PSTI tiga"}},
	}
	if withBeasiswa {
		intents = append(intents, response.Intent{Tag: "info_beasiswa", Description: "informasi beasiswa", Responses: []string{"Beasiswa dibuka tiap tahun."}})
	}
	c, err := response.NewCatalog(intents)
	require.NoError(t, err)
	return c
}

type fixture struct {
	proc     *Processor
	sessions *storage.SessionManager
	replies  atomic.Int32
}

func newFixture(t *testing.T, catalog *response.Catalog, observers ...Observer) *fixture {
	t.Helper()
	facts, err := knowledge.LoadFacts(filepath.Join("..", "..", "data", "knowledge.json"))
	require.NoError(t, err)

	f := &fixture{sessions: storage.NewSessionManager(storage.NewMemorySessionStore(100, time.Minute), 10)}
	counter := ObserverFunc(func(context.Context, *Reply) error {
		f.replies.Add(1)
		return nil
	})
	proc, err := NewProcessor(context.Background(), Options{
		Engine:     knowledge.NewEngine(facts, nlp.NewNormalizer(nlp.RuleOptions())),
		Classifier: keywordClassifier(t),
		Composer:   response.NewComposer(catalog, nil),
		Sessions:   f.sessions,
		Thresholds: decision.DefaultThresholds(),
		Observers:  append([]Observer{counter}, observers...),
	})
	require.NoError(t, err)
	f.proc = proc
	return f
}

func (f *fixture) send(t *testing.T, user, msg string) *Reply {
	t.Helper()
	r, err := f.proc.Handle(context.Background(), Request{UserID: user, Message: msg})
	require.NoError(t, err)
	return r
}

func TestHandle_ConfidentGreeting(t *testing.T) {
	f := newFixture(t, testCatalog(t, true))

	r := f.send(t, "u1", "Haloooo!")
	assert.Equal(t, response.FromML, r.Provenance)
	assert.Equal(t, "greeting", r.Intent)
	assert.Equal(t, decision.TierHigh, r.Tier)
	assert.Greater(t, r.Confidence, 0.98)
	assert.Equal(t, "Halo! Ada yang bisa dibantu?", r.Text)
	assert.Equal(t, "halo", r.Normalized)

	s, err := f.sessions.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "greeting", s.LastIntent)
	require.Len(t, s.History, 2)
	assert.Equal(t, "Haloooo!", s.History[0].Text)
	assert.Equal(t, r.Text, s.History[1].Text)
	assert.Equal(t, int32(1), f.replies.Load())
}

func TestHandle_GibberishGetsSuggestions(t *testing.T) {
	f := newFixture(t, testCatalog(t, true))

	r := f.send(t, "u1", "qwerty asdf")
	assert.Equal(t, decision.TierLow, r.Tier)
	assert.Empty(t, r.Intent)
	assert.Equal(t, []string{"sapaan", "informasi Lab PSTI"}, r.Suggestions)
	assert.Contains(t, r.Text, "menu")

	s, _ := f.sessions.GetOrCreate(context.Background(), "u1")
	assert.Empty(t, s.LastIntent, "low confidence never becomes the remembered topic")
}

func TestHandle_MemoryRotation(t *testing.T) {
	f := newFixture(t, testCatalog(t, true))

	first := f.send(t, "u1", "apa itu psti")
	assert.Equal(t, "PSTI satu", first.Text)

	var texts []string
	for i := 0; i < 3; i++ {
		r := f.send(t, "u1", "lagi dong")
		assert.Equal(t, response.FromMemory, r.Provenance)
		assert.Equal(t, "about_psti", r.Intent)
		texts = append(texts, r.Text)
	}
	assert.Equal(t, []string{"PSTI dua", "PSTI tiga", "PSTI satu"}, texts)

	// another user has no previous topic
	other := f.send(t, "u2", "lagi dong")
	assert.Equal(t, response.FromML, other.Provenance)
	assert.Equal(t, decision.TierLow, other.Tier)
}

func TestHandle_KnowledgeBeforeClassifier(t *testing.T) {
	f := newFixture(t, testCatalog(t, true))
	ctx := context.Background()

	f.send(t, "u1", "apa itu psti")
	r := f.send(t, "u1", "siapa alvin")
	assert.Equal(t, response.FromKnowledge, r.Provenance)
	assert.Equal(t, "student_profile", r.Rule)
	assert.Contains(t, r.Text, "Muhammad Alvin Fahreza")
	assert.Zero(t, r.Confidence)

	s, err := f.sessions.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "about_psti", s.LastIntent, "knowledge answers leave the last intent alone")
	assert.Equal(t, "Muhammad Alvin Fahreza", s.Context.Get(knowledge.KeyLastStudent))

	followup := f.send(t, "u1", "apa skill dia?")
	assert.Equal(t, "student_followup", followup.Rule)
	assert.Contains(t, followup.Text, "Arduino")
}

func TestHandle_LabelWithoutCatalogEntry(t *testing.T) {
	f := newFixture(t, testCatalog(t, false))

	r := f.send(t, "u1", "beasiswa")
	assert.Equal(t, response.UnknownIntentMessage, r.Text)
	assert.True(t, r.Fallback)
	assert.Equal(t, response.ReasonUnknownIntent, r.FallbackReason)
}

func TestHandle_Errors(t *testing.T) {
	f := newFixture(t, testCatalog(t, true))

	_, err := f.proc.Handle(context.Background(), Request{UserID: "u1", Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, f.replies.Load(), "observers only see replies")
}

func TestHandle_DefaultUserAndFailingObserver(t *testing.T) {
	failing := ObserverFunc(func(context.Context, *Reply) error { return errors.New("disk full") })
	f := newFixture(t, testCatalog(t, true), failing)

	r, err := f.proc.Handle(context.Background(), Request{Message: "halo"})
	require.NoError(t, err)
	assert.Equal(t, DefaultUserID, r.UserID)
	assert.Equal(t, int32(1), f.replies.Load())
}

func TestSetThresholds(t *testing.T) {
	f := newFixture(t, testCatalog(t, true))

	assert.Error(t, f.proc.SetThresholds(decision.Thresholds{High: 0.3, Medium: 0.5}))
	assert.Equal(t, decision.DefaultThresholds(), f.proc.Thresholds())

	th := decision.DefaultThresholds()
	th.High = 0.999
	require.NoError(t, f.proc.SetThresholds(th))

	r := f.send(t, "u1", "halo")
	assert.Equal(t, decision.TierMedium, r.Tier)
	assert.Contains(t, r.Text, "Catatan")
}

func TestPredict(t *testing.T) {
	f := newFixture(t, testCatalog(t, true))

	p, err := f.proc.Predict(context.Background(), "Info beasiswa dong")
	require.NoError(t, err)
	assert.Equal(t, "info_beasiswa", p.Decision.TopTag)
	assert.Equal(t, decision.TierHigh, p.Decision.Tier)

	_, err = f.sessions.Store().Get(context.Background(), DefaultUserID)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound, "predict has no session effect")
}

func TestNewProcessor_Validates(t *testing.T) {
	_, err := NewProcessor(context.Background(), Options{})
	assert.Error(t, err)
}
