package response

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psti_chatbot/internal/decision"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog([]Intent{
		{Tag: "greeting", Description: "sapaan", Responses: []string{"Halo!", "Hai!"}},
		{Tag: "about_psti", Description: "informasi Lab PSTI", Responses: []string{"PSTI satu", "PSTI dua", "PSTI tiga"}},
		{Tag: "info_beasiswa", Description: "informasi beasiswa", Responses: []string{"Beasiswa dibuka tiap tahun."}},
		{Tag: "empty", Description: "kosong"},
	})
	require.NoError(t, err)
	return c
}

func decided(t *testing.T, dist []float64) decision.Decision {
	t.Helper()
	d, err := decision.Decide(dist, []string{"greeting", "about_psti", "info_beasiswa", "empty"}, decision.DefaultThresholds())
	require.NoError(t, err)
	return d
}

type stubGenerator struct {
	text  string
	err   error
	calls []GenerateRequest
}

func (g *stubGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	g.calls = append(g.calls, req)
	return g.text, g.err
}

func TestCompose_KnowledgeWins(t *testing.T) {
	c := NewComposer(testCatalog(t), nil)
	out := c.Compose(context.Background(), Input{
		Message:  "siapa alvin",
		Rule:     &RuleAnswer{Rule: "student_profile", Answer: "Muhammad Alvin Fahreza"},
		Decision: decided(t, []float64{0.9, 0.05, 0.05, 0}),
	}, decision.DefaultThresholds())

	assert.Equal(t, FromKnowledge, out.Provenance)
	assert.Equal(t, "Muhammad Alvin Fahreza", out.Text)
	assert.Equal(t, "student_profile", out.Rule)
	assert.False(t, out.Remember)
}

func TestCompose_Tiers(t *testing.T) {
	c := NewComposer(testCatalog(t), nil)
	th := decision.DefaultThresholds()

	high := c.Compose(context.Background(), Input{Message: "halo", Decision: decided(t, []float64{0.9, 0.05, 0.05, 0})}, th)
	assert.Equal(t, FromML, high.Provenance)
	assert.Equal(t, "greeting", high.Intent)
	assert.Equal(t, decision.TierHigh, high.Tier)
	assert.Equal(t, "Halo!", high.Text)
	assert.True(t, high.Remember)
	assert.False(t, high.Fallback)

	medium := c.Compose(context.Background(), Input{Message: "psti", Decision: decided(t, []float64{0.3, 0.5, 0.2, 0})}, th)
	assert.Equal(t, decision.TierMedium, medium.Tier)
	assert.Equal(t, "about_psti", medium.Intent)
	assert.Contains(t, medium.Text, "PSTI satu")
	assert.Contains(t, medium.Text, "Confidence: 50.0%")
	assert.True(t, medium.Remember)
	assert.Equal(t, ReasonMediumConfidence, medium.FallbackReason)

	low := c.Compose(context.Background(), Input{Message: "xyz", Decision: decided(t, []float64{0.35, 0.32, 0.33, 0})}, th)
	assert.Equal(t, decision.TierLow, low.Tier)
	assert.Empty(t, low.Intent)
	assert.False(t, low.Remember)
	assert.Equal(t, []string{"sapaan", "informasi beasiswa"}, low.Suggestions)
	assert.Contains(t, low.Text, "Mungkin Anda mencari informasi tentang:\n- sapaan\n- informasi beasiswa")
	assert.Contains(t, low.Text, "menu")
	assert.Equal(t, ReasonLowConfidence, low.FallbackReason)
}

func TestCompose_LowConfidenceWithoutSuggestions(t *testing.T) {
	c := NewComposer(testCatalog(t), nil)
	out := c.Compose(context.Background(), Input{Message: "qwerty", Decision: decided(t, []float64{0.25, 0.25, 0.25, 0.25})}, decision.DefaultThresholds())

	assert.Empty(t, out.Suggestions)
	assert.NotContains(t, out.Text, "Mungkin Anda")
	assert.Contains(t, lowConfidenceMessages, out.Text[:len(out.Text)-len(menuHint)-2])

	again := c.Compose(context.Background(), Input{Message: "qwerty", Decision: decided(t, []float64{0.25, 0.25, 0.25, 0.25})}, decision.DefaultThresholds())
	assert.Equal(t, out.Text, again.Text)
}

func TestCompose_MemoryRotation(t *testing.T) {
	c := NewComposer(testCatalog(t), nil)
	th := decision.DefaultThresholds()
	in := Input{Message: "lagi dong", LastIntent: "about_psti", Decision: decided(t, []float64{0.3, 0.5, 0.2, 0})}

	count, ok := c.Rotation(in, th)
	require.True(t, ok)
	assert.Equal(t, 3, count)

	var texts []string
	for i := 1; i <= 4; i++ {
		idx := i
		in.Rotated = &idx
		out := c.Compose(context.Background(), in, th)
		assert.Equal(t, FromMemory, out.Provenance)
		assert.Equal(t, "about_psti", out.Intent)
		assert.False(t, out.Remember)
		texts = append(texts, out.Text)
	}
	assert.Equal(t, []string{"PSTI dua", "PSTI tiga", "PSTI satu", "PSTI dua"}, texts)
}

func TestRotation_Conditions(t *testing.T) {
	c := NewComposer(testCatalog(t), nil)
	th := decision.DefaultThresholds()
	weak := decided(t, []float64{0.3, 0.5, 0.2, 0})

	tests := []struct {
		name string
		in   Input
	}{
		{"no previous intent", Input{Decision: weak}},
		{"confident prediction", Input{LastIntent: "about_psti", Decision: decided(t, []float64{0.9, 0.05, 0.05, 0})}},
		{"single response", Input{LastIntent: "info_beasiswa", Decision: weak}},
		{"unknown previous intent", Input{LastIntent: "gone", Decision: weak}},
		{"rule matched", Input{LastIntent: "about_psti", Decision: weak, Rule: &RuleAnswer{Rule: "lab_hours", Answer: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := c.Rotation(tt.in, th)
			assert.False(t, ok)
		})
	}
}

func TestCompose_ZeroResponsesAndDesync(t *testing.T) {
	c := NewComposer(testCatalog(t), nil)
	th := decision.DefaultThresholds()

	out := c.Compose(context.Background(), Input{Decision: decided(t, []float64{0, 0, 0.1, 0.9})}, th)
	assert.Equal(t, NoResponseMessage, out.Text)
	assert.Equal(t, "empty", out.Intent)
	assert.Equal(t, ReasonNoResponse, out.FallbackReason)
	assert.False(t, out.Remember)

	d := decision.Decision{TopTag: "missing", TopConfidence: 0.95, Tier: decision.TierHigh}
	out = c.Compose(context.Background(), Input{Decision: d}, th)
	assert.Equal(t, UnknownIntentMessage, out.Text)
	assert.Empty(t, out.Intent)
	assert.Equal(t, ReasonUnknownIntent, out.FallbackReason)
}

func TestCompose_GenerativeFallback(t *testing.T) {
	th := decision.DefaultThresholds()
	d := decision.Decision{TopTag: "missing", TopConfidence: 0.95, Tier: decision.TierHigh}
	history := []*schema.Message{schema.UserMessage("halo"), schema.AssistantMessage("Halo!", nil)}

	gen := &stubGenerator{text: "Jawaban dari model."}
	c := NewComposer(testCatalog(t), gen)
	out := c.Compose(context.Background(), Input{Message: "apa kabar lab", Decision: d, History: history}, th)
	assert.Equal(t, "Jawaban dari model.", out.Text)
	assert.True(t, out.Generated)
	require.Len(t, gen.calls, 1)
	assert.Equal(t, "apa kabar lab", gen.calls[0].Message)
	assert.Contains(t, gen.calls[0].Topics, "informasi Lab PSTI")
	assert.Len(t, gen.calls[0].History, 2)

	failing := &stubGenerator{err: errors.New("connection refused")}
	c = NewComposer(testCatalog(t), failing)
	out = c.Compose(context.Background(), Input{Message: "apa kabar lab", Decision: d}, th)
	assert.Equal(t, UnknownIntentMessage, out.Text)
	assert.False(t, out.Generated)

	// confident answers never reach the model
	gen = &stubGenerator{text: "unused"}
	c = NewComposer(testCatalog(t), gen)
	c.Compose(context.Background(), Input{Message: "halo", Decision: decided(t, []float64{0.9, 0.05, 0.05, 0})}, th)
	assert.Empty(t, gen.calls)
}

type fakeChatModel struct {
	reply    string
	received []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.received = input
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestChatGenerator_BuildsPrompt(t *testing.T) {
	m := &fakeChatModel{reply: "  Silakan hubungi admin lab.  "}
	g := NewChatGenerator(m, "", 0)

	text, err := g.Generate(context.Background(), GenerateRequest{
		Message: "bisa pinjam proyektor?",
		Topics:  []string{"fasilitas laboratorium", "kontak laboratorium"},
		History: []*schema.Message{schema.UserMessage("halo")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Silakan hubungi admin lab.", text)

	require.Len(t, m.received, 3)
	assert.Equal(t, schema.System, m.received[0].Role)
	assert.Contains(t, m.received[0].Content, "Lab PSTI")
	assert.Contains(t, m.received[0].Content, "fasilitas laboratorium, kontak laboratorium")
	assert.Equal(t, "halo", m.received[1].Content)
	assert.Equal(t, "bisa pinjam proyektor?", m.received[2].Content)

	m.reply = "   "
	_, err = g.Generate(context.Background(), GenerateRequest{Message: "x"})
	assert.ErrorContains(t, err, "empty")
	assert.Len(t, m.received, 2)
}

type queryArg struct {
	Query string `json:"query"`
}

func TestChatGenerator_GroundsOnTools(t *testing.T) {
	hours, err := utils.InferTool("hours", "jam buka", func(_ context.Context, in queryArg) (string, error) {
		return "Senin-Jumat 08:00-17:00 (" + in.Query + ")", nil
	})
	require.NoError(t, err)
	nothing, err := utils.InferTool("nothing", "selalu kosong", func(context.Context, queryArg) (string, error) {
		return "", nil
	})
	require.NoError(t, err)
	broken, err := utils.InferTool("broken", "selalu gagal", func(context.Context, queryArg) (string, error) {
		return "", errors.New("down")
	})
	require.NoError(t, err)

	m := &fakeChatModel{reply: "Lab buka Senin sampai Jumat."}
	g := NewChatGenerator(m, "", 0).WithTools(nothing, hours, broken)
	_, err = g.Generate(context.Background(), GenerateRequest{Message: "kapan buka?"})
	require.NoError(t, err)
	assert.Contains(t, m.received[0].Content, "Senin-Jumat 08:00-17:00 (kapan buka?)")

	bare := NewChatGenerator(m, "", 0)
	_, err = bare.Generate(context.Background(), GenerateRequest{Message: "kapan buka?"})
	require.NoError(t, err)
	assert.NotContains(t, m.received[0].Content, "Senin-Jumat")
	assert.Contains(t, m.received[0].Content, "DATA LAB:")
}

func TestNewGenerator_Providers(t *testing.T) {
	g, err := NewGenerator(context.Background(), GeneratorConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, g)

	_, err = NewGenerator(context.Background(), GeneratorConfig{Provider: "gemini"})
	assert.ErrorContains(t, err, "unknown generative provider")
}
