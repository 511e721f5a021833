package response

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/cloudwego/eino/schema"

	"psti_chatbot/internal/decision"
	"psti_chatbot/internal/logger"
)

// Provenance names the subsystem that produced a reply.
type Provenance string

const (
	FromKnowledge Provenance = "knowledge"
	FromML        Provenance = "ml"
	FromMemory    Provenance = "memory"
)

const (
	UnknownIntentMessage = "Maaf, saya kurang memahami. Bisa diperjelas?"
	NoResponseMessage    = "Maaf, saya mengerti pertanyaan Anda tapi belum ada respons yang tersedia."
	menuHint             = "Atau ketik \"menu\" untuk melihat topik yang bisa saya bantu."
)

var lowConfidenceMessages = []string{
	"Maaf, saya kurang memahami pertanyaan Anda. Bisakah Anda menjelaskan dengan kata lain?",
	"Saya belum mengerti pertanyaan Anda. Coba tanyakan dengan cara berbeda ya!",
	"Mohon maaf, saya belum bisa menjawab pertanyaan tersebut. Bisa dijelaskan lebih detail?",
}

// Fallback reasons reported in request logs.
const (
	ReasonMediumConfidence = "medium_confidence"
	ReasonLowConfidence    = "low_confidence"
	ReasonNoResponse       = "no_response_available"
	ReasonUnknownIntent    = "unknown_intent"
)

type Input struct {
	Message string
	// Rule is the knowledge answer, if a rule matched.
	Rule     *RuleAnswer
	Decision decision.Decision
	// LastIntent and Rotated come from the session. Rotated is the next response index of
	// LastIntent and is only set when Rotation asked for it.
	LastIntent string
	Rotated    *int
	History    []*schema.Message
}

type RuleAnswer struct {
	Rule   string
	Answer string
}

type Output struct {
	Provenance  Provenance
	Intent      string
	Confidence  float64
	Tier        decision.Tier
	Text        string
	Suggestions []string
	Rule        string

	Fallback       bool
	FallbackReason string
	Generated      bool

	// Remember reports that the session should store Intent and ResponseIndex as the last
	// confidently answered topic.
	Remember      bool
	ResponseIndex int
}

// Composer is safe for concurrent use; thresholds are passed per call.
type Composer struct {
	catalog   *Catalog
	generator Generator
}

// NewComposer accepts a nil generator.
func NewComposer(catalog *Catalog, generator Generator) *Composer {
	return &Composer{catalog: catalog, generator: generator}
}

func (c *Composer) Catalog() *Catalog { return c.catalog }

// Rotation reports whether the memory path applies to in and, if so, how many responses the
// previous intent has.
func (c *Composer) Rotation(in Input, th decision.Thresholds) (count int, ok bool) {
	if in.Rule != nil || in.LastIntent == "" || in.Decision.TopConfidence >= th.Memory {
		return 0, false
	}
	prev, found := c.catalog.Lookup(in.LastIntent)
	if !found || len(prev.Responses) <= 1 {
		return 0, false
	}
	return len(prev.Responses), true
}

// Compose applies, in order: the knowledge answer, memory rotation of the previous intent,
// tier phrasing of the predicted intent, and the unknown-intent apology.
func (c *Composer) Compose(ctx context.Context, in Input, th decision.Thresholds) Output {
	if in.Rule != nil {
		return Output{Provenance: FromKnowledge, Text: in.Rule.Answer, Rule: in.Rule.Rule}
	}

	d := in.Decision
	if count, ok := c.Rotation(in, th); ok && in.Rotated != nil {
		prev, _ := c.catalog.Lookup(in.LastIntent)
		idx := ((*in.Rotated % count) + count) % count
		return Output{
			Provenance: FromMemory,
			Intent:     in.LastIntent,
			Confidence: d.TopConfidence,
			Tier:       d.Tier,
			Text:       prev.Responses[idx],
		}
	}

	intent, ok := c.catalog.Lookup(d.TopTag)
	if !ok {
		logger.Warn().Str("intent", d.TopTag).Msg("label-map desync: classifier label has no catalog entry")
		out := Output{Provenance: FromML, Confidence: d.TopConfidence, Tier: d.Tier,
			Text: UnknownIntentMessage, Fallback: true, FallbackReason: ReasonUnknownIntent}
		c.generate(ctx, in, &out)
		return out
	}

	out := Output{Provenance: FromML, Intent: d.TopTag, Confidence: d.TopConfidence, Tier: d.Tier}
	if len(intent.Responses) == 0 {
		out.Text, out.Fallback, out.FallbackReason = NoResponseMessage, true, ReasonNoResponse
		c.generate(ctx, in, &out)
		return out
	}

	switch d.Tier {
	case decision.TierHigh:
		out.Text = intent.Responses[0]
		out.Remember = true
	case decision.TierMedium:
		out.Text = fmt.Sprintf("%s\n\n(Catatan: Saya tidak sepenuhnya yakin dengan jawaban ini. Confidence: %.1f%%)",
			intent.Responses[0], d.TopConfidence*100)
		out.Remember = true
		out.Fallback, out.FallbackReason = true, ReasonMediumConfidence
	default:
		out.Intent = ""
		out.Suggestions = c.suggestions(d, th)
		out.Text = lowConfidenceText(in.Message, out.Suggestions)
		out.Fallback, out.FallbackReason = true, ReasonLowConfidence
	}
	return out
}

// suggestions describes the top two guesses that reach the second-best threshold.
func (c *Composer) suggestions(d decision.Decision, th decision.Thresholds) []string {
	var out []string
	for i, cand := range d.Ranked {
		if i == 2 {
			break
		}
		if cand.Confidence >= th.SecondBest {
			out = append(out, c.catalog.Describe(cand.Tag))
		}
	}
	return out
}

// lowConfidenceText picks a fallback by a stable hash of the message so a repeated message
// gets the same reply.
func lowConfidenceText(message string, suggestions []string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(message))
	text := lowConfidenceMessages[h.Sum32()%uint32(len(lowConfidenceMessages))]

	var b strings.Builder
	b.WriteString(text)
	if len(suggestions) > 0 {
		b.WriteString("\n\nMungkin Anda mencari informasi tentang:\n- ")
		b.WriteString(strings.Join(suggestions, "\n- "))
	}
	b.WriteString("\n\n")
	b.WriteString(menuHint)
	return b.String()
}

func (c *Composer) generate(ctx context.Context, in Input, out *Output) {
	if c.generator == nil {
		return
	}
	topics := make([]string, 0, len(c.catalog.Intents()))
	for _, it := range c.catalog.Intents() {
		topics = append(topics, c.catalog.Describe(it.Tag))
	}
	text, err := c.generator.Generate(ctx, GenerateRequest{Message: in.Message, Topics: topics, History: in.History})
	if err != nil {
		logger.Warn().Err(err).Str("reason", out.FallbackReason).Msg("generative fallback failed, using fixed reply")
		return
	}
	out.Text = text
	out.Generated = true
}
