package knowledge

import (
	"psti_chatbot/internal/logger"
	"psti_chatbot/internal/nlp"
)

// Result is the answer of the first rule that matched.
type Result struct {
	Rule    string
	Answer  string
	Context Context
}

// Engine evaluates rules in priority order and stops at the first match.
type Engine struct {
	matcher *Matcher
	rules   []Rule
}

// NewEngine wires the default rule set: specific entity questions first, then category and
// listing questions, then follow-ups and the unknown-person fallback.
func NewEngine(facts *Facts, norm *nlp.Normalizer) *Engine {
	m := NewMatcher(facts, norm)
	return NewEngineWithRules(m,
		projectDeveloperRule{m},
		studentProfileRule{m},
		projectDetailRule{m},
		cohortListRule{facts},
		projectFollowupRule{facts},
		projectCategoryRule{m},
		skillSearchRule{m},
		projectListRule{facts},
		labSupervisorsRule{facts},
		labFacilitiesRule{facts},
		labHoursRule{facts},
		labContactRule{facts},
		labLocationRule{facts},
		studentFollowupRule{facts},
		studentListRule{facts},
		unknownPersonRule{m},
	)
}

func NewEngineWithRules(m *Matcher, rules ...Rule) *Engine {
	return &Engine{matcher: m, rules: rules}
}

func (e *Engine) Rules() []Rule { return e.rules }

func (e *Engine) Matcher() *Matcher { return e.matcher }

// Run returns false when no rule matched, handing the message to the classifier.
func (e *Engine) Run(msg Message, ctx Context) (Result, bool) {
	if len(msg.Tokens) == 0 {
		return Result{}, false
	}
	if ctx == nil {
		ctx = Context{}
	}
	for _, r := range e.rules {
		answer, next, ok := r.Match(msg, ctx)
		if !ok {
			continue
		}
		if next == nil {
			next = ctx.Clone()
		}
		logger.Debug().Str("rule", r.Name()).Str("message", msg.Text).Msg("knowledge rule matched")
		return Result{Rule: r.Name(), Answer: answer, Context: next}, true
	}
	return Result{}, false
}

// Answer normalizes raw text with the matcher's profile and runs the rules.
func (e *Engine) Answer(text string, ctx Context) (Result, bool) {
	return e.Run(NewMessage(e.matcher.Normalize(text)), ctx)
}
