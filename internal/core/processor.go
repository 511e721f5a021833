package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"psti_chatbot/internal/classifier"
	"psti_chatbot/internal/decision"
	"psti_chatbot/internal/knowledge"
	"psti_chatbot/internal/logger"
	"psti_chatbot/internal/response"
	"psti_chatbot/internal/storage"
)

// Stage names, also used as chain node names.
const (
	StageLoadSession = "load_session"
	StageKnowledge   = "knowledge"
	StageClassify    = "classify"
	StageCompose     = "compose"
	StagePersist     = "persist"
)

// DefaultHistoryWindow is how many past turns the generative fallback sees.
const DefaultHistoryWindow = 6

type Options struct {
	Engine     *knowledge.Engine
	Classifier *classifier.Classifier
	Composer   *response.Composer
	Sessions   *storage.SessionManager
	Thresholds decision.Thresholds
	// HistoryWindow defaults to DefaultHistoryWindow.
	HistoryWindow int
	Observers     []Observer
}

// Processor is safe for concurrent use.
type Processor struct {
	engine     *knowledge.Engine
	classifier *classifier.Classifier
	composer   *response.Composer
	sessions   *storage.SessionManager
	window     int
	observers  []Observer

	thresholds atomic.Pointer[decision.Thresholds]
	chain      compose.Runnable[*Turn, *Turn]
}

func NewProcessor(ctx context.Context, opts Options) (*Processor, error) {
	if opts.Engine == nil || opts.Classifier == nil || opts.Composer == nil || opts.Sessions == nil {
		return nil, fmt.Errorf("processor needs an engine, classifier, composer and session manager")
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}

	p := &Processor{
		engine:     opts.Engine,
		classifier: opts.Classifier,
		composer:   opts.Composer,
		sessions:   opts.Sessions,
		window:     opts.HistoryWindow,
		observers:  opts.Observers,
	}
	th := opts.Thresholds
	p.thresholds.Store(&th)

	for _, label := range opts.Composer.Catalog().Unanswerable(opts.Classifier.Labels()) {
		logger.Warn().Str("intent", label).Msg("classifier label has no catalog responses")
	}

	chain, err := compose.NewChain[*Turn, *Turn]().
		AppendLambda(compose.InvokableLambda(p.loadSession), compose.WithNodeName(StageLoadSession)).
		AppendLambda(compose.InvokableLambda(p.answerKnowledge), compose.WithNodeName(StageKnowledge)).
		AppendLambda(compose.InvokableLambda(p.classify), compose.WithNodeName(StageClassify)).
		AppendLambda(compose.InvokableLambda(p.compose), compose.WithNodeName(StageCompose)).
		AppendLambda(compose.InvokableLambda(p.persist), compose.WithNodeName(StagePersist)).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating Eino chain: %w", err)
	}
	p.chain = chain
	return p, nil
}

// AddObserver must be called before the processor serves traffic.
func (p *Processor) AddObserver(o Observer) {
	p.observers = append(p.observers, o)
}

func (p *Processor) Thresholds() decision.Thresholds { return *p.thresholds.Load() }

// SetThresholds swaps the thresholds for subsequent requests.
func (p *Processor) SetThresholds(th decision.Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	p.thresholds.Store(&th)
	logger.Info().Float64("high", th.High).Float64("medium", th.Medium).
		Float64("memory", th.Memory).Float64("second_best", th.SecondBest).Msg("thresholds updated")
	return nil
}

func (p *Processor) Classifier() *classifier.Classifier { return p.classifier }
func (p *Processor) Sessions() *storage.SessionManager  { return p.sessions }
func (p *Processor) Catalog() *response.Catalog         { return p.composer.Catalog() }

// Handle runs one message through the pipeline and notifies the observers.
func (p *Processor) Handle(ctx context.Context, req Request) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}

	turn := &Turn{Request: req, Thresholds: p.Thresholds(), Started: time.Now()}
	out, err := p.chain.Invoke(ctx, turn)
	if err != nil {
		stage := turn.stage
		if stage == "" {
			stage = "chain"
		}
		var se *StageError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, &StageError{Stage: stage, Err: err}
	}

	reply := p.reply(out)
	logger.Debug().Str("user_id", reply.UserID).Str("provenance", string(reply.Provenance)).
		Str("intent", reply.Intent).Float64("confidence", reply.Confidence).
		Dur("latency", reply.Latency).Msg("reply composed")

	for _, o := range p.observers {
		if err := o.Observe(ctx, reply); err != nil {
			logger.Warn().Err(err).Str("user_id", reply.UserID).Msg("reply observer failed")
		}
	}
	return reply, nil
}

// Predict classifies text with the current thresholds. Rules and sessions are not involved.
func (p *Processor) Predict(_ context.Context, text string) (*Prediction, error) {
	res, err := p.classifier.Classify(text)
	if err != nil {
		return nil, &StageError{Stage: StageClassify, Err: err}
	}
	d, err := decision.Decide(res.Distribution, p.classifier.Labels(), p.Thresholds())
	if err != nil {
		return nil, &StageError{Stage: StageClassify, Err: err}
	}
	return &Prediction{Text: text, Normalized: res.Normalized, Decision: d}, nil
}

func (p *Processor) loadSession(ctx context.Context, t *Turn) (*Turn, error) {
	t.stage = StageLoadSession
	s, err := p.sessions.GetOrCreate(ctx, t.Request.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	t.Session = s
	return t, nil
}

func (p *Processor) answerKnowledge(_ context.Context, t *Turn) (*Turn, error) {
	t.stage = StageKnowledge
	if res, ok := p.engine.Answer(t.Request.Message, t.Session.Context); ok {
		t.Knowledge = &res
	}
	return t, nil
}

func (p *Processor) classify(ctx context.Context, t *Turn) (*Turn, error) {
	if t.Knowledge != nil {
		return t, nil
	}
	t.stage = StageClassify
	pred, err := p.Predict(ctx, t.Request.Message)
	if err != nil {
		return nil, err
	}
	// Predict reads the live thresholds; re-tier with the ones pinned for this turn
	pred.Decision.Tier = t.Thresholds.TierFor(pred.Decision.TopConfidence)
	t.Prediction = pred
	return t, nil
}

func (p *Processor) compose(ctx context.Context, t *Turn) (*Turn, error) {
	t.stage = StageCompose
	in := response.Input{
		Message:    t.Request.Message,
		LastIntent: t.Session.LastIntent,
		History:    p.history(t.Session),
	}
	if t.Knowledge != nil {
		in.Rule = &response.RuleAnswer{Rule: t.Knowledge.Rule, Answer: t.Knowledge.Answer}
	}
	if t.Prediction != nil {
		in.Decision = t.Prediction.Decision
	}

	if count, ok := p.composer.Rotation(in, t.Thresholds); ok {
		idx, err := p.sessions.RotateResponse(ctx, t.Request.UserID, count)
		if err != nil {
			return nil, fmt.Errorf("failed to rotate response: %w", err)
		}
		in.Rotated = &idx
	}

	t.Output = p.composer.Compose(ctx, in, t.Thresholds)
	return t, nil
}

func (p *Processor) persist(ctx context.Context, t *Turn) (*Turn, error) {
	t.stage = StagePersist
	id := t.Request.UserID
	if t.Knowledge != nil {
		if err := p.sessions.MergeContext(ctx, id, t.Knowledge.Context); err != nil {
			return nil, err
		}
	}
	if err := p.sessions.RecordTurn(ctx, id, schema.User, t.Request.Message); err != nil {
		return nil, err
	}
	if err := p.sessions.RecordTurn(ctx, id, schema.Assistant, t.Output.Text); err != nil {
		return nil, err
	}
	if t.Output.Remember {
		if err := p.sessions.SetLastIntent(ctx, id, t.Output.Intent, t.Output.ResponseIndex); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (p *Processor) history(s *storage.Session) []*schema.Message {
	msgs := s.Messages()
	if len(msgs) > p.window {
		msgs = msgs[len(msgs)-p.window:]
	}
	return msgs
}

func (p *Processor) reply(t *Turn) *Reply {
	out := t.Output
	r := &Reply{
		UserID:         t.Request.UserID,
		Message:        t.Request.Message,
		Provenance:     out.Provenance,
		Intent:         out.Intent,
		Confidence:     out.Confidence,
		Tier:           out.Tier,
		Text:           out.Text,
		Suggestions:    out.Suggestions,
		Rule:           out.Rule,
		Fallback:       out.Fallback,
		FallbackReason: out.FallbackReason,
		Generated:      out.Generated,
		Latency:        time.Since(t.Started),
	}
	if t.Prediction != nil {
		r.Normalized = t.Prediction.Normalized
	} else {
		r.Normalized = p.engine.Matcher().Normalize(t.Request.Message)
	}
	return r
}
