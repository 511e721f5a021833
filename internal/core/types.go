// Package core wires normalization, knowledge rules, classification and response composition
// into one request pipeline.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"psti_chatbot/internal/decision"
	"psti_chatbot/internal/knowledge"
	"psti_chatbot/internal/response"
	"psti_chatbot/internal/storage"
)

// DefaultUserID is used when a request carries no user id.
const DefaultUserID = "default"

var ErrEmptyMessage = errors.New("message cannot be empty")

// Request is one inbound user message.
type Request struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// Reply is what the pipeline decided to answer.
type Reply struct {
	UserID         string              `json:"user_id"`
	Message        string              `json:"message"`
	Normalized     string              `json:"normalized"`
	Provenance     response.Provenance `json:"provenance"`
	Intent         string              `json:"intent,omitempty"`
	Confidence     float64             `json:"confidence"`
	Tier           decision.Tier       `json:"tier,omitempty"`
	Text           string              `json:"text"`
	Suggestions    []string            `json:"suggestions,omitempty"`
	Rule           string              `json:"rule,omitempty"`
	Fallback       bool                `json:"fallback"`
	FallbackReason string              `json:"fallback_reason,omitempty"`
	Generated      bool                `json:"generated"`
	Latency        time.Duration       `json:"latency"`
}

// Prediction is a classification without any session effect.
type Prediction struct {
	Text       string            `json:"text"`
	Normalized string            `json:"normalized"`
	Decision   decision.Decision `json:"decision"`
}

// StageError names the pipeline stage that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Turn is the state handed from one chain node to the next.
type Turn struct {
	Request    Request
	Thresholds decision.Thresholds
	Started    time.Time

	Session    *storage.Session
	Knowledge  *knowledge.Result
	Prediction *Prediction
	Output     response.Output

	stage string
}

// Observer is notified after every reply. Errors are logged, never returned to the caller.
type Observer interface {
	Observe(ctx context.Context, reply *Reply) error
}

type ObserverFunc func(ctx context.Context, reply *Reply) error

func (f ObserverFunc) Observe(ctx context.Context, reply *Reply) error { return f(ctx, reply) }
