package core

import (
	"context"
	"strings"

	"psti_chatbot/internal/knowledge"
	"psti_chatbot/internal/logger"
	"psti_chatbot/internal/metrics"
	"psti_chatbot/internal/response"
	"psti_chatbot/internal/storage"
)

// RequestLogObserver writes every reply to the request log.
func RequestLogObserver(l *storage.RequestLog) Observer {
	return ObserverFunc(func(ctx context.Context, r *Reply) error {
		_, err := l.Record(ctx, storage.RequestRecord{
			UserID:     r.UserID,
			Input:      r.Message,
			Processed:  r.Normalized,
			Provenance: string(r.Provenance),
			Intent:     r.Intent,
			Confidence: r.Confidence,
			Tier:       string(r.Tier),
			Fallback:   r.Fallback,
			LatencyMs:  r.Latency.Milliseconds(),
		})
		return err
	})
}

func MetricsObserver(m *metrics.Metrics) Observer {
	return ObserverFunc(func(_ context.Context, r *Reply) error {
		m.ObserveReply(metrics.Reply{
			Provenance: string(r.Provenance),
			Tier:       string(r.Tier),
			Rule:       r.Rule,
			Generated:  r.Generated,
			Duration:   r.Latency,
		})
		return nil
	})
}

// LongtermObserver remembers confident classifier answers.
func LongtermObserver(lt *storage.JSONLongtermManager) Observer {
	return ObserverFunc(func(_ context.Context, r *Reply) error {
		if r.Provenance != response.FromML || r.Intent == "" || !lt.ShouldSaveToLongterm(r.Confidence) {
			return nil
		}
		return lt.SaveEntry(r.UserID, storage.LongtermEntry{
			Message:    r.Message,
			Intent:     r.Intent,
			Confidence: r.Confidence,
		})
	})
}

// LongtermSeed puts a user's remembered topics into a new session's context.
func LongtermSeed(lt *storage.JSONLongtermManager) storage.SeedFunc {
	return func(_ context.Context, userID string) knowledge.Context {
		topics, err := lt.KnownTopics(userID)
		if err != nil {
			logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read long-term topics")
			return nil
		}
		if len(topics) == 0 {
			return nil
		}
		return knowledge.Context{knowledge.KeyKnownTopics: strings.Join(topics, ",")}
	}
}
