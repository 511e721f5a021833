package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"psti_chatbot/internal/classifier"
	"psti_chatbot/internal/config"
	"psti_chatbot/internal/core"
	"psti_chatbot/internal/knowledge"
	"psti_chatbot/internal/logger"
	"psti_chatbot/internal/metrics"
	"psti_chatbot/internal/nlp"
	"psti_chatbot/internal/response"
	"psti_chatbot/internal/storage"
)

// app holds everything a running chatbot needs.
type app struct {
	processor  *core.Processor
	requestLog *storage.RequestLog
	longterm   *storage.JSONLongtermManager
	metrics    *metrics.Metrics
	closers    []io.Closer
}

// buildApp loads the artifacts and wires the pipeline. A model that fails to load is fatal.
func buildApp(ctx context.Context, cfg *config.Config, withMetrics bool) (*app, error) {
	log := logger.Component("startup")
	a := &app{}

	facts, err := knowledge.LoadFacts(cfg.Data.Knowledge)
	if err != nil {
		return nil, err
	}
	engine := knowledge.NewEngine(facts, nlp.NewNormalizer(nlp.RuleOptions()))

	clf, err := classifier.Load(cfg.Model.Dir)
	if err != nil {
		var mle *classifier.ModelLoadError
		if errors.As(err, &mle) {
			return nil, fmt.Errorf("model in %s is unusable, run `psti-chatbot train` first: %w", cfg.Model.Dir, err)
		}
		return nil, err
	}
	log.Info().Str("stamp", clf.Stamp()).Int("labels", len(clf.Labels())).
		Str("strategy", string(clf.Strategy())).Msg("model loaded")

	catalog, err := response.LoadCatalog(cfg.Data.Intents)
	if err != nil {
		return nil, err
	}

	tools, err := knowledge.Tools(engine.Matcher())
	if err != nil {
		return nil, err
	}
	gen, err := response.NewGenerator(ctx, response.GeneratorConfig{
		Provider:    cfg.Generative.Provider,
		Model:       cfg.Generative.Model,
		BaseURL:     cfg.Generative.BaseURL,
		APIKey:      cfg.Generative.APIKey,
		Temperature: cfg.Generative.Temperature,
		MaxTokens:   cfg.Generative.MaxTokens,
		Timeout:     cfg.Generative.Timeout,
		Tools:       tools,
	})
	if err != nil {
		return nil, err
	}
	if gen != nil {
		log.Info().Str("provider", cfg.Generative.Provider).Str("model", cfg.Generative.Model).Msg("generative fallback enabled")
	}

	store, err := a.sessionStore(ctx, cfg.Session)
	if err != nil {
		return nil, err
	}
	sessions := storage.NewSessionManager(store, cfg.Session.HistorySize)

	var observers []core.Observer
	if cfg.Longterm.Enabled {
		a.longterm = storage.NewJSONLongtermManager(cfg.Longterm.Dir, cfg.Longterm.MaxEntries, cfg.Longterm.Importance)
		sessions.WithSeed(core.LongtermSeed(a.longterm))
		observers = append(observers, core.LongtermObserver(a.longterm))
	}
	if cfg.RequestLog.Enabled {
		a.requestLog, err = storage.OpenRequestLog(ctx, cfg.RequestLog.Path, 0)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.requestLog)
		observers = append(observers, core.RequestLogObserver(a.requestLog))
	}
	if withMetrics {
		a.metrics = metrics.New(metrics.DefaultConfig())
		observers = append(observers, core.MetricsObserver(a.metrics))
	}

	a.processor, err = core.NewProcessor(ctx, core.Options{
		Engine:     engine,
		Classifier: clf,
		Composer:   response.NewComposer(catalog, gen),
		Sessions:   sessions,
		Thresholds: cfg.Thresholds.Decision(),
		Observers:  observers,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) sessionStore(ctx context.Context, cfg config.SessionConfig) (storage.SessionStore, error) {
	if cfg.Backend == "redis" {
		store, err := storage.NewRedisSessionStore(ctx, cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		logger.Info().Msg("sessions stored in redis")
		return store, nil
	}
	return storage.NewMemorySessionStore(cfg.Capacity, cfg.TTL), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing resource")
		}
	}
}
