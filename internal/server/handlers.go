package server

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"psti_chatbot/internal/core"
	"psti_chatbot/internal/decision"
	"psti_chatbot/internal/response"
	"psti_chatbot/internal/storage"
	"psti_chatbot/pkg"
)

func (s *Server) routes() {
	e := s.echo
	e.GET("/", s.handleIndex)
	e.GET("/health", s.handleHealth)
	e.POST("/chat", s.handleChat)
	e.POST("/api/chat", s.handleChat)
	e.POST("/batch-predict", s.handleBatchPredict)
	e.GET("/config", s.handleGetConfig)
	e.POST("/config", s.handleUpdateConfig)
	e.GET("/analytics", s.handleAnalytics)
	e.GET("/memory/:userId", s.handleMemory)
	e.GET("/session/:userId", s.handleSession)
	if s.deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}
}

func (s *Server) handleIndex(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service": "PSTI Lab FAQ Chatbot",
		"endpoints": []string{
			"GET /health",
			"POST /chat",
			"POST /api/chat",
			"POST /batch-predict",
			"GET /config",
			"POST /config",
			"GET /analytics",
			"GET /memory/:userId",
			"GET /session/:userId",
			"GET /metrics",
		},
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	clf := s.deps.Processor.Classifier()
	sessions, err := s.deps.Processor.Sessions().Store().Count(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pkg.HealthResponse{
		Status: "ok",
		Model: pkg.ModelInfo{
			Stamp:    clf.Stamp(),
			Labels:   len(clf.Labels()),
			Strategy: string(clf.Strategy()),
		},
		Sessions: sessions,
	})
}

func (s *Server) handleChat(c echo.Context) error {
	var req pkg.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, pkg.ErrorResponse{Error: "Invalid request", Response: emptyMessageReply})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, pkg.ErrorResponse{Error: "Message is required", Response: emptyMessageReply})
	}

	reply, err := s.deps.Processor.Handle(c.Request().Context(), core.Request{UserID: req.UserID, Message: req.Message})
	if err != nil {
		if errors.Is(err, core.ErrEmptyMessage) {
			return c.JSON(http.StatusBadRequest, pkg.ErrorResponse{Error: "Message is required", Response: emptyMessageReply})
		}
		var se *core.StageError
		if errors.As(err, &se) {
			s.deps.Metrics.ObserveError(se.Stage)
		}
		return err
	}

	out := pkg.ChatResponse{
		From:        string(reply.Provenance),
		Intent:      reply.Intent,
		Tier:        string(reply.Tier),
		Response:    reply.Text,
		Suggestions: reply.Suggestions,
	}
	if reply.Provenance != response.FromKnowledge {
		conf := reply.Confidence
		out.Confidence = &conf
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleBatchPredict(c echo.Context) error {
	var req pkg.BatchRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	limit := s.cfg.BatchLimit
	if limit <= 0 {
		limit = 100
	}
	if len(req.Messages) == 0 || len(req.Messages) > limit {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("messages must hold between 1 and %d entries", limit))
	}

	results := make([]pkg.BatchPrediction, len(req.Messages))
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, msg := range req.Messages {
		g.Go(func() error {
			p, err := s.deps.Processor.Predict(ctx, msg)
			if err != nil {
				return err
			}
			d := p.Decision
			results[i] = pkg.BatchPrediction{
				Input:            msg,
				Normalized:       p.Normalized,
				Intent:           d.TopTag,
				Confidence:       d.TopConfidence,
				Tier:             string(d.Tier),
				SecondIntent:     d.SecondTag,
				SecondConfidence: d.SecondConfidence,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pkg.BatchResponse{Results: results})
}

func thresholdPayload(th decision.Thresholds) pkg.ThresholdConfig {
	return pkg.ThresholdConfig{High: &th.High, Medium: &th.Medium, Memory: &th.Memory, SecondBest: &th.SecondBest}
}

func (s *Server) handleGetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, thresholdPayload(s.deps.Processor.Thresholds()))
}

func (s *Server) handleUpdateConfig(c echo.Context) error {
	var req pkg.ThresholdConfig
	if err := c.Bind(&req); err != nil {
		return err
	}
	th := s.deps.Processor.Thresholds()
	if req.High != nil {
		th.High = *req.High
	}
	if req.Medium != nil {
		th.Medium = *req.Medium
	}
	if req.Memory != nil {
		th.Memory = *req.Memory
	}
	if req.SecondBest != nil {
		th.SecondBest = *req.SecondBest
	}
	if err := s.deps.Processor.SetThresholds(th); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Configuration updated",
		"config":  thresholdPayload(th),
	})
}

func (s *Server) handleAnalytics(c echo.Context) error {
	if s.deps.RequestLog == nil {
		return echo.NewHTTPError(http.StatusNotFound, "request log is disabled")
	}
	a, err := s.deps.RequestLog.Analytics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) handleMemory(c echo.Context) error {
	if s.deps.Longterm == nil {
		return echo.NewHTTPError(http.StatusNotFound, "long-term memory is disabled")
	}
	stats, err := s.deps.Longterm.GetMemoryStats(c.Param("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleSession(c echo.Context) error {
	sess, err := s.deps.Processor.Sessions().Store().Get(c.Request().Context(), c.Param("userId"))
	if errors.Is(err, storage.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, storage.GetSessionStats(sess))
}
