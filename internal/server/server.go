// Package server exposes the chat pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"psti_chatbot/internal/config"
	"psti_chatbot/internal/core"
	"psti_chatbot/internal/logger"
	"psti_chatbot/internal/metrics"
	"psti_chatbot/internal/storage"
	"psti_chatbot/pkg"
)

const (
	serverErrorReply  = "Maaf, terjadi kesalahan pada server."
	emptyMessageReply = "Pesan tidak boleh kosong"
)

// Deps are the components the routes read from. Only Processor is required.
type Deps struct {
	Processor  *core.Processor
	RequestLog *storage.RequestLog
	Longterm   *storage.JSONLongtermManager
	Metrics    *metrics.Metrics
}

type Server struct {
	echo *echo.Echo
	deps Deps
	cfg  config.ServerConfig
}

func New(deps Deps, cfg config.ServerConfig) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}

	s := &Server{echo: e, deps: deps, cfg: cfg}
	e.HTTPErrorHandler = s.handleError

	httpLog := logger.Component("http")
	e.Use(middleware.RequestID())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			httpLog.Error().Err(err).Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Bytes("stack", stack).Msg("panic recovered")
			return err
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			httpLog.Info().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).
				Dur("latency", v.Latency).Str("request_id", v.RequestID).Msg("request")
			return nil
		},
	}))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		}))
	}
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	s.routes()
	return s
}

func (s *Server) Echo() *echo.Echo { return s.echo }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("chatbot server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	wait := s.cfg.ShutdownWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	logger.Info().Msg("shutting down server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// handleError keeps client errors as they are and hides everything else behind the apology.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		_ = c.JSON(he.Code, pkg.ErrorResponse{Error: msg})
		return
	}

	logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("request failed")
	_ = c.JSON(http.StatusInternalServerError, pkg.ErrorResponse{Error: "Server error", Response: serverErrorReply})
}

type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigDefault.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	if err := sonic.ConfigDefault.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body").SetInternal(err)
	}
	return nil
}
