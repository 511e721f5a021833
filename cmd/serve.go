package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"psti_chatbot/internal/logger"
	"psti_chatbot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig()
		if err != nil {
			return err
		}
		defer closer.Close()
		if port := viper.GetInt("server.port"); port > 0 {
			cfg.Server.Port = port
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, true)
		if err != nil {
			logger.Error().Err(err).Msg("startup failed")
			return err
		}
		defer a.Close()

		if a.longterm != nil && cfg.Longterm.MaxAge > 0 {
			if _, err := a.longterm.CleanupAll(cfg.Longterm.MaxAge); err != nil {
				logger.Warn().Err(err).Msg("longterm retention pass failed")
			}
		}

		srv := server.New(server.Deps{
			Processor:  a.processor,
			RequestLog: a.requestLog,
			Longterm:   a.longterm,
			Metrics:    a.metrics,
		}, cfg.Server)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port override")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
