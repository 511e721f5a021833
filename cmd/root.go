// Package cmd holds the psti-chatbot command line.
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"psti_chatbot/internal/config"
	"psti_chatbot/internal/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "psti-chatbot",
	Short: "FAQ chatbot for Lab PSTI",
	Long: `psti-chatbot answers Indonesian questions about Lab PSTI. Exact facts come from the
knowledge base, everything else from a trained intent classifier with confidence tiers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env is fine
		_ = godotenv.Load()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("model-dir", "", "model bundle directory override")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("model.dir", rootCmd.PersistentFlags().Lookup("model-dir"))

	viper.SetEnvPrefix("CHATBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, chatCmd, trainCmd, evaluateCmd, normalizeCmd)
}

// loadConfig reads the config file and applies flag overrides, then installs the global logger.
func loadConfig() (*config.Config, io.Closer, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if lvl := viper.GetString("log.level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if dir := viper.GetString("model.dir"); dir != "" {
		cfg.Model.Dir = dir
	}

	closer, err := logger.Init(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing logger: %w", err)
	}
	return cfg, closer, nil
}
