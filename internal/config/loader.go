package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"psti_chatbot/internal/decision"
	"psti_chatbot/internal/logger"
	"psti_chatbot/internal/nlp"
)

// Config represents the structure of config.yaml. Environment variables override file values.
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Model      ModelConfig      `yaml:"model" envconfig:"MODEL"`
	Data       DataConfig       `yaml:"data" envconfig:"DATA"`
	Thresholds ThresholdsConfig `yaml:"thresholds" envconfig:"THRESHOLDS"`
	Normalizer NormalizerConfig `yaml:"normalizer" envconfig:"NORMALIZER"`
	Session    SessionConfig    `yaml:"session" envconfig:"SESSION"`
	Longterm   LongtermConfig   `yaml:"longterm" envconfig:"LONGTERM"`
	RequestLog RequestLogConfig `yaml:"request_log" envconfig:"REQUEST_LOG"`
	Generative GenerativeConfig `yaml:"generative" envconfig:"GENERATIVE"`
	Log        logger.Config    `yaml:"log"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" envconfig:"PORT"`
	CORSOrigins  []string      `yaml:"cors_origins" split_words:"true"`
	RateLimit    float64       `yaml:"rate_limit" split_words:"true"` // requests per second per client, 0 disables
	BodyLimit    string        `yaml:"body_limit" split_words:"true"`
	BatchLimit   int           `yaml:"batch_limit" split_words:"true"`
	ShutdownWait time.Duration `yaml:"shutdown_wait" split_words:"true"`
}

type ModelConfig struct {
	Dir string `yaml:"dir"`
}

type DataConfig struct {
	Intents   string `yaml:"intents"`
	Knowledge string `yaml:"knowledge"`
}

type ThresholdsConfig struct {
	High       float64 `yaml:"high"`
	Medium     float64 `yaml:"medium"`
	Memory     float64 `yaml:"memory"`
	SecondBest float64 `yaml:"second_best" split_words:"true"`
}

func (t ThresholdsConfig) Decision() decision.Thresholds {
	return decision.Thresholds{High: t.High, Medium: t.Medium, Memory: t.Memory, SecondBest: t.SecondBest}
}

type NormalizerConfig struct {
	ReplaceSlang     bool   `yaml:"replace_slang" split_words:"true"`
	NormalizeNumbers bool   `yaml:"normalize_numbers" split_words:"true"`
	RemoveStopWords  bool   `yaml:"remove_stop_words" split_words:"true"`
	StopWords        string `yaml:"stop_words" split_words:"true"` // minimal | extended
}

// Options is the training profile; a loaded model always uses the profile stored in its bundle.
func (n NormalizerConfig) Options() nlp.Options {
	return nlp.Options{
		ReplaceSlang:     n.ReplaceSlang,
		NormalizeNumbers: n.NormalizeNumbers,
		RemoveStopWords:  n.RemoveStopWords,
		StopWords:        nlp.StopWordList(n.StopWords),
	}
}

type SessionConfig struct {
	Backend     string        `yaml:"backend"` // memory | redis
	TTL         time.Duration `yaml:"ttl"`
	Capacity    int           `yaml:"capacity"`
	HistorySize int           `yaml:"history_size" split_words:"true"`
	RedisURL    string        `yaml:"redis_url" envconfig:"REDIS_URL"`
}

type LongtermConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Dir        string  `yaml:"dir"`
	Importance float64 `yaml:"importance"`
	MaxEntries int     `yaml:"max_entries" split_words:"true"`
	// MaxAge is the retention window applied when the server starts; 0 keeps everything.
	MaxAge time.Duration `yaml:"max_age" split_words:"true"`
}

type RequestLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type GenerativeConfig struct {
	Provider    string        `yaml:"provider"` // none | openai | ollama
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url" split_words:"true"`
	APIKey      string        `yaml:"-" envconfig:"OPENAI_API_KEY"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" split_words:"true"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         3000,
			CORSOrigins:  []string{"*"},
			RateLimit:    20,
			BodyLimit:    "64K",
			BatchLimit:   100,
			ShutdownWait: 10 * time.Second,
		},
		Model: ModelConfig{Dir: "model"},
		Data: DataConfig{
			Intents:   "data/intents.json",
			Knowledge: "data/knowledge.json",
		},
		Thresholds: ThresholdsConfig{High: 0.7, Medium: 0.4, Memory: 0.55, SecondBest: 0.3},
		Normalizer: NormalizerConfig{ReplaceSlang: true, NormalizeNumbers: true, StopWords: "minimal"},
		Session: SessionConfig{
			Backend:     "memory",
			TTL:         40 * time.Minute,
			Capacity:    10000,
			HistorySize: 10,
		},
		Longterm:   LongtermConfig{Enabled: true, Dir: "data/longterm", Importance: 0.8, MaxEntries: 100, MaxAge: 30 * 24 * time.Hour},
		RequestLog: RequestLogConfig{Enabled: true, Path: "logs/requests.db"},
		Generative: GenerativeConfig{Provider: "none", Temperature: 0.3, MaxTokens: 256, Timeout: 15 * time.Second},
		Log:        logger.Config{Level: "info", Format: "console", Output: "stdout", TimeFormat: "rfc3339"},
	}
}

// LoadConfig reads the YAML file at path on top of Default and then applies environment overrides.
// A missing file is not an error; the defaults and environment are used instead.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing YAML: %w", err)
			}
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if err := c.Thresholds.Decision().Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if c.Server.BatchLimit <= 0 {
		return fmt.Errorf("server: batch_limit must be positive")
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisURL == "" {
			return fmt.Errorf("session: redis backend requires redis_url or REDIS_URL")
		}
	default:
		return fmt.Errorf("session: unknown backend %q", c.Session.Backend)
	}
	if c.Session.HistorySize <= 0 {
		return fmt.Errorf("session: history_size must be positive")
	}
	if c.Longterm.MaxAge < 0 {
		return fmt.Errorf("longterm: max_age cannot be negative")
	}
	switch c.Normalizer.StopWords {
	case "", "minimal", "extended":
	default:
		return fmt.Errorf("normalizer: unknown stop word list %q", c.Normalizer.StopWords)
	}
	switch c.Generative.Provider {
	case "", "none", "openai", "ollama":
	default:
		return fmt.Errorf("generative: unknown provider %q", c.Generative.Provider)
	}
	if c.Model.Dir == "" {
		return fmt.Errorf("model: dir is required")
	}
	return nil
}
