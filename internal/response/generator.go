package response

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"

	"psti_chatbot/internal/logger"
)

// Generator writes a free-form reply when the catalog has nothing to say.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type GenerateRequest struct {
	Message string
	// Topics lists what the bot can talk about, typically intent descriptions.
	Topics  []string
	History []*schema.Message
}

type GeneratorConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	LabName     string
	// Tools are queried with the user message before prompting; their output grounds the reply.
	Tools []tool.InvokableTool
}

// NewGenerator returns nil when the provider is empty or "none".
func NewGenerator(ctx context.Context, cfg GeneratorConfig) (Generator, error) {
	var (
		chat model.BaseChatModel
		err  error
	)
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		maxTokens := cfg.MaxTokens
		temperature := cfg.Temperature
		chat, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	case "ollama":
		chat, err = ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Options: &api.Options{
				Temperature: cfg.Temperature,
				NumPredict:  cfg.MaxTokens,
			},
		})
	default:
		return nil, fmt.Errorf("unknown generative provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating %s chat model: %w", cfg.Provider, err)
	}
	return NewChatGenerator(chat, cfg.LabName, cfg.Timeout).WithTools(cfg.Tools...), nil
}

// ChatGenerator formats the fallback prompt and asks an eino chat model.
type ChatGenerator struct {
	model    model.BaseChatModel
	template prompt.ChatTemplate
	timeout  time.Duration
	tools    []tool.InvokableTool
}

func NewChatGenerator(m model.BaseChatModel, labName string, timeout time.Duration) *ChatGenerator {
	if labName == "" {
		labName = "Lab PSTI"
	}
	return &ChatGenerator{model: m, template: newFallbackTemplate(labName), timeout: timeout}
}

func (g *ChatGenerator) WithTools(tools ...tool.InvokableTool) *ChatGenerator {
	g.tools = append(g.tools, tools...)
	return g
}

func (g *ChatGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	vars := map[string]any{
		"message": req.Message,
		"topics":  strings.Join(req.Topics, ", "),
		"facts":   g.lookup(ctx, req.Message),
	}
	if len(req.History) > 0 {
		vars["history"] = req.History
	}
	messages, err := g.template.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("error formatting fallback prompt: %w", err)
	}

	out, err := g.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("error generating fallback response: %w", err)
	}
	text := strings.TrimSpace(out.Content)
	if text == "" {
		return "", fmt.Errorf("model returned an empty response")
	}
	return text, nil
}

// lookup runs every tool on message and joins the non-empty results. Failing tools are skipped.
func (g *ChatGenerator) lookup(ctx context.Context, message string) string {
	if len(g.tools) == 0 {
		return "-"
	}
	args, err := sonic.MarshalString(map[string]string{"query": message})
	if err != nil {
		return "-"
	}
	var found []string
	for _, t := range g.tools {
		out, err := t.InvokableRun(ctx, args)
		if err != nil {
			if info, ierr := t.Info(ctx); ierr == nil {
				logger.Warn().Err(err).Str("tool", info.Name).Msg("knowledge tool failed")
			}
			continue
		}
		if text := toolText(out); text != "" {
			found = append(found, text)
		}
	}
	if len(found) == 0 {
		return "-"
	}
	return strings.Join(found, "\n\n")
}

// toolText unquotes outputs that were encoded as a JSON string.
func toolText(out string) string {
	out = strings.TrimSpace(out)
	if strings.HasPrefix(out, `"`) {
		var s string
		if err := sonic.UnmarshalString(out, &s); err == nil {
			out = strings.TrimSpace(s)
		}
	}
	return out
}
