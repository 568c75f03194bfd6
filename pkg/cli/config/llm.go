package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/claude"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/urfave/cli/v3"
)

const (
	providerGemini = "gemini"
	providerClaude = "claude"
)

// LLM holds configuration for the chat model and the Gemini client used for
// embeddings.
type LLM struct {
	provider       string
	geminiProject  string
	geminiLocation string
	geminiModel    string
	claudeAPIKey   string
	claudeModel    string
	maxTokens      int
	temperature    float64

	gemini gollem.LLMClient
}

// Flags returns CLI flags for LLM configuration
func (l *LLM) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "Chat model provider [gemini|claude]",
			Category:    "LLM",
			Value:       providerGemini,
			Sources:     cli.EnvVars("SYLLABUS_LLM_PROVIDER"),
			Destination: &l.provider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Category:    "LLM",
			Sources:     cli.EnvVars("SYLLABUS_GEMINI_PROJECT"),
			Destination: &l.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Category:    "LLM",
			Value:       "us-central1",
			Sources:     cli.EnvVars("SYLLABUS_GEMINI_LOCATION"),
			Destination: &l.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name (provider default when empty)",
			Category:    "LLM",
			Sources:     cli.EnvVars("SYLLABUS_GEMINI_MODEL"),
			Destination: &l.geminiModel,
		},
		&cli.StringFlag{
			Name:        "claude-api-key",
			Usage:       "Anthropic API key for Claude",
			Category:    "LLM",
			Sources:     cli.EnvVars("SYLLABUS_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"),
			Destination: &l.claudeAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model name (provider default when empty)",
			Category:    "LLM",
			Sources:     cli.EnvVars("SYLLABUS_CLAUDE_MODEL"),
			Destination: &l.claudeModel,
		},
		&cli.IntFlag{
			Name:        "max-tokens",
			Usage:       "Maximum tokens generated per model call",
			Category:    "LLM",
			Value:       800,
			Sources:     cli.EnvVars("SYLLABUS_MAX_TOKENS"),
			Destination: &l.maxTokens,
		},
		&cli.FloatFlag{
			Name:        "temperature",
			Usage:       "Sampling temperature",
			Category:    "LLM",
			Value:       0,
			Sources:     cli.EnvVars("SYLLABUS_TEMPERATURE"),
			Destination: &l.temperature,
		},
	}
}

// LogAttrs returns log attributes for the LLM configuration
func (l *LLM) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("provider", l.provider),
		slog.String("gemini_project", l.geminiProject),
		slog.String("gemini_location", l.geminiLocation),
		slog.String("gemini_model", l.geminiModel),
		slog.Bool("claude_api_key_set", l.claudeAPIKey != ""),
		slog.String("claude_model", l.claudeModel),
		slog.Int("max_tokens", l.maxTokens),
		slog.Float64("temperature", l.temperature),
	}
}

// Configure creates the chat model client. Returns nil when the selected
// provider has no credentials configured; query features are then disabled.
func (l *LLM) Configure(ctx context.Context) (gollem.LLMClient, error) {
	switch l.provider {
	case providerGemini:
		return l.GeminiClient(ctx)

	case providerClaude:
		if l.claudeAPIKey == "" {
			return nil, nil
		}
		opts := []claude.Option{
			claude.WithMaxTokens(int64(l.maxTokens)),
			claude.WithTemperature(l.temperature),
		}
		if l.claudeModel != "" {
			opts = append(opts, claude.WithModel(l.claudeModel))
		}
		client, err := claude.New(ctx, l.claudeAPIKey, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Claude client")
		}
		return client, nil

	default:
		return nil, goerr.Wrap(ErrInvalidBackend, "invalid LLM provider", goerr.V(BackendKey, l.provider))
	}
}

// GeminiClient returns the Gemini client, creating it on first use.
// Returns nil if the project is not configured.
func (l *LLM) GeminiClient(ctx context.Context) (gollem.LLMClient, error) {
	if l.geminiProject == "" {
		return nil, nil
	}
	if l.gemini != nil {
		return l.gemini, nil
	}

	opts := []gemini.Option{
		gemini.WithMaxTokens(int32(l.maxTokens)),
		gemini.WithTemperature(float32(l.temperature)),
	}
	if l.geminiModel != "" {
		opts = append(opts, gemini.WithModel(l.geminiModel))
	}

	client, err := gemini.New(ctx, l.geminiProject, l.geminiLocation, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client",
			goerr.V("project", l.geminiProject),
			goerr.V("location", l.geminiLocation))
	}
	l.gemini = client

	return client, nil
}
