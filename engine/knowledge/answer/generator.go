package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/compozy/docqa/engine/core"
)

// Provider names a generation backend.
type Provider string

const (
	ProviderGoogleAI Provider = "googleai"
	ProviderOpenAI   Provider = "openai"
)

// CallOptions bound a single generation call.
type CallOptions struct {
	MaxOutputTokens int
	Temperature     float64
}

// Generator produces text for prompt with the named model.
type Generator interface {
	Generate(ctx context.Context, model string, prompt string, opts CallOptions) (string, error)
}

// GeneratorConfig selects and authenticates a generation backend.
type GeneratorConfig struct {
	Provider     Provider
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// LangchainGenerator routes every call through one langchaingo model,
// selecting the target model per call.
type LangchainGenerator struct {
	model llms.Model
}

// NewGenerator builds the langchaingo client for cfg.Provider.
func NewGenerator(ctx context.Context, cfg *GeneratorConfig) (*LangchainGenerator, error) {
	if cfg == nil {
		return nil, errors.New("answer: generator config is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.NewError(
			errors.New("answer: generation api key is required"),
			core.ErrCodeConfiguration,
			map[string]any{"provider": string(cfg.Provider)},
		)
	}
	model, err := createLLM(ctx, cfg)
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("answer: create %s client: %w", cfg.Provider, err),
			core.ErrCodeConfiguration,
			nil,
		)
	}
	return &LangchainGenerator{model: model}, nil
}

// WrapModel adapts an existing langchaingo model.
func WrapModel(model llms.Model) *LangchainGenerator {
	return &LangchainGenerator{model: model}
}

func createLLM(ctx context.Context, cfg *GeneratorConfig) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderGoogleAI, "":
		opts := []googleai.Option{googleai.WithAPIKey(cfg.APIKey)}
		if cfg.DefaultModel != "" {
			opts = append(opts, googleai.WithDefaultModel(cfg.DefaultModel))
		}
		if cfg.BaseURL != "" {
			return nil, fmt.Errorf("googleai does not support custom API URL")
		}
		return googleai.New(ctx, opts...)
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.DefaultModel != "" {
			opts = append(opts, openai.WithModel(cfg.DefaultModel))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %q is not supported", cfg.Provider)
	}
}

func (g *LangchainGenerator) Generate(ctx context.Context, model string, prompt string, opts CallOptions) (string, error) {
	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
	callOptions := []llms.CallOption{llms.WithModel(model)}
	if opts.Temperature > 0 {
		callOptions = append(callOptions, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxOutputTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(opts.MaxOutputTokens))
	}
	resp, err := g.model.GenerateContent(ctx, messages, callOptions...)
	if err != nil {
		return "", core.NewError(
			fmt.Errorf("answer: model %q: %w", model, err),
			core.ErrCodeGenerationService,
			map[string]any{"model": model},
		)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", nil
	}
	return resp.Choices[0].Content, nil
}
