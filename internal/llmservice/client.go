package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"webpage-rag/internal/config"
)

// Generator produces a completion for an assembled prompt. The prompt is
// passed to the model verbatim.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMGenerator drives any langchaingo chat model.
type LLMGenerator struct {
	llm llms.Model
}

// NewGenerator builds the chat provider selected by the config.
func NewGenerator(cfg *config.LLMConfig) (*LLMGenerator, error) {
	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case "ollama":
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case "openai":
		llm, err = openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unknown chat provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &LLMGenerator{llm: llm}, nil
}

func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	log.Debug().Int("prompt_chars", len(prompt)).Msg("Generating completion")

	msgs := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}
	resp, err := g.llm.GenerateContent(ctx, msgs)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}
