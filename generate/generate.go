// Package generate turns an assembled context payload into persona-voiced
// reply text. Generation is a boundary call: the engine hands it one
// bounded payload and accepts whatever comes back as final, with no
// internal retry.
package generate

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// Generator produces reply text from an assembled context.
type Generator interface {
	Generate(ctx context.Context, system string, contextText string) (string, error)
}

// ClaudeGenerator implements Generator on the Anthropic API.
type ClaudeGenerator struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeGenerator creates a generator on client. Model defaults to
// claude-sonnet-4-20250514 and maxTokens to 1024.
func NewClaudeGenerator(client *anthropic.Client, model string, maxTokens int64) *ClaudeGenerator {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &ClaudeGenerator{client: client, model: model, maxTokens: maxTokens}
}

func (g *ClaudeGenerator) Generate(ctx context.Context, system string, contextText string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(contextText)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
