package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/mentorstack/coach-go-sdk/memory"
)

// Analysis is one pass of derived observations over a window of
// conversation history.
type Analysis struct {
	Themes      []string `json:"themes"`
	GrowthAreas []string `json:"growth_areas"`
	Goals       []string `json:"goals"`
	Strengths   []string `json:"strengths"`
	Challenges  []string `json:"challenges"`
	Insights    []string `json:"insights"`
}

// Analyzer derives behavioral observations from conversation history.
type Analyzer interface {
	Analyze(ctx context.Context, records []memory.Record) (*Analysis, error)
}

const analysisPrompt = `Analyze this coaching conversation history and extract behavioral patterns.

Conversation:
%s

Respond with ONLY a JSON object, no other text:
{
  "themes": ["recurring topics the user keeps returning to"],
  "growth_areas": ["areas where the user wants to improve"],
  "goals": ["specific goals the user has stated"],
  "strengths": ["strengths the user has demonstrated"],
  "challenges": ["obstacles the user is facing"],
  "insights": ["notable realizations the user has had"]
}

Keep each list to at most 5 short entries. Use empty lists when nothing applies.`

// ClaudeAnalyzer derives observations with a Claude call.
type ClaudeAnalyzer struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeAnalyzer creates an analyzer on client. Model defaults to
// claude-sonnet-4-20250514.
func NewClaudeAnalyzer(client *anthropic.Client, model string) *ClaudeAnalyzer {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &ClaudeAnalyzer{client: client, model: model, maxTokens: 1024}
}

func (a *ClaudeAnalyzer) Analyze(ctx context.Context, records []memory.Record) (*Analysis, error) {
	if len(records) == 0 {
		return &Analysis{}, nil
	}

	var transcript strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&transcript, "%s: %s\n", rec.Role, rec.Text)
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(
				fmt.Sprintf(analysisPrompt, transcript.String()))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analysis call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	analysis, err := parseAnalysis(text)
	if err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}
	return analysis, nil
}

// parseAnalysis tolerates prose around the JSON object; models sometimes
// wrap the payload despite instructions.
func parseAnalysis(text string) (*Analysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var analysis Analysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}
