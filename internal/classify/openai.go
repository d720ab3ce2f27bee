package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the LLM classifier.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultOpenAIConfig returns sensible defaults for classification.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:       openai.GPT4oMini,
		Temperature: 0.2, // Low temperature for consistent judgements
		MaxTokens:   800,
		Timeout:     60 * time.Second,
	}
}

// OpenAIClassifier judges age appropriateness with an LLM and extracts
// a time-of-day when the free text mentions one.
type OpenAIClassifier struct {
	client   *openai.Client
	config   OpenAIConfig
	fallback *RuleBased
	logger   *slog.Logger
}

// NewOpenAIClassifier creates an LLM-backed classifier.
func NewOpenAIClassifier(config OpenAIConfig, logger *slog.Logger) *OpenAIClassifier {
	return &OpenAIClassifier{
		client:   openai.NewClient(config.APIKey),
		config:   config,
		fallback: NewRuleBased(),
		logger:   logger,
	}
}

const classifyPrompt = `You assess children's events for a household. For each event below, decide whether it suits at least one child given the children's ages, and extract a start time-of-day (24h "HH:MM") if the description mentions one.

Children's ages: %s

Events:
%s

Respond with a JSON array only, one object per event in order:
[{"suitable": true, "reason": "...", "extracted_time": "10:30"}]
Use an empty string for extracted_time when no time is mentioned.`

// Assess judges a single event, falling back to the rule-based check on
// any API failure.
func (c *OpenAIClassifier) Assess(ctx context.Context, event *models.CanonicalEvent, childAges []int) (Assessment, error) {
	assessments, err := c.AssessBatch(ctx, []*models.CanonicalEvent{event}, childAges)
	if err != nil {
		return Assessment{}, err
	}
	return assessments[0], nil
}

// AssessBatch sends all events in one prompt. On failure every event
// gets the rule-based verdict instead; the pipeline never halts on a
// classifier outage.
func (c *OpenAIClassifier) AssessBatch(ctx context.Context, events []*models.CanonicalEvent, childAges []int) ([]Assessment, error) {
	assessments, err := c.assessViaAPI(ctx, events, childAges)
	if err == nil {
		return assessments, nil
	}

	c.logger.Warn("classifier unavailable, falling back to rule-based age check", "error", err)
	return c.fallback.AssessBatch(ctx, events, childAges)
}

func (c *OpenAIClassifier) assessViaAPI(ctx context.Context, events []*models.CanonicalEvent, childAges []int) ([]Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var sb strings.Builder
	for i, event := range events {
		fmt.Fprintf(&sb, "%d. %q", i+1, event.Title)
		if event.AgeRange != nil {
			fmt.Fprintf(&sb, " (declared ages %d-%d)", event.AgeRange.MinYears, event.AgeRange.MaxYears)
		}
		if event.Description != "" {
			fmt.Fprintf(&sb, ": %s", truncate(event.Description, 400))
		}
		sb.WriteString("\n")
	}

	ages := make([]string, len(childAges))
	for i, age := range childAges {
		ages[i] = fmt.Sprintf("%d", age)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(classifyPrompt, strings.Join(ages, ", "), sb.String()),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	content := extractJSONArray(resp.Choices[0].Message.Content)

	var assessments []Assessment
	if err := json.Unmarshal([]byte(content), &assessments); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response: %w", err)
	}

	if len(assessments) != len(events) {
		return nil, fmt.Errorf("classifier returned %d assessments for %d events", len(assessments), len(events))
	}

	return assessments, nil
}

// extractJSONArray strips any prose or code fencing around the JSON
// payload the model was asked for.
func extractJSONArray(content string) string {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
