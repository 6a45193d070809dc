package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"newswatch/internal/news"
)

const classifierSystemPrompt = `You are a news analyst. Given a news article's title, body snippet, and crawl time, respond with a single JSON object and nothing else:
{"estimated_published_at": "RFC3339 timestamp or null", "estimated_source": "publication name or null", "importance_score": 0-100}
importance_score reflects newsworthiness for a business intelligence reader.`

// Classifier estimates article metadata via chat completion.
type Classifier struct {
	client *openai.Client
	model  string
	clock  news.Clock
	logger *zap.Logger
}

var _ news.Classifier = (*Classifier)(nil)

// NewClassifier builds a Classifier.
func NewClassifier(opts Options, clock news.Clock, logger *zap.Logger) *Classifier {
	client, model := newClient(opts)
	return &Classifier{
		client: client,
		model:  model,
		clock:  clock,
		logger: logger.Named("classifier"),
	}
}

type classifierVerdict struct {
	EstimatedPublishedAt *string  `json:"estimated_published_at"`
	EstimatedSource      *string  `json:"estimated_source"`
	ImportanceScore      *float64 `json:"importance_score"`
}

// Analyze classifies one article. Errors are returned so the analysis
// pipeline can persist the terminal failed result; Analyze itself never
// substitutes defaults.
func (c *Classifier) Analyze(ctx context.Context, title, content string, crawledAt time.Time) (news.AnalysisResult, error) {
	prompt := fmt.Sprintf("Title: %s\nCrawled at: %s\nBody:\n%s",
		title, crawledAt.Format(time.RFC3339), content)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return news.AnalysisResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return news.AnalysisResult{}, fmt.Errorf("chat completion returned no choices")
	}

	raw := stripCodeFence(resp.Choices[0].Message.Content)
	var verdict classifierVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return news.AnalysisResult{}, fmt.Errorf("parse verdict %q: %w", raw, err)
	}

	result := news.AnalysisResult{
		Status:          news.AnalysisSuccess,
		ImportanceScore: news.DefaultImportance,
		AnalyzedAt:      c.clock.Now(),
	}
	if verdict.ImportanceScore != nil {
		result.ImportanceScore = clampImportance(*verdict.ImportanceScore)
	}
	if verdict.EstimatedSource != nil {
		result.EstimatedSource = *verdict.EstimatedSource
	}
	if verdict.EstimatedPublishedAt != nil {
		if ts, err := time.Parse(time.RFC3339, *verdict.EstimatedPublishedAt); err == nil {
			result.EstimatedPublishedAt = &ts
		} else {
			c.logger.Debug("unparseable estimated publish time",
				zap.String("value", *verdict.EstimatedPublishedAt))
		}
	}
	return result, nil
}
