package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"newswatch/internal/news"
)

const rankerSystemPrompt = `You are a news editor compiling a daily briefing. From the numbered article list, pick the most newsworthy entries for the given topic, at most the requested count. Respond with a single JSON array and nothing else:
[{"index": <article number>, "priority": "high|medium|low", "title": "refined headline", "summary": "one or two sentences"}]
Order entries from most to least important.`

// Ranker selects and refines report articles via chat completion.
type Ranker struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ news.Ranker = (*Ranker)(nil)

// NewRanker builds a Ranker.
func NewRanker(opts Options, logger *zap.Logger) *Ranker {
	client, model := newClient(opts)
	return &Ranker{
		client: client,
		model:  model,
		logger: logger.Named("ranker"),
	}
}

type rankerEntry struct {
	Index    int    `json:"index"`
	Priority string `json:"priority"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
}

// Rank picks at most targetCount articles. Errors propagate so the report
// pipeline can fall back to its order-preserving truncation.
func (r *Ranker) Rank(ctx context.Context, articles []news.Article, keyword string, targetCount int) ([]news.RankedArticle, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\nPick at most %d articles.\n\n", keyword, targetCount)
	for i, a := range articles {
		fmt.Fprintf(&sb, "%d. [%s] %s\n%s\n\n", i, a.Source, a.Title, a.Content)
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rankerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	raw := stripCodeFence(resp.Choices[0].Message.Content)
	var entries []rankerEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parse ranking %q: %w", raw, err)
	}

	ranked := make([]news.RankedArticle, 0, targetCount)
	for _, e := range entries {
		if len(ranked) >= targetCount {
			break
		}
		if e.Index < 0 || e.Index >= len(articles) {
			r.logger.Debug("ranker referenced an unknown article", zap.Int("index", e.Index))
			continue
		}
		article := articles[e.Index]
		if e.Title != "" {
			article.Title = e.Title
		}
		ranked = append(ranked, news.RankedArticle{
			Article:  article,
			Priority: normalizePriority(e.Priority),
			Summary:  e.Summary,
		})
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("ranking selected no known articles")
	}
	return ranked, nil
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}
