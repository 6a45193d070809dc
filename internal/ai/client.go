// Package ai implements the LLM-backed classifier and ranker against any
// OpenAI-compatible chat completion endpoint.
package ai

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Options configures the shared LLM client.
type Options struct {
	// BaseURL points at an OpenAI-compatible endpoint, e.g. DeepSeek.
	BaseURL string
	APIKey  string
	Model   string
}

func newClient(opts Options) (*openai.Client, string) {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = "deepseek-chat"
	}
	return openai.NewClientWithConfig(cfg), model
}

// stripCodeFence removes a surrounding markdown code fence. Chat models
// wrap JSON in fences no matter how firmly the prompt forbids it.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
