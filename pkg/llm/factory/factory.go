package factory

import (
	"fmt"
	"strings"

	"ai-consultation-be/pkg/llm"
	"ai-consultation-be/pkg/llm/ollama"
	"ai-consultation-be/pkg/llm/openai"
)

type Options struct {
	Provider      string
	DefaultModel  string
	OpenAIKey     string
	OpenAIBaseURL string
	OllamaBaseURL string
}

func NewLLMProvider(opts Options) (llm.LLMProvider, error) {
	switch strings.ToLower(opts.Provider) {
	case "", "openai":
		if opts.OpenAIKey == "" && opts.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
		}
		return openai.NewOpenAIProvider(opts.OpenAIKey, opts.OpenAIBaseURL, opts.DefaultModel, nil), nil
	case "ollama":
		baseURL := opts.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, opts.DefaultModel), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", opts.Provider)
	}
}
