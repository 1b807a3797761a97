package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// ollamaClient реализует Client для локальной модели через ollama/api.
type ollamaClient struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

func newOllamaClient(cfg ClientConfig, logger *zap.Logger) (Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	// api.NewClient ожидает URL без суффикса /v1
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Ollama base URL '%s': %w", baseURL, err)
	}

	logger.Info("Ollama client created",
		zap.String("baseURL", baseURL),
		zap.String("model", cfg.Model),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &ollamaClient{
		client: api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout}),
		model:  cfg.Model,
		logger: logger.Named("OllamaClient"),
	}, nil
}

// GenerateText генерирует текст с использованием Ollama без стриминга.
func (c *ollamaClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	log := c.logger.With(zap.String("userID", userID), zap.String("model", c.model))

	var messages []api.Message
	if systemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: systemPrompt})
	}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}
	if len(messages) == 0 {
		observeRequest(ProviderOllama, c.model, "error", 0, UsageInfo{})
		return "", UsageInfo{}, fmt.Errorf("%w: empty prompt", ErrAIGenerationFailed)
	}

	options := map[string]interface{}{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	startTime := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(ctx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)
	if err != nil {
		wrapped := wrapProviderError(ProviderOllama, err)
		log.Warn("Ollama request failed", zap.Duration("duration", duration), zap.Error(wrapped))
		observeRequest(ProviderOllama, c.model, "error", duration, UsageInfo{})
		return "", UsageInfo{}, wrapped
	}

	text := resp.Message.Content
	if strings.TrimSpace(text) == "" {
		log.Warn("Ollama returned an empty response", zap.Duration("duration", duration))
		observeRequest(ProviderOllama, c.model, "error_empty_response", duration, UsageInfo{})
		return "", UsageInfo{}, &ProviderError{Provider: ProviderOllama, Err: ErrEmptyResponse}
	}

	usage := UsageInfo{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	if usage.TotalTokens == 0 {
		usage = estimateUsage(c.model, systemPrompt, userInput, text)
	}

	observeRequest(ProviderOllama, c.model, "success", duration, usage)
	log.Info("Ollama response received",
		zap.Duration("duration", duration),
		zap.Int("responseLength", len(text)),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
	)

	return text, usage, nil
}
