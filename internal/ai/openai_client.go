package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIClient реализует Client с использованием go-openai.
// BaseURL позволяет работать с любым OpenAI-совместимым API.
type openAIClient struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

func newOpenAIClient(cfg ClientConfig, logger *zap.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai client: api key is required")
	}
	openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = cfg.BaseURL
	}
	openaiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	logger.Info("OpenAI client created",
		zap.String("baseURL", openaiConfig.BaseURL),
		zap.String("model", cfg.Model),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &openAIClient{
		client: openaigo.NewClientWithConfig(openaiConfig),
		model:  cfg.Model,
		logger: logger.Named("OpenAIClient"),
	}, nil
}

// GenerateText генерирует текст на основе системного промта и ввода пользователя.
func (c *openAIClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	log := c.logger.With(zap.String("userID", userID), zap.String("model", c.model))

	if strings.TrimSpace(systemPrompt) == "" && strings.TrimSpace(userInput) == "" {
		observeRequest(ProviderOpenAI, c.model, "error", 0, UsageInfo{})
		return "", UsageInfo{}, fmt.Errorf("%w: empty prompt", ErrAIGenerationFailed)
	}

	var messages []openaigo.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	if userInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: userInput,
		})
	}

	req := openaigo.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: intVal(params.MaxTokens),
	}
	if t := float32Ptr(params.Temperature); t != nil {
		req.Temperature = *t
	}
	if p := float32Ptr(params.TopP); p != nil {
		req.TopP = *p
	}

	startTime := time.Now()
	log.Debug("Sending request to OpenAI",
		zap.Int("systemPromptBytes", len(systemPrompt)),
		zap.Int("userInputBytes", len(userInput)),
	)

	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(startTime)
	if err != nil {
		wrapped := wrapProviderError(ProviderOpenAI, err)
		log.Warn("OpenAI request failed", zap.Duration("duration", duration), zap.Error(wrapped))
		observeRequest(ProviderOpenAI, c.model, "error", duration, UsageInfo{})
		return "", UsageInfo{}, wrapped
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		log.Warn("OpenAI returned an empty response", zap.Duration("duration", duration))
		observeRequest(ProviderOpenAI, c.model, "error_empty_response", duration, UsageInfo{})
		return "", UsageInfo{}, &ProviderError{Provider: ProviderOpenAI, Err: ErrEmptyResponse}
	}

	text := resp.Choices[0].Message.Content
	usage := UsageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = estimateUsage(c.model, systemPrompt, userInput, text)
	}

	observeRequest(ProviderOpenAI, c.model, "success", duration, usage)
	log.Info("OpenAI response received",
		zap.Duration("duration", duration),
		zap.Int("responseLength", len(text)),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
		zap.Bool("estimatedUsage", usage.Estimated),
	)

	return text, usage, nil
}
