package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// geminiClient реализует Client через официальный Go SDK Gemini API.
type geminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func newGeminiClient(ctx context.Context, cfg ClientConfig, logger *zap.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini client: api key is required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	logger.Info("Gemini client created",
		zap.String("model", cfg.Model),
		zap.String("baseURL", cfg.BaseURL),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &geminiClient{
		client: client,
		model:  cfg.Model,
		logger: logger.Named("GeminiClient"),
	}, nil
}

// GenerateText генерирует текст через models.generateContent.
func (c *geminiClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	log := c.logger.With(zap.String("userID", userID), zap.String("model", c.model))

	if strings.TrimSpace(userInput) == "" {
		// Gemini требует хотя бы один user content; системный промт уходит в SystemInstruction.
		userInput, systemPrompt = systemPrompt, ""
	}
	if strings.TrimSpace(userInput) == "" {
		observeRequest(ProviderGemini, c.model, "error", 0, UsageInfo{})
		return "", UsageInfo{}, fmt.Errorf("%w: empty prompt", ErrAIGenerationFailed)
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature: float32Ptr(params.Temperature),
		TopP:        float32Ptr(params.TopP),
	}
	if params.MaxTokens != nil {
		genCfg.MaxOutputTokens = int32(*params.MaxTokens)
	}
	if systemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	startTime := time.Now()
	log.Debug("Sending request to Gemini",
		zap.Int("systemPromptBytes", len(systemPrompt)),
		zap.Int("userInputBytes", len(userInput)),
	)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userInput), genCfg)
	duration := time.Since(startTime)
	if err != nil {
		wrapped := wrapProviderError(ProviderGemini, err)
		log.Warn("Gemini request failed", zap.Duration("duration", duration), zap.Error(wrapped))
		observeRequest(ProviderGemini, c.model, "error", duration, UsageInfo{})
		return "", UsageInfo{}, wrapped
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		log.Warn("Gemini returned an empty response", zap.Duration("duration", duration))
		observeRequest(ProviderGemini, c.model, "error_empty_response", duration, UsageInfo{})
		return "", UsageInfo{}, &ProviderError{Provider: ProviderGemini, Err: ErrEmptyResponse}
	}

	var usage UsageInfo
	if md := resp.UsageMetadata; md != nil && md.TotalTokenCount > 0 {
		usage = UsageInfo{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount),
			TotalTokens:      int(md.TotalTokenCount),
		}
	} else {
		usage = estimateUsage(c.model, systemPrompt, userInput, text)
	}

	observeRequest(ProviderGemini, c.model, "success", duration, usage)
	log.Info("Gemini response received",
		zap.Duration("duration", duration),
		zap.Int("responseLength", len(text)),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
		zap.Bool("estimatedUsage", usage.Estimated),
	)

	return text, usage, nil
}
