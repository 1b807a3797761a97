package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bedtime-server/internal/models"

	"go.uber.org/zap"
)

// Provider - идентификатор AI провайдера.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderOllama Provider = "ollama"
)

// ParseProvider нормализует имя провайдера.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOpenAI, ProviderGemini, ProviderOllama:
		return p, nil
	default:
		return "", fmt.Errorf("%w: '%s'", models.ErrUnknownProvider, s)
	}
}

// ErrAIGenerationFailed - ошибка при генерации текста AI
var ErrAIGenerationFailed = errors.New("ai text generation failed")

// ErrEmptyResponse - провайдер ответил без текста.
var ErrEmptyResponse = errors.New("ai provider returned an empty response")

// GenerationParams - параметры генерации. Указатели отличают 0 от "не задано".
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// UsageInfo содержит информацию об использовании токенов.
type UsageInfo struct {
	PromptTokens     int  `json:"promptTokens"`
	CompletionTokens int  `json:"completionTokens"`
	TotalTokens      int  `json:"totalTokens"`
	Estimated        bool `json:"estimated"` // true, если токены посчитаны локально
}

// Client - интерфейс для взаимодействия с AI API.
type Client interface {
	// GenerateText генерирует текст по системному промту и вводу пользователя.
	// Любой не-2xx ответ или сетевая ошибка возвращается как ошибка.
	GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error)
}

// TextRequest - запрос, проходящий через предохранитель провайдера.
// Story заполняется для генерации истории и используется fallback-генератором.
type TextRequest struct {
	UserID       string
	SystemPrompt string
	UserPrompt   string
	Params       GenerationParams
	Story        *models.StoryInput
}

// TextResponse - ответ провайдера.
type TextResponse struct {
	Text     string    `json:"text"`
	Usage    UsageInfo `json:"usage"`
	Provider Provider  `json:"provider"`
	Model    string    `json:"model,omitempty"`
}

// ClientConfig - настройки одного провайдера.
type ClientConfig struct {
	Provider Provider
	APIKey   string
	BaseURL  string
	Model    string
	// Timeout - таймаут HTTP клиента. Предохранитель ставит свой, обычно меньший.
	Timeout time.Duration
}

// NewClient создает клиента по конфигурации провайдера.
func NewClient(ctx context.Context, cfg ClientConfig, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ai client %s: model is required", cfg.Provider)
	}
	WarmupEncoding(cfg.Model)
	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg, logger)
	case ProviderGemini:
		return newGeminiClient(ctx, cfg, logger)
	case ProviderOllama:
		return newOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: '%s'", models.ErrUnknownProvider, cfg.Provider)
	}
}

func float32Ptr(f64 *float64) *float32 {
	if f64 == nil {
		return nil
	}
	f32 := float32(*f64)
	return &f32
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
