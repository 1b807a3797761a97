package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bedtime-server/internal/ai"
	"bedtime-server/internal/interfaces"
	"bedtime-server/internal/middleware"
	"bedtime-server/internal/models"
	"bedtime-server/internal/personalization"
	"bedtime-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// StoryGenerator - движок персонализации.
type StoryGenerator interface {
	GeneratePersonalizedStory(ctx context.Context, req personalization.StoryRequest) *models.Story
}

// RetryPolicy - повторы сырого запроса к провайдеру при ответах 5xx.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// StoryHandler обслуживает HTTP API историй, настроек и провайдеров.
type StoryHandler struct {
	engine    StoryGenerator
	providers *personalization.Providers
	prefs     service.PreferencesService
	history   interfaces.StoryHistoryRepository // may be nil
	retry     RetryPolicy
	logger    *zap.Logger
}

// NewStoryHandler creates a new StoryHandler.
func NewStoryHandler(
	engine StoryGenerator,
	providers *personalization.Providers,
	prefs service.PreferencesService,
	history interfaces.StoryHistoryRepository,
	retry RetryPolicy,
	logger *zap.Logger,
) *StoryHandler {
	RegisterValidators()
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &StoryHandler{
		engine:    engine,
		providers: providers,
		prefs:     prefs,
		history:   history,
		retry:     retry,
		logger:    logger.Named("StoryHandler"),
	}
}

// RegisterRoutes регистрирует маршруты /api/v1. authenticate определяет пользователя
// запроса; генерация истории доступна и анонимно.
func (h *StoryHandler) RegisterRoutes(router gin.IRouter, authenticate gin.HandlerFunc) {
	api := router.Group("/api/v1", authenticate)
	api.POST("/stories/generate", h.generateStory)
	api.GET("/providers/health", h.providersHealth)

	user := api.Group("", middleware.RequireUser())
	user.POST("/ai/generate", h.generateText)
	user.GET("/stories/history", h.listHistory)
	user.GET("/preferences", h.getPreferences)
	user.PUT("/preferences", h.updatePreferences)
	user.GET("/preferences/metadata", h.getUserMetadata)
}

type generateStoryRequest struct {
	models.StoryInput
	Provider string `json:"provider,omitempty" binding:"max=32"`
}

func (h *StoryHandler) generateStory(c *gin.Context) {
	var req generateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid story request", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Details: describeBindingError(err)})
		return
	}
	if err := ValidateStoryInput(req.StoryInput); err != nil {
		handleServiceError(c, err)
		return
	}

	var provider ai.Provider
	if req.Provider != "" {
		p, err := ai.ParseProvider(req.Provider)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		provider = p
	}

	story := h.engine.GeneratePersonalizedStory(c.Request.Context(), personalization.StoryRequest{
		UserID:   middleware.UserID(c),
		Input:    req.StoryInput,
		Provider: provider,
	})
	c.JSON(http.StatusOK, story)
}

type generateTextRequest struct {
	Provider     string   `json:"provider,omitempty" binding:"max=32"`
	SystemPrompt string   `json:"systemPrompt" binding:"max=8000"`
	Prompt       string   `json:"prompt" binding:"required,max=16000"`
	Temperature  *float64 `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
	MaxTokens    *int     `json:"maxTokens,omitempty" binding:"omitempty,gt=0,lte=8192"`
}

func (h *StoryHandler) generateText(c *gin.Context) {
	var req generateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Details: describeBindingError(err)})
		return
	}

	var provider ai.Provider
	if req.Provider != "" {
		p, err := ai.ParseProvider(req.Provider)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		provider = p
	}

	gp, err := h.providers.Get(provider)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	resp, err := h.generateWithRetry(c.Request.Context(), gp, ai.TextRequest{
		UserID:       middleware.UserID(c),
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.Prompt,
		Params:       ai.GenerationParams{Temperature: req.Temperature, MaxTokens: req.MaxTokens},
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// generateWithRetry повторяет вызов только при 5xx от провайдера, с задержкой attempt*BaseDelay.
// Открытый предохранитель, таймаут и 4xx не повторяются.
func (h *StoryHandler) generateWithRetry(ctx context.Context, gp *personalization.GuardedProvider, req ai.TextRequest) (ai.TextResponse, error) {
	logFields := []zap.Field{zap.String("provider", string(gp.Provider())), zap.String("userID", req.UserID)}

	var cause error
	for attempt := 1; attempt <= h.retry.MaxAttempts; attempt++ {
		res := gp.Generate(ctx, req)
		if !res.FromFallback {
			return res.Value, nil
		}
		cause = res.Cause

		if !ai.IsServerError(cause) || attempt == h.retry.MaxAttempts {
			break
		}
		delay := time.Duration(attempt) * h.retry.BaseDelay
		h.logger.Warn("Provider server error, retrying",
			append(logFields, zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(cause))...)

		select {
		case <-ctx.Done():
			return ai.TextResponse{}, fmt.Errorf("%w: %w", models.ErrProviderUnavailable, ctx.Err())
		case <-time.After(delay):
		}
	}

	h.logger.Error("AI generation failed", append(logFields, zap.Error(cause))...)
	return ai.TextResponse{}, fmt.Errorf("%w: %w", models.ErrProviderUnavailable, cause)
}

func (h *StoryHandler) providersHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"primary":   h.providers.Primary(),
		"providers": h.providers.Health(),
	})
}

func (h *StoryHandler) listHistory(c *gin.Context) {
	limit, err := parseQueryInt(c, "limit", defaultHistoryLimit)
	if err != nil || limit < 1 {
		handleServiceError(c, fmt.Errorf("%w: limit must be a positive integer", models.ErrBadRequest))
		return
	}
	limit = min(limit, maxHistoryLimit)
	offset, err := parseQueryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		handleServiceError(c, fmt.Errorf("%w: offset must be a non-negative integer", models.ErrBadRequest))
		return
	}

	records := []models.StoryHistoryRecord{}
	if h.history != nil {
		records, err = h.history.ListByUser(c.Request.Context(), middleware.UserID(c), limit, offset)
		if err != nil {
			handleServiceError(c, fmt.Errorf("list story history: %w", err))
			return
		}
	}
	c.JSON(http.StatusOK, models.PaginatedResponse{Data: records, Limit: limit, Offset: offset})
}

func (h *StoryHandler) getPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, h.prefs.GetUserPreferences(c.Request.Context(), middleware.UserID(c)))
}

func (h *StoryHandler) updatePreferences(c *gin.Context) {
	var update models.PreferencesUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Details: describeBindingError(err)})
		return
	}
	if update.IsEmpty() {
		handleServiceError(c, fmt.Errorf("%w: no fields to update", models.ErrBadRequest))
		return
	}

	userID := middleware.UserID(c)
	if !h.prefs.UpdateUserPreferences(c.Request.Context(), userID, update) {
		handleServiceError(c, fmt.Errorf("update preferences for %s: %w", userID, models.ErrInternalServer))
		return
	}
	c.JSON(http.StatusOK, h.prefs.GetUserPreferences(c.Request.Context(), userID))
}

func (h *StoryHandler) getUserMetadata(c *gin.Context) {
	meta, err := h.prefs.UserMetadata(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

func parseQueryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
