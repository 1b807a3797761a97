package personalization

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bedtime-server/internal/ai"
	"bedtime-server/internal/cache"
	"bedtime-server/internal/interfaces"
	"bedtime-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPipelinePanic - непредвиденная паника внутри пайплайна генерации.
var ErrPipelinePanic = errors.New("story pipeline panicked")

// PreferencesProvider - то, что движку нужно от сервиса настроек.
type PreferencesProvider interface {
	// GetUserPreferences никогда не возвращает nil: при ошибке хранилища - значения по умолчанию.
	GetUserPreferences(ctx context.Context, userID string) *models.UserPreferences
	// RecordGeneration увеличивает счетчик историй пользователя.
	RecordGeneration(ctx context.Context, userID string, story *models.Story) error
}

// StoryRequest - вход движка.
type StoryRequest struct {
	UserID string
	Input  models.StoryInput
	// Preferences == nil - настройки читаются через PreferencesProvider.
	Preferences *models.UserPreferences
	// Provider == "" - провайдер по умолчанию.
	Provider ai.Provider
}

// EngineConfig - зависимости движка. Все, кроме Providers, опциональны.
type EngineConfig struct {
	Providers   *Providers
	Cache       *cache.StoryCache
	Preferences PreferencesProvider
	History     interfaces.StoryHistoryRepository
	Events      interfaces.StoryEventPublisher
	Fallback    *FallbackGenerator
	// StoryParams - параметры генерации для историй.
	StoryParams ai.GenerationParams
	// BackgroundTimeout ограничивает фоновые побочные действия (кэш, счетчик, история).
	BackgroundTimeout time.Duration
}

// Engine - оркестратор генерации персонализированной истории.
type Engine struct {
	providers   *Providers
	cache       *cache.StoryCache
	prefs       PreferencesProvider
	history     interfaces.StoryHistoryRepository
	events      interfaces.StoryEventPublisher
	fallback    *FallbackGenerator
	storyParams ai.GenerationParams
	bgTimeout   time.Duration
	logger      *zap.Logger

	wg sync.WaitGroup
}

func NewEngine(cfg EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Fallback == nil {
		cfg.Fallback = NewFallbackGenerator(nil)
	}
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = 10 * time.Second
	}
	return &Engine{
		providers:   cfg.Providers,
		cache:       cfg.Cache,
		prefs:       cfg.Preferences,
		history:     cfg.History,
		events:      cfg.Events,
		fallback:    cfg.Fallback,
		storyParams: cfg.StoryParams,
		bgTimeout:   cfg.BackgroundTimeout,
		logger:      logger.Named("PersonalizationEngine"),
	}
}

// storyOrigin описывает, откуда пришел текст истории.
type storyOrigin struct {
	provider ai.Provider
	cached   bool
	fallback bool
	err      error
}

// GeneratePersonalizedStory всегда возвращает историю. Отказы провайдера,
// открытый предохранитель и паники внутри пайплайна дают шаблонную историю
// с Metadata.Fallback = true.
func (e *Engine) GeneratePersonalizedStory(ctx context.Context, req StoryRequest) (story *models.Story) {
	log := e.logger.With(zap.String("userID", req.UserID), zap.String("theme", req.Input.Theme))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrPipelinePanic, r)
			log.Error("Story generation failed unexpectedly, serving fallback story", zap.Error(err), zap.Stack("stack"))
			story = e.buildStory(req.Input, e.fallback.Generate(req.Input), storyOrigin{fallback: true, err: err})
		}
	}()

	input := req.Input
	key := cache.DeriveKey(input)

	if raw, ok := e.cache.Lookup(ctx, key); ok {
		story = e.buildStory(input, raw, storyOrigin{cached: true})
		log.Info("Story served from cache", zap.String("storyID", story.ID), zap.String("cacheKey", key))
		e.afterGeneration(req.UserID, story, false)
		return story
	}

	gp, err := e.providers.Get(req.Provider)
	if err != nil {
		log.Error("No provider available, serving fallback story", zap.Error(err))
		story = e.buildStory(input, e.fallback.Generate(input), storyOrigin{fallback: true, err: err})
		e.afterGeneration(req.UserID, story, false)
		return story
	}

	prefs := e.resolvePreferences(ctx, req)
	prompt := BuildPrompt(input, prefs)

	res := gp.Generate(ctx, ai.TextRequest{
		UserID:       req.UserID,
		SystemPrompt: prompt.System,
		UserPrompt:   prompt.User,
		Params:       e.storyParams,
		Story:        &input,
	})

	if res.FromFallback {
		raw := res.Value.Text
		if raw == "" {
			raw = e.fallback.Generate(input)
		}
		story = e.buildStory(input, raw, storyOrigin{provider: gp.Provider(), fallback: true, err: res.Cause})
		log.Warn("Provider call failed, serving fallback story",
			zap.String("provider", string(gp.Provider())),
			zap.String("event", string(res.Event)),
			zap.Error(res.Cause),
		)
		e.afterGeneration(req.UserID, story, false)
		return story
	}

	raw := res.Value.Text
	story = e.buildStory(input, raw, storyOrigin{provider: gp.Provider()})
	log.Info("Story generated",
		zap.String("storyID", story.ID),
		zap.String("provider", string(gp.Provider())),
		zap.Int("wordCount", story.Metadata.WordCount),
		zap.Int("totalTokens", res.Value.Usage.TotalTokens),
	)

	e.background("cache-store", func(bgCtx context.Context) {
		e.cache.Store(bgCtx, key, raw)
	})
	e.afterGeneration(req.UserID, story, true)
	return story
}

func (e *Engine) resolvePreferences(ctx context.Context, req StoryRequest) *models.UserPreferences {
	if req.Preferences != nil {
		return req.Preferences
	}
	if e.prefs == nil || req.UserID == "" {
		return models.DefaultUserPreferences(req.UserID)
	}
	if prefs := e.prefs.GetUserPreferences(ctx, req.UserID); prefs != nil {
		return prefs
	}
	return models.DefaultUserPreferences(req.UserID)
}

func (e *Engine) buildStory(input models.StoryInput, raw string, origin storyOrigin) *models.Story {
	title, content := ParseStoryText(raw, DefaultTitle(input.ChildName))
	words := CountWords(content)
	p := DerivePronouns(input.Gender)
	now := time.Now().UTC()

	story := &models.Story{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		Theme:     input.Theme,
		CreatedAt: now,
		Input:     input,
		Metadata: models.StoryMetadata{
			Pronoun:           p.Subject,
			PossessivePronoun: p.Possessive,
			GeneratedAt:       now,
			WordCount:         words,
			ReadingTime:       ReadingTime(words),
			Fallback:          origin.fallback,
			Cached:            origin.cached,
			Provider:          string(origin.provider),
		},
	}
	if origin.err != nil {
		story.Metadata.Error = origin.err.Error()
	}
	return story
}

// afterGeneration запускает побочные действия в фоне. Счетчик историй
// увеличивается только после успешного ответа провайдера.
func (e *Engine) afterGeneration(userID string, story *models.Story, live bool) {
	if userID == "" {
		return
	}
	if live && e.prefs != nil {
		e.background("record-generation", func(ctx context.Context) {
			if err := e.prefs.RecordGeneration(ctx, userID, story); err != nil {
				e.logger.Warn("Failed to record story generation", zap.String("userID", userID), zap.Error(err))
			}
		})
	}
	if e.history != nil {
		rec := models.NewStoryHistoryRecord(userID, story)
		e.background("history", func(ctx context.Context) {
			if err := e.history.Save(ctx, rec); err != nil {
				e.logger.Warn("Failed to save story history", zap.String("storyID", rec.ID), zap.Error(err))
			}
		})
	}
	if e.events != nil {
		event := models.StoryGeneratedEvent{
			StoryID:     story.ID,
			UserID:      userID,
			Theme:       story.Theme,
			Provider:    story.Metadata.Provider,
			Fallback:    story.Metadata.Fallback,
			Cached:      story.Metadata.Cached,
			WordCount:   story.Metadata.WordCount,
			GeneratedAt: story.Metadata.GeneratedAt,
		}
		e.background("event", func(ctx context.Context) {
			if err := e.events.PublishStoryGenerated(ctx, event); err != nil {
				e.logger.Warn("Failed to publish story generated event", zap.String("storyID", event.StoryID), zap.Error(err))
			}
		})
	}
}

// background выполняет fn в отдельной горутине. Контекст fn не связан с запросом.
func (e *Engine) background(name string, fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Background task panicked", zap.String("task", name), zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), e.bgTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Shutdown ждет завершения фоновых задач или отмены ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
