package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bedtime-server/internal/interfaces"
	"bedtime-server/internal/models"

	"go.uber.org/zap"
)

// userMetaKeyFormat - хэш служебных счетчиков пользователя в key-value хранилище.
const userMetaKeyFormat = "user:%s:meta"

const (
	metaFieldStoryCount  = "story_count"
	metaFieldLastStoryAt = "last_story_at"
	metaFieldLastTheme   = "last_theme"
)

// PreferencesService defines the interface for reading and updating user preferences.
type PreferencesService interface {
	// GetUserPreferences никогда не возвращает ошибку: при сбое хранилища
	// возвращаются настройки по умолчанию.
	GetUserPreferences(ctx context.Context, userID string) *models.UserPreferences
	UpdateUserPreferences(ctx context.Context, userID string, update models.PreferencesUpdate) bool
	IncrementStoryCount(ctx context.Context, userID string) error
	RecordGeneration(ctx context.Context, userID string, story *models.Story) error
	UserMetadata(ctx context.Context, userID string) (models.UserMetadata, error)
}

type preferencesServiceImpl struct {
	repo   interfaces.PreferencesRepository
	kv     interfaces.KeyValueStore // may be nil
	logger *zap.Logger
}

// NewPreferencesService creates a new instance of PreferencesService.
// kv может быть nil, тогда хэш user:{id}:meta не ведется.
func NewPreferencesService(
	repo interfaces.PreferencesRepository,
	kv interfaces.KeyValueStore,
	logger *zap.Logger,
) PreferencesService {
	return &preferencesServiceImpl{
		repo:   repo,
		kv:     kv,
		logger: logger.Named("PreferencesService"),
	}
}

func UserMetaKey(userID string) string {
	return fmt.Sprintf(userMetaKeyFormat, userID)
}

// GetUserPreferences возвращает сохраненные настройки. Если записи нет, создает
// настройки по умолчанию и пытается их сохранить.
func (s *preferencesServiceImpl) GetUserPreferences(ctx context.Context, userID string) *models.UserPreferences {
	logFields := []zap.Field{zap.String("userID", userID)}

	prefs, err := s.repo.Get(ctx, userID)
	if err == nil {
		return prefs
	}

	defaults := models.DefaultUserPreferences(userID)
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("Failed to load user preferences, using defaults", append(logFields, zap.Error(err))...)
		return defaults
	}

	s.logger.Info("Creating default preferences for new user", logFields...)
	if err := s.repo.Upsert(ctx, defaults); err != nil {
		// Настройки по умолчанию все равно возвращаются
		s.logger.Error("Failed to persist default preferences", append(logFields, zap.Error(err))...)
	}
	return defaults
}

// UpdateUserPreferences применяет частичное обновление. false - обновление не сохранено.
func (s *preferencesServiceImpl) UpdateUserPreferences(ctx context.Context, userID string, update models.PreferencesUpdate) bool {
	logFields := []zap.Field{zap.String("userID", userID)}

	prefs, err := s.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		prefs = models.DefaultUserPreferences(userID)
	case err != nil:
		s.logger.Error("Failed to load preferences for update", append(logFields, zap.Error(err))...)
		return false
	}

	update.Apply(prefs)
	if err := s.repo.Upsert(ctx, prefs); err != nil {
		s.logger.Error("Failed to save updated preferences", append(logFields, zap.Error(err))...)
		return false
	}

	s.logger.Info("User preferences updated", logFields...)
	return true
}

func (s *preferencesServiceImpl) IncrementStoryCount(ctx context.Context, userID string) error {
	if _, err := s.repo.IncrementStoryCount(ctx, userID); err != nil {
		s.logger.Error("Failed to increment story count", zap.String("userID", userID), zap.Error(err))
		return fmt.Errorf("increment story count for user %s: %w", userID, err)
	}
	return nil
}

// RecordGeneration увеличивает счетчик историй и обновляет хэш user:{id}:meta.
// Ошибка хэша только логируется: счетчик в основном хранилище уже увеличен.
func (s *preferencesServiceImpl) RecordGeneration(ctx context.Context, userID string, story *models.Story) error {
	logFields := []zap.Field{zap.String("userID", userID)}

	count, err := s.repo.IncrementStoryCount(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to increment story count", append(logFields, zap.Error(err))...)
		return fmt.Errorf("increment story count for user %s: %w", userID, err)
	}

	if s.kv == nil {
		return nil
	}

	meta := map[string]string{
		metaFieldStoryCount:  strconv.Itoa(count),
		metaFieldLastStoryAt: time.Now().UTC().Format(time.RFC3339),
	}
	if story != nil {
		meta[metaFieldLastStoryAt] = story.CreatedAt.UTC().Format(time.RFC3339)
		meta[metaFieldLastTheme] = story.Theme
	}
	if err := s.kv.HSet(ctx, UserMetaKey(userID), meta); err != nil {
		s.logger.Warn("Failed to update user metadata hash", append(logFields, zap.Error(err))...)
	}
	return nil
}

// UserMetadata читает хэш user:{id}:meta. Пустой хэш - нулевые значения.
func (s *preferencesServiceImpl) UserMetadata(ctx context.Context, userID string) (models.UserMetadata, error) {
	var meta models.UserMetadata
	if s.kv == nil {
		return meta, nil
	}

	values, err := s.kv.HGetAll(ctx, UserMetaKey(userID))
	if err != nil {
		return meta, fmt.Errorf("read user metadata for %s: %w", userID, err)
	}

	if raw, ok := values[metaFieldStoryCount]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			meta.StoryCount = n
		} else {
			s.logger.Warn("Invalid story_count in user metadata", zap.String("userID", userID), zap.String("value", raw))
		}
	}
	if raw, ok := values[metaFieldLastStoryAt]; ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			meta.LastStoryAt = ts
		} else {
			s.logger.Warn("Invalid last_story_at in user metadata", zap.String("userID", userID), zap.String("value", raw))
		}
	}
	meta.LastTheme = values[metaFieldLastTheme]
	return meta, nil
}
