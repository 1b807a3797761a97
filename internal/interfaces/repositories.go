package interfaces

import (
	"context"
	"time"

	"bedtime-server/internal/models"
)

// KeyValueStore - общее key-value хранилище (Redis) для кэша историй и
// служебных хэшей пользователя. Get возвращает models.ErrNotFound при промахе.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key string, values map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// PreferencesRepository определяет методы хранения настроек пользователя.
// Get возвращает models.ErrPreferencesNotFound, если записи нет.
type PreferencesRepository interface {
	Get(ctx context.Context, userID string) (*models.UserPreferences, error)
	Upsert(ctx context.Context, prefs *models.UserPreferences) error
	IncrementStoryCount(ctx context.Context, userID string) (int, error)
}

// StoryHistoryRepository хранит облегченные записи о сгенерированных историях.
type StoryHistoryRepository interface {
	Save(ctx context.Context, record models.StoryHistoryRecord) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.StoryHistoryRecord, error)
}

// StoryEventPublisher публикует события о сгенерированных историях.
type StoryEventPublisher interface {
	PublishStoryGenerated(ctx context.Context, event models.StoryGeneratedEvent) error
}
