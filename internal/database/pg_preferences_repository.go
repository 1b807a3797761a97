package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bedtime-server/internal/interfaces"
	"bedtime-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	getPreferencesQuery = `
        SELECT user_id, preferred_themes, learning_interests, age_group, story_count,
               notification_settings, created_at, updated_at
        FROM user_preferences
        WHERE user_id = $1`
	upsertPreferencesQuery = `
        INSERT INTO user_preferences (user_id, preferred_themes, learning_interests, age_group,
                                      story_count, notification_settings, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (user_id) DO UPDATE SET
            preferred_themes      = EXCLUDED.preferred_themes,
            learning_interests    = EXCLUDED.learning_interests,
            age_group             = EXCLUDED.age_group,
            notification_settings = EXCLUDED.notification_settings,
            updated_at            = EXCLUDED.updated_at`
	// Строка создается при первом инкременте, если пользователь еще не сохранял настройки.
	incrementStoryCountQuery = `
        INSERT INTO user_preferences (user_id, age_group, story_count, notification_settings)
        VALUES ($1, $2, 1, $3)
        ON CONFLICT (user_id) DO UPDATE SET
            story_count = user_preferences.story_count + 1,
            updated_at  = NOW()
        RETURNING story_count`
)

var _ interfaces.PreferencesRepository = (*pgPreferencesRepository)(nil)

// preferencesRow - строка таблицы; notification_settings хранится в jsonb.
type preferencesRow struct {
	UserID               string    `db:"user_id"`
	PreferredThemes      []string  `db:"preferred_themes"`
	LearningInterests    []string  `db:"learning_interests"`
	AgeGroup             string    `db:"age_group"`
	StoryCount           int       `db:"story_count"`
	NotificationSettings []byte    `db:"notification_settings"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

type pgPreferencesRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgPreferencesRepository создает репозиторий настроек на PostgreSQL.
func NewPgPreferencesRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.PreferencesRepository {
	return &pgPreferencesRepository{
		db:     db,
		logger: logger.Named("PgPreferencesRepo"),
	}
}

func (r *pgPreferencesRepository) Get(ctx context.Context, userID string) (*models.UserPreferences, error) {
	log := r.logger.With(zap.String("userID", userID))

	var row preferencesRow
	if err := pgxscan.Get(ctx, r.db, &row, getPreferencesQuery, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Debug("Preferences not found")
			return nil, models.ErrPreferencesNotFound
		}
		log.Error("Failed to get preferences from postgres", zap.Error(err))
		return nil, fmt.Errorf("failed to get preferences for user %s: %w", userID, err)
	}

	prefs := &models.UserPreferences{
		UserID:            row.UserID,
		PreferredThemes:   nonNil(row.PreferredThemes),
		LearningInterests: nonNil(row.LearningInterests),
		AgeGroup:          row.AgeGroup,
		StoryCount:        row.StoryCount,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if len(row.NotificationSettings) > 0 {
		if err := json.Unmarshal(row.NotificationSettings, &prefs.NotificationSettings); err != nil {
			log.Warn("Invalid notification_settings JSON, using defaults", zap.Error(err))
			prefs.NotificationSettings = models.DefaultUserPreferences(userID).NotificationSettings
		}
	}
	return prefs, nil
}

// Upsert сохраняет настройки целиком. story_count меняет только IncrementStoryCount.
func (r *pgPreferencesRepository) Upsert(ctx context.Context, prefs *models.UserPreferences) error {
	settings, err := json.Marshal(prefs.NotificationSettings)
	if err != nil {
		return fmt.Errorf("marshal notification settings: %w", err)
	}
	createdAt, updatedAt := prefs.CreatedAt, prefs.UpdatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err = r.db.Exec(ctx, upsertPreferencesQuery,
		prefs.UserID,
		nonNil(prefs.PreferredThemes),
		nonNil(prefs.LearningInterests),
		prefs.AgeGroup,
		prefs.StoryCount,
		settings,
		createdAt,
		updatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert preferences", zap.String("userID", prefs.UserID), zap.Error(err))
		return fmt.Errorf("failed to upsert preferences for user %s: %w", prefs.UserID, err)
	}
	r.logger.Debug("Preferences upserted", zap.String("userID", prefs.UserID))
	return nil
}

func (r *pgPreferencesRepository) IncrementStoryCount(ctx context.Context, userID string) (int, error) {
	defaults := models.DefaultUserPreferences(userID)
	settings, err := json.Marshal(defaults.NotificationSettings)
	if err != nil {
		return 0, fmt.Errorf("marshal notification settings: %w", err)
	}

	var count int
	if err := r.db.QueryRow(ctx, incrementStoryCountQuery, userID, defaults.AgeGroup, settings).Scan(&count); err != nil {
		r.logger.Error("Failed to increment story count", zap.String("userID", userID), zap.Error(err))
		return 0, fmt.Errorf("failed to increment story count for user %s: %w", userID, err)
	}
	return count, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
