package database

import (
	"context"
	"fmt"

	"bedtime-server/internal/interfaces"
	"bedtime-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"go.uber.org/zap"
)

const (
	insertStoryHistoryQuery = `
        INSERT INTO story_history (id, user_id, title, theme, child_name, word_count, reading_time, fallback, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO NOTHING`
	listStoryHistoryQuery = `
        SELECT id, user_id, title, theme, child_name, word_count, reading_time, fallback, created_at
        FROM story_history
        WHERE user_id = $1
        ORDER BY created_at DESC, id
        LIMIT $2 OFFSET $3`
)

var _ interfaces.StoryHistoryRepository = (*pgStoryHistoryRepository)(nil)

type pgStoryHistoryRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgStoryHistoryRepository создает репозиторий истории генераций на PostgreSQL.
func NewPgStoryHistoryRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.StoryHistoryRepository {
	return &pgStoryHistoryRepository{
		db:     db,
		logger: logger.Named("PgStoryHistoryRepo"),
	}
}

func (r *pgStoryHistoryRepository) Save(ctx context.Context, rec models.StoryHistoryRecord) error {
	_, err := r.db.Exec(ctx, insertStoryHistoryQuery,
		rec.ID, rec.UserID, rec.Title, rec.Theme, rec.ChildName,
		rec.WordCount, rec.ReadingTime, rec.Fallback, rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save story history record",
			zap.String("storyID", rec.ID),
			zap.String("userID", rec.UserID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to save story history %s: %w", rec.ID, err)
	}
	return nil
}

func (r *pgStoryHistoryRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.StoryHistoryRecord, error) {
	records := []models.StoryHistoryRecord{}
	if err := pgxscan.Select(ctx, r.db, &records, listStoryHistoryQuery, userID, limit, offset); err != nil {
		r.logger.Error("Failed to list story history", zap.String("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list story history for user %s: %w", userID, err)
	}
	return records, nil
}
