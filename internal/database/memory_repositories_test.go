package database_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bedtime-server/internal/database"
	"bedtime-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPreferencesRepository(t *testing.T) {
	repo := database.NewMemoryPreferencesRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrPreferencesNotFound)

	prefs := models.DefaultUserPreferences("u1")
	prefs.PreferredThemes = []string{"space"}
	require.NoError(t, repo.Upsert(ctx, prefs))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"space"}, got.PreferredThemes)

	// возвращается копия
	got.PreferredThemes[0] = "ocean"
	again, _ := repo.Get(ctx, "u1")
	assert.Equal(t, "space", again.PreferredThemes[0])
}

func TestMemoryPreferencesRepository_IncrementStoryCount(t *testing.T) {
	repo := database.NewMemoryPreferencesRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.IncrementStoryCount(ctx, "u1")
		}()
	}
	wg.Wait()

	prefs, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, prefs.StoryCount)

	// Upsert не сбрасывает счетчик
	prefs.AgeGroup = "7-9"
	prefs.StoryCount = 0
	require.NoError(t, repo.Upsert(ctx, prefs))
	prefs, _ = repo.Get(ctx, "u1")
	assert.Equal(t, 20, prefs.StoryCount)
	assert.Equal(t, "7-9", prefs.AgeGroup)
}

func TestMemoryStoryHistoryRepository(t *testing.T) {
	repo := database.NewMemoryStoryHistoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(ctx, models.StoryHistoryRecord{
			ID:        fmt.Sprintf("s%d", i),
			UserID:    "u1",
			Title:     fmt.Sprintf("Story %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	// повторное сохранение игнорируется
	require.NoError(t, repo.Save(ctx, models.StoryHistoryRecord{ID: "s0", UserID: "u1", CreatedAt: base}))

	page, err := repo.ListByUser(ctx, "u1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "s4", page[0].ID)
	assert.Equal(t, "s3", page[1].ID)

	page, err = repo.ListByUser(ctx, "u1", 10, 3)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "s1", page[0].ID)

	page, err = repo.ListByUser(ctx, "u1", 10, 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	page, err = repo.ListByUser(ctx, "other", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page)
}
