package database

import (
	"context"
	"sort"
	"sync"

	"bedtime-server/internal/interfaces"
	"bedtime-server/internal/models"
)

var (
	_ interfaces.PreferencesRepository  = (*MemoryPreferencesRepository)(nil)
	_ interfaces.StoryHistoryRepository = (*MemoryStoryHistoryRepository)(nil)
)

// MemoryPreferencesRepository хранит настройки в памяти процесса.
// Используется, когда DB_HOST не задан. Данные теряются при рестарте.
type MemoryPreferencesRepository struct {
	mu    sync.RWMutex
	prefs map[string]models.UserPreferences
}

func NewMemoryPreferencesRepository() *MemoryPreferencesRepository {
	return &MemoryPreferencesRepository{prefs: make(map[string]models.UserPreferences)}
}

func (r *MemoryPreferencesRepository) Get(_ context.Context, userID string) (*models.UserPreferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prefs[userID]
	if !ok {
		return nil, models.ErrPreferencesNotFound
	}
	out := clonePreferences(p)
	return &out, nil
}

func (r *MemoryPreferencesRepository) Upsert(_ context.Context, prefs *models.UserPreferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := clonePreferences(*prefs)
	if existing, ok := r.prefs[prefs.UserID]; ok {
		p.StoryCount = existing.StoryCount
		p.CreatedAt = existing.CreatedAt
	}
	r.prefs[prefs.UserID] = p
	return nil
}

func (r *MemoryPreferencesRepository) IncrementStoryCount(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prefs[userID]
	if !ok {
		p = *models.DefaultUserPreferences(userID)
	}
	p.StoryCount++
	r.prefs[userID] = p
	return p.StoryCount, nil
}

func clonePreferences(p models.UserPreferences) models.UserPreferences {
	p.PreferredThemes = append([]string{}, p.PreferredThemes...)
	p.LearningInterests = append([]string{}, p.LearningInterests...)
	return p
}

// MemoryStoryHistoryRepository хранит историю генераций в памяти процесса.
type MemoryStoryHistoryRepository struct {
	mu      sync.RWMutex
	records map[string][]models.StoryHistoryRecord
}

func NewMemoryStoryHistoryRepository() *MemoryStoryHistoryRepository {
	return &MemoryStoryHistoryRepository{records: make(map[string][]models.StoryHistoryRecord)}
}

func (r *MemoryStoryHistoryRepository) Save(_ context.Context, rec models.StoryHistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records[rec.UserID] {
		if existing.ID == rec.ID {
			return nil
		}
	}
	r.records[rec.UserID] = append(r.records[rec.UserID], rec)
	return nil
}

// ListByUser возвращает записи от новых к старым.
func (r *MemoryStoryHistoryRepository) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.StoryHistoryRecord, error) {
	r.mu.RLock()
	all := append([]models.StoryHistoryRecord(nil), r.records[userID]...)
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []models.StoryHistoryRecord{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}
