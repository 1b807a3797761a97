package mocks

import (
	"context"

	"bedtime-server/internal/interfaces"
	"bedtime-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockPreferencesRepository is a mock type for the PreferencesRepository type
type MockPreferencesRepository struct {
	mock.Mock
}

// Get provides a mock function with given fields: ctx, userID
func (_m *MockPreferencesRepository) Get(ctx context.Context, userID string) (*models.UserPreferences, error) {
	ret := _m.Called(ctx, userID)

	var r0 *models.UserPreferences
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.UserPreferences)
	}
	return r0, ret.Error(1)
}

// Upsert provides a mock function with given fields: ctx, prefs
func (_m *MockPreferencesRepository) Upsert(ctx context.Context, prefs *models.UserPreferences) error {
	ret := _m.Called(ctx, prefs)
	return ret.Error(0)
}

// IncrementStoryCount provides a mock function with given fields: ctx, userID
func (_m *MockPreferencesRepository) IncrementStoryCount(ctx context.Context, userID string) (int, error) {
	ret := _m.Called(ctx, userID)
	return ret.Int(0), ret.Error(1)
}

// NewMockPreferencesRepository creates a new instance of MockPreferencesRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockPreferencesRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPreferencesRepository {
	m := &MockPreferencesRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockStoryHistoryRepository is a mock type for the StoryHistoryRepository type
type MockStoryHistoryRepository struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, record
func (_m *MockStoryHistoryRepository) Save(ctx context.Context, record models.StoryHistoryRecord) error {
	ret := _m.Called(ctx, record)
	return ret.Error(0)
}

// ListByUser provides a mock function with given fields: ctx, userID, limit, offset
func (_m *MockStoryHistoryRepository) ListByUser(ctx context.Context, userID string, limit int, offset int) ([]models.StoryHistoryRecord, error) {
	ret := _m.Called(ctx, userID, limit, offset)

	var r0 []models.StoryHistoryRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.StoryHistoryRecord)
	}
	return r0, ret.Error(1)
}

// NewMockStoryHistoryRepository creates a new instance of MockStoryHistoryRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockStoryHistoryRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryHistoryRepository {
	m := &MockStoryHistoryRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockStoryEventPublisher is a mock type for the StoryEventPublisher type
type MockStoryEventPublisher struct {
	mock.Mock
}

// PublishStoryGenerated provides a mock function with given fields: ctx, event
func (_m *MockStoryEventPublisher) PublishStoryGenerated(ctx context.Context, event models.StoryGeneratedEvent) error {
	ret := _m.Called(ctx, event)
	return ret.Error(0)
}

// NewMockStoryEventPublisher creates a new instance of MockStoryEventPublisher. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockStoryEventPublisher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryEventPublisher {
	m := &MockStoryEventPublisher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var (
	_ interfaces.PreferencesRepository  = (*MockPreferencesRepository)(nil)
	_ interfaces.StoryHistoryRepository = (*MockStoryHistoryRepository)(nil)
	_ interfaces.StoryEventPublisher    = (*MockStoryEventPublisher)(nil)
)
