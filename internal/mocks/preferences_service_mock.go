package mocks

import (
	"context"

	"bedtime-server/internal/models"
	"bedtime-server/internal/service"

	"github.com/stretchr/testify/mock"
)

// MockPreferencesService is a mock type for the PreferencesService type
type MockPreferencesService struct {
	mock.Mock
}

// GetUserPreferences provides a mock function with given fields: ctx, userID
func (_m *MockPreferencesService) GetUserPreferences(ctx context.Context, userID string) *models.UserPreferences {
	ret := _m.Called(ctx, userID)

	var r0 *models.UserPreferences
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.UserPreferences)
	}
	return r0
}

// UpdateUserPreferences provides a mock function with given fields: ctx, userID, update
func (_m *MockPreferencesService) UpdateUserPreferences(ctx context.Context, userID string, update models.PreferencesUpdate) bool {
	ret := _m.Called(ctx, userID, update)
	return ret.Bool(0)
}

// IncrementStoryCount provides a mock function with given fields: ctx, userID
func (_m *MockPreferencesService) IncrementStoryCount(ctx context.Context, userID string) error {
	ret := _m.Called(ctx, userID)
	return ret.Error(0)
}

// RecordGeneration provides a mock function with given fields: ctx, userID, story
func (_m *MockPreferencesService) RecordGeneration(ctx context.Context, userID string, story *models.Story) error {
	ret := _m.Called(ctx, userID, story)
	return ret.Error(0)
}

// UserMetadata provides a mock function with given fields: ctx, userID
func (_m *MockPreferencesService) UserMetadata(ctx context.Context, userID string) (models.UserMetadata, error) {
	ret := _m.Called(ctx, userID)
	return ret.Get(0).(models.UserMetadata), ret.Error(1)
}

// NewMockPreferencesService creates a new instance of MockPreferencesService. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockPreferencesService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPreferencesService {
	m := &MockPreferencesService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ service.PreferencesService = (*MockPreferencesService)(nil)
