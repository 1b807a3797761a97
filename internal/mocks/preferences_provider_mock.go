package mocks

import (
	"context"

	"bedtime-server/internal/models"
	"bedtime-server/internal/personalization"

	"github.com/stretchr/testify/mock"
)

// MockPreferencesProvider is a mock type for the PreferencesProvider type
type MockPreferencesProvider struct {
	mock.Mock
}

// GetUserPreferences provides a mock function with given fields: ctx, userID
func (_m *MockPreferencesProvider) GetUserPreferences(ctx context.Context, userID string) *models.UserPreferences {
	ret := _m.Called(ctx, userID)

	var r0 *models.UserPreferences
	if rf, ok := ret.Get(0).(func(context.Context, string) *models.UserPreferences); ok {
		r0 = rf(ctx, userID)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.UserPreferences)
	}
	return r0
}

// RecordGeneration provides a mock function with given fields: ctx, userID, story
func (_m *MockPreferencesProvider) RecordGeneration(ctx context.Context, userID string, story *models.Story) error {
	ret := _m.Called(ctx, userID, story)
	return ret.Error(0)
}

// NewMockPreferencesProvider creates a new instance of MockPreferencesProvider. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockPreferencesProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPreferencesProvider {
	m := &MockPreferencesProvider{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ personalization.PreferencesProvider = (*MockPreferencesProvider)(nil)
