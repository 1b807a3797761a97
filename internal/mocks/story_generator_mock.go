package mocks

import (
	"context"

	"bedtime-server/internal/handler"
	"bedtime-server/internal/models"
	"bedtime-server/internal/personalization"

	"github.com/stretchr/testify/mock"
)

// MockStoryGenerator is a mock type for the StoryGenerator type
type MockStoryGenerator struct {
	mock.Mock
}

// GeneratePersonalizedStory provides a mock function with given fields: ctx, req
func (_m *MockStoryGenerator) GeneratePersonalizedStory(ctx context.Context, req personalization.StoryRequest) *models.Story {
	ret := _m.Called(ctx, req)

	var r0 *models.Story
	if rf, ok := ret.Get(0).(func(context.Context, personalization.StoryRequest) *models.Story); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Story)
	}
	return r0
}

// NewMockStoryGenerator creates a new instance of MockStoryGenerator. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockStoryGenerator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryGenerator {
	m := &MockStoryGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ handler.StoryGenerator = (*MockStoryGenerator)(nil)
