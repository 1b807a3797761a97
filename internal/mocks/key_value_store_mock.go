package mocks

import (
	"context"
	"time"

	"bedtime-server/internal/interfaces"

	"github.com/stretchr/testify/mock"
)

// MockKeyValueStore is a mock type for the KeyValueStore type
type MockKeyValueStore struct {
	mock.Mock
}

// Get provides a mock function with given fields: ctx, key
func (_m *MockKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	ret := _m.Called(ctx, key)
	return ret.String(0), ret.Error(1)
}

// Set provides a mock function with given fields: ctx, key, value, ttl
func (_m *MockKeyValueStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	ret := _m.Called(ctx, key, value, ttl)
	return ret.Error(0)
}

// HGet provides a mock function with given fields: ctx, key, field
func (_m *MockKeyValueStore) HGet(ctx context.Context, key string, field string) (string, error) {
	ret := _m.Called(ctx, key, field)
	return ret.String(0), ret.Error(1)
}

// HSet provides a mock function with given fields: ctx, key, values
func (_m *MockKeyValueStore) HSet(ctx context.Context, key string, values map[string]string) error {
	ret := _m.Called(ctx, key, values)
	return ret.Error(0)
}

// HGetAll provides a mock function with given fields: ctx, key
func (_m *MockKeyValueStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ret := _m.Called(ctx, key)

	var r0 map[string]string
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(map[string]string)
	}
	return r0, ret.Error(1)
}

// NewMockKeyValueStore creates a new instance of MockKeyValueStore. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockKeyValueStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockKeyValueStore {
	m := &MockKeyValueStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.KeyValueStore = (*MockKeyValueStore)(nil)
