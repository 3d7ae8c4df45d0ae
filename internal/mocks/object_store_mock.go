package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"reelforge/internal/adapters"
)

// MockObjectStore is a mock type for the adapters.ObjectStore type
type MockObjectStore struct {
	mock.Mock
}

// Put provides a mock function with given fields: ctx, key, data, contentType
func (_m *MockObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ret := _m.Called(ctx, key, data, contentType)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string, []byte, string) string); ok {
		r0 = rf(ctx, key, data, contentType)
	} else {
		r0 = ret.Get(0).(string)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, []byte, string) error); ok {
		r1 = rf(ctx, key, data, contentType)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// Get provides a mock function with given fields: ctx, key
func (_m *MockObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	ret := _m.Called(ctx, key)

	var r0 []byte
	if rf, ok := ret.Get(0).(func(context.Context, string) []byte); ok {
		r0 = rf(ctx, key)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, key)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// NewMockObjectStore creates a new instance of MockObjectStore. It also registers a testing
// interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockObjectStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockObjectStore {
	m := &MockObjectStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ adapters.ObjectStore = (*MockObjectStore)(nil)
