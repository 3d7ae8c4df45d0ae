package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"reelforge/internal/adapters"
)

// MockComposer is a mock type for the adapters.Composer type
type MockComposer struct {
	mock.Mock
}

// Compose provides a mock function with given fields: ctx, req
func (_m *MockComposer) Compose(ctx context.Context, req adapters.ComposeRequest) ([]byte, float64, error) {
	ret := _m.Called(ctx, req)

	var r0 []byte
	if rf, ok := ret.Get(0).(func(context.Context, adapters.ComposeRequest) []byte); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}

	var r1 float64
	if rf, ok := ret.Get(1).(func(context.Context, adapters.ComposeRequest) float64); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Get(1).(float64)
	}

	var r2 error
	if rf, ok := ret.Get(2).(func(context.Context, adapters.ComposeRequest) error); ok {
		r2 = rf(ctx, req)
	} else {
		r2 = ret.Error(2)
	}
	return r0, r1, r2
}

// NewMockComposer creates a new instance of MockComposer. It also registers a testing interface
// on the mock and a cleanup function to assert the mocks expectations.
func NewMockComposer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockComposer {
	m := &MockComposer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ adapters.Composer = (*MockComposer)(nil)
