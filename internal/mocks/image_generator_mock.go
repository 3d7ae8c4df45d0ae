package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"reelforge/internal/adapters"
)

// MockImageGenerator is a mock type for the adapters.ImageGenerator type
type MockImageGenerator struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, prompt, size
func (_m *MockImageGenerator) Generate(ctx context.Context, prompt string, size string) ([]byte, error) {
	ret := _m.Called(ctx, prompt, size)

	var r0 []byte
	if rf, ok := ret.Get(0).(func(context.Context, string, string) []byte); ok {
		r0 = rf(ctx, prompt, size)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, prompt, size)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// NewMockImageGenerator creates a new instance of MockImageGenerator. It also registers a testing
// interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockImageGenerator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockImageGenerator {
	m := &MockImageGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ adapters.ImageGenerator = (*MockImageGenerator)(nil)
