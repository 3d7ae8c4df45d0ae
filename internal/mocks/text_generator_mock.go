package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"reelforge/internal/adapters"
)

// MockTextGenerator is a mock type for the adapters.TextGenerator type
type MockTextGenerator struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, systemPrompt, prompt
func (_m *MockTextGenerator) Generate(ctx context.Context, systemPrompt string, prompt string) (string, error) {
	ret := _m.Called(ctx, systemPrompt, prompt)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string, string) string); ok {
		r0 = rf(ctx, systemPrompt, prompt)
	} else {
		r0 = ret.Get(0).(string)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, systemPrompt, prompt)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// NewMockTextGenerator creates a new instance of MockTextGenerator. It also registers a testing
// interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockTextGenerator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTextGenerator {
	m := &MockTextGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ adapters.TextGenerator = (*MockTextGenerator)(nil)
