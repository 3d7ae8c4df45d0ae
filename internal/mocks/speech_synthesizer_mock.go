package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"reelforge/internal/adapters"
)

// MockSpeechSynthesizer is a mock type for the adapters.SpeechSynthesizer type
type MockSpeechSynthesizer struct {
	mock.Mock
}

// Synthesize provides a mock function with given fields: ctx, text, voice
func (_m *MockSpeechSynthesizer) Synthesize(ctx context.Context, text string, voice string) ([]byte, error) {
	ret := _m.Called(ctx, text, voice)

	var r0 []byte
	if rf, ok := ret.Get(0).(func(context.Context, string, string) []byte); ok {
		r0 = rf(ctx, text, voice)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, text, voice)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// NewMockSpeechSynthesizer creates a new instance of MockSpeechSynthesizer. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockSpeechSynthesizer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSpeechSynthesizer {
	m := &MockSpeechSynthesizer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ adapters.SpeechSynthesizer = (*MockSpeechSynthesizer)(nil)
