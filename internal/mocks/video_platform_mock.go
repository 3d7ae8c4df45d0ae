package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"reelforge/internal/adapters"
	"reelforge/internal/models"
)

// MockVideoPlatform is a mock type for the adapters.VideoPlatform type
type MockVideoPlatform struct {
	mock.Mock
}

// Upload provides a mock function with given fields: ctx, account, video, meta, scheduledAt
func (_m *MockVideoPlatform) Upload(ctx context.Context, account models.PlatformAccount, video []byte, meta adapters.UploadMetadata, scheduledAt *time.Time) (adapters.UploadResult, error) {
	ret := _m.Called(ctx, account, video, meta, scheduledAt)

	var r0 adapters.UploadResult
	if rf, ok := ret.Get(0).(func(context.Context, models.PlatformAccount, []byte, adapters.UploadMetadata, *time.Time) adapters.UploadResult); ok {
		r0 = rf(ctx, account, video, meta, scheduledAt)
	} else {
		r0 = ret.Get(0).(adapters.UploadResult)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, models.PlatformAccount, []byte, adapters.UploadMetadata, *time.Time) error); ok {
		r1 = rf(ctx, account, video, meta, scheduledAt)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// NewMockVideoPlatform creates a new instance of MockVideoPlatform. It also registers a testing
// interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockVideoPlatform(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockVideoPlatform {
	m := &MockVideoPlatform{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ adapters.VideoPlatform = (*MockVideoPlatform)(nil)
