package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"reelforge/internal/ledger"
	"reelforge/internal/models"
)

// MockLedgerStore is a mock type for the ledger.Store type
type MockLedgerStore struct {
	mock.Mock
}

// OpenAccount provides a mock function with given fields: ctx, userID
func (_m *MockLedgerStore) OpenAccount(ctx context.Context, userID uuid.UUID) error {
	ret := _m.Called(ctx, userID)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, uuid.UUID) error); ok {
		r0 = rf(ctx, userID)
	} else {
		r0 = ret.Error(0)
	}
	return r0
}

// Balance provides a mock function with given fields: ctx, userID
func (_m *MockLedgerStore) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	ret := _m.Called(ctx, userID)

	var r0 int64
	if rf, ok := ret.Get(0).(func(context.Context, uuid.UUID) int64); ok {
		r0 = rf(ctx, userID)
	} else {
		r0 = ret.Get(0).(int64)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, uuid.UUID) error); ok {
		r1 = rf(ctx, userID)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// Apply provides a mock function with given fields: ctx, entry
func (_m *MockLedgerStore) Apply(ctx context.Context, entry models.CreditTransaction) (ledger.Outcome, int64, error) {
	ret := _m.Called(ctx, entry)

	var r0 ledger.Outcome
	if rf, ok := ret.Get(0).(func(context.Context, models.CreditTransaction) ledger.Outcome); ok {
		r0 = rf(ctx, entry)
	} else {
		r0 = ret.Get(0).(ledger.Outcome)
	}

	var r1 int64
	if rf, ok := ret.Get(1).(func(context.Context, models.CreditTransaction) int64); ok {
		r1 = rf(ctx, entry)
	} else {
		r1 = ret.Get(1).(int64)
	}

	var r2 error
	if rf, ok := ret.Get(2).(func(context.Context, models.CreditTransaction) error); ok {
		r2 = rf(ctx, entry)
	} else {
		r2 = ret.Error(2)
	}
	return r0, r1, r2
}

// History provides a mock function with given fields: ctx, userID, limit, offset
func (_m *MockLedgerStore) History(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]models.CreditTransaction, error) {
	ret := _m.Called(ctx, userID, limit, offset)

	var r0 []models.CreditTransaction
	if rf, ok := ret.Get(0).(func(context.Context, uuid.UUID, int, int) []models.CreditTransaction); ok {
		r0 = rf(ctx, userID, limit, offset)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.CreditTransaction)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, uuid.UUID, int, int) error); ok {
		r1 = rf(ctx, userID, limit, offset)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// NewMockLedgerStore creates a new instance of MockLedgerStore. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockLedgerStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockLedgerStore {
	m := &MockLedgerStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ ledger.Store = (*MockLedgerStore)(nil)
