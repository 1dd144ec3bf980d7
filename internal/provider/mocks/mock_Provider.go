// Package mocks provides test doubles for the provider interface.
package mocks

import (
	"context"

	provider "github.com/sells-group/answer-router/internal/provider"
	mock "github.com/stretchr/testify/mock"
)

// MockProvider is a mock type for the Provider interface.
type MockProvider struct {
	mock.Mock
}

// ID provides a mock function with given fields:
func (_m *MockProvider) ID() string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for ID")
	}

	var r0 string
	if rf, ok := ret.Get(0).(func() string); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(string)
	}

	return r0
}

// Invoke provides a mock function with given fields: ctx, req
func (_m *MockProvider) Invoke(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Invoke")
	}

	var r0 *provider.Completion
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, provider.Request) (*provider.Completion, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, provider.Request) *provider.Completion); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*provider.Completion)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, provider.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockProvider creates a new instance of MockProvider that answers ID()
// with id. It registers a cleanup that asserts expectations.
func NewMockProvider(id string, t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProvider {
	mock := &MockProvider{}
	mock.Test(t)
	mock.On("ID").Return(id).Maybe()

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
