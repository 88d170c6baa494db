// Package mocks provides testify mocks for the domain interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
)

// MockDriver is a mock implementation of interfaces.Driver
type MockDriver struct {
	mock.Mock
}

// NewMockDriver creates a MockDriver for kind and registers expectation
// assertions on test cleanup.
func NewMockDriver(t interface {
	mock.TestingT
	Cleanup(func())
}, kind domain.BackendKind) *MockDriver {
	m := &MockDriver{}
	m.Mock.Test(t)
	m.On("Kind").Return(kind).Maybe()
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockDriver) Kind() domain.BackendKind {
	args := m.Called()
	return args.Get(0).(domain.BackendKind)
}

func (m *MockDriver) Connect(ctx context.Context, params domain.DialParameters, pool interfaces.PoolOptions) (interfaces.Handle, error) {
	args := m.Called(ctx, params, pool)
	var h interfaces.Handle
	if v := args.Get(0); v != nil {
		h = v.(interfaces.Handle)
	}
	return h, args.Error(1)
}

// MockHandle is a mock implementation of interfaces.Handle
type MockHandle struct {
	mock.Mock
}

// NewMockHandle creates a MockHandle and registers expectation assertions on
// test cleanup.
func NewMockHandle(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockHandle {
	m := &MockHandle{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockHandle) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockHandle) Execute(ctx context.Context, statement string) (*domain.RawResult, error) {
	args := m.Called(ctx, statement)
	var res *domain.RawResult
	if v := args.Get(0); v != nil {
		res = v.(*domain.RawResult)
	}
	return res, args.Error(1)
}

func (m *MockHandle) Describe(ctx context.Context) (domain.TableList, error) {
	args := m.Called(ctx)
	var tables domain.TableList
	if v := args.Get(0); v != nil {
		tables = v.(domain.TableList)
	}
	return tables, args.Error(1)
}

func (m *MockHandle) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockProfileStore is a mock implementation of interfaces.ProfileStore
type MockProfileStore struct {
	mock.Mock
}

// NewMockProfileStore creates a MockProfileStore and registers expectation
// assertions on test cleanup.
func NewMockProfileStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProfileStore {
	m := &MockProfileStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockProfileStore) Load(ctx context.Context) ([]domain.ProfileSummary, error) {
	args := m.Called(ctx)
	var profiles []domain.ProfileSummary
	if v := args.Get(0); v != nil {
		profiles = v.([]domain.ProfileSummary)
	}
	return profiles, args.Error(1)
}

func (m *MockProfileStore) Save(ctx context.Context, profiles []domain.ProfileSummary) error {
	args := m.Called(ctx, profiles)
	return args.Error(0)
}
