package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/easeware/snippetd/tokenstore"
)

// MockTokenStore is a testify mock of tokenstore.Store.
type MockTokenStore struct {
	mock.Mock
}

// Read implements tokenstore.Store
func (m *MockTokenStore) Read(ctx context.Context, accountID string) (tokenstore.Record, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(tokenstore.Record), args.Error(1)
}

// Write implements tokenstore.Store
func (m *MockTokenStore) Write(ctx context.Context, accountID string, rec tokenstore.Record) error {
	return m.Called(ctx, accountID, rec).Error(0)
}

// Delete implements tokenstore.Store
func (m *MockTokenStore) Delete(ctx context.Context, accountID string) error {
	return m.Called(ctx, accountID).Error(0)
}

// ExpectRecord makes Read return rec for accountID.
func (m *MockTokenStore) ExpectRecord(accountID string, rec tokenstore.Record) *mock.Call {
	return m.On("Read", mock.Anything, accountID).Return(rec, nil)
}

// ExpectMissing makes Read report that accountID has no token.
func (m *MockTokenStore) ExpectMissing(accountID string) *mock.Call {
	return m.On("Read", mock.Anything, accountID).Return(tokenstore.Record{}, tokenstore.ErrNotFound)
}
