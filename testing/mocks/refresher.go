package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/easeware/snippetd/oauth"
)

// MockRefresher is a testify mock of a token refresher such as *oauth.Refresher.
type MockRefresher struct {
	mock.Mock
}

// Refresh records the call and returns the configured token or error.
func (m *MockRefresher) Refresh(ctx context.Context, refreshToken string) (oauth.Token, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(oauth.Token), args.Error(1)
}

// ExpectRefresh makes Refresh(refreshToken) return tok.
func (m *MockRefresher) ExpectRefresh(refreshToken string, tok oauth.Token) *mock.Call {
	return m.On("Refresh", mock.Anything, refreshToken).Return(tok, nil)
}

// ExpectRevoked makes Refresh(refreshToken) fail with an invalid_grant error.
func (m *MockRefresher) ExpectRevoked(refreshToken string) *mock.Call {
	return m.On("Refresh", mock.Anything, refreshToken).
		Return(oauth.Token{}, &oauth.AuthError{StatusCode: 400, Code: "invalid_grant"})
}
