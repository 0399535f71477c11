package mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeware/snippetd/executor"
	"github.com/easeware/snippetd/logger"
	"github.com/easeware/snippetd/oauth"
	"github.com/easeware/snippetd/tokenstore"
)

var (
	_ executor.Transport = (*MockTransport)(nil)
	_ tokenstore.Store   = (*MockTokenStore)(nil)
)

func TestMockTransportDrivesExecutor(t *testing.T) {
	tr := &MockTransport{}
	tr.ExpectFailure(executor.NewNetworkError("refused", errors.New("dial")))
	tr.ExpectStatus(503, "")
	tr.ExpectStatus(200, "ok")

	exec := executor.NewBuilder(logger.Nop()).
		WithTransport(tr).
		WithSleeper(func(context.Context, time.Duration) error { return nil }).
		Build()

	res, err := exec.Execute(context.Background(), executor.NewDescriptor("GET", "https://api.example/x", "T"))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, 3, res.Attempts)
	tr.AssertExpectations(t)
}

func TestMockTokenStore(t *testing.T) {
	s := &MockTokenStore{}
	s.ExpectRecord("a", tokenstore.Record{AccessToken: "x"})
	s.ExpectMissing("b")

	rec, err := s.Read(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "x", rec.AccessToken)

	_, err = s.Read(context.Background(), "b")
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestMockRefresher(t *testing.T) {
	r := &MockRefresher{}
	r.ExpectRefresh("R1", oauth.Token{AccessToken: "A2"})
	r.ExpectRevoked("R0")

	tok, err := r.Refresh(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, "A2", tok.AccessToken)

	_, err = r.Refresh(context.Background(), "R0")
	assert.True(t, oauth.IsRevoked(err))
}
