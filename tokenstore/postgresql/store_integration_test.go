//go:build integration

package postgresql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeware/snippetd/config"
	pgconn "github.com/easeware/snippetd/database/postgresql"
	"github.com/easeware/snippetd/logger"
	"github.com/easeware/snippetd/testing/containers"
	"github.com/easeware/snippetd/tokenstore"
)

func TestStoreRoundTripIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := containers.MustStartPostgreSQLContainer(ctx, t, nil).WithCleanup(t)
	conn, err := pgconn.NewConnection(&config.DatabaseConfig{ConnectionString: pg.ConnectionString()}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	s, err := New(conn.Tracked(), "", logger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx), "schema creation is repeatable")

	_, err = s.Read(ctx, "acct")
	require.ErrorIs(t, err, tokenstore.ErrNotFound)

	expire := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	require.NoError(t, s.Write(ctx, "acct", tokenstore.Record{AccessToken: "a1", RefreshToken: "r1", ExpireTime: expire}))

	rec, err := s.Read(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "a1", rec.AccessToken)
	assert.Equal(t, "r1", rec.RefreshToken)
	assert.True(t, expire.Equal(rec.ExpireTime))

	require.NoError(t, s.Write(ctx, "acct", tokenstore.Record{AccessToken: "a2", ExpireTime: expire.Add(time.Hour)}))
	rec, err = s.Read(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "a2", rec.AccessToken)
	assert.Equal(t, "r1", rec.RefreshToken, "refresh token survives a write without one")

	require.NoError(t, s.Delete(ctx, "acct"))
	assert.ErrorIs(t, s.Delete(ctx, "acct"), tokenstore.ErrNotFound)
}
