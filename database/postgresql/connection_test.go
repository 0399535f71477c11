package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeware/snippetd/config"
	"github.com/easeware/snippetd/logger"
)

func stubDriver(t *testing.T, db *sql.DB, pingErr error) {
	t.Helper()
	origOpen, origPing := openPostgresDB, pingPostgresDB
	t.Cleanup(func() {
		openPostgresDB, pingPostgresDB = origOpen, origPing
	})

	openPostgresDB = func(*pgx.ConnConfig) *sql.DB { return db }
	pingPostgresDB = func(context.Context, *sql.DB) error { return pingErr }
}

func TestQuoteDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "''"},
		{"simple", "simple"},
		{"db.host-1_a", "db.host-1_a"},
		{"with space", "'with space'"},
		{"it's", `'it\'s'`},
		{`back\slash`, `'back\\slash'`},
		{"p@ss:word", "'p@ss:word'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, quoteDSN(tt.in), tt.in)
	}
}

func TestBuildDSN(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host: "localhost", Port: 5432, Username: "snip", Password: "s3cr et", Database: "tokens", SSLMode: "disable",
	}
	assert.Equal(t, "host=localhost port=5432 user=snip password='s3cr et' dbname=tokens sslmode=disable", buildDSN(cfg))

	cfg.ConnectionString = "postgres://u:p@h:1/d"
	assert.Equal(t, "postgres://u:p@h:1/d", buildDSN(cfg))
}

func TestNewConnectionConfiguresPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	stubDriver(t, db, nil)

	cfg := &config.DatabaseConfig{
		Host: "localhost", Port: 5432, Username: "snip", Password: "pw", Database: "tokens",
		Pool: config.PoolConfig{
			Max:      config.PoolMaxConfig{Connections: 7},
			Idle:     config.PoolIdleConfig{Connections: 2, Time: time.Minute},
			Lifetime: config.LifetimeConfig{Max: time.Hour},
		},
	}
	conn, err := NewConnection(cfg, logger.Nop())
	require.NoError(t, err)
	assert.Same(t, db, conn.DB())
	assert.Equal(t, 7, conn.Stats()["max_open_connections"])

	mock.ExpectClose()
	require.NoError(t, conn.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnectionPingFailureClosesPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	stubDriver(t, db, errors.New("connection refused"))
	mock.ExpectClose()

	conn, err := NewConnection(&config.DatabaseConfig{Host: "localhost", Port: 5432, Database: "d", Username: "u"}, logger.Nop())
	assert.Nil(t, conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping PostgreSQL database")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnectionInvalidDSN(t *testing.T) {
	_, err := NewConnection(&config.DatabaseConfig{ConnectionString: "postgres://%zz"}, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse PostgreSQL config")
}

func TestNewConnectionNilConfig(t *testing.T) {
	_, err := NewConnection(nil, logger.Nop())
	assert.True(t, config.IsNotConfigured(err))
}

func TestConnectionHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	c := &Connection{db: db, logger: logger.Nop()}

	mock.ExpectPing()
	require.NoError(t, c.Health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.EqualError(t, c.Health(context.Background()), "down")

	stats := c.Stats()
	assert.Contains(t, stats, "open_connections")
	assert.Contains(t, stats, "wait_duration")

	mock.ExpectClose()
	require.NoError(t, c.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}
