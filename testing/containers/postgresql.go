//go:build integration

// Package containers starts disposable backing services for integration tests.
package containers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgreSQLContainerConfig holds configuration for the PostgreSQL test container.
type PostgreSQLContainerConfig struct {
	ImageTag       string
	Username       string
	Password       string
	Database       string
	StartupTimeout time.Duration
}

// DefaultPostgreSQLConfig returns a 17-alpine image with snippetd credentials and a
// one minute startup budget.
func DefaultPostgreSQLConfig() *PostgreSQLContainerConfig {
	return &PostgreSQLContainerConfig{
		ImageTag:       "17-alpine",
		Username:       "snippetd",
		Password:       "snippetd",
		Database:       "snippetd_test",
		StartupTimeout: 60 * time.Second,
	}
}

// PostgreSQLContainer wraps the testcontainers PostgreSQL module.
type PostgreSQLContainer struct {
	container *postgres.PostgresContainer
	connStr   string
}

// StartPostgreSQLContainer starts PostgreSQL using cfg, or the defaults when cfg is nil.
// The test is skipped when Docker is unavailable.
func StartPostgreSQLContainer(ctx context.Context, t *testing.T, cfg *PostgreSQLContainerConfig) (*PostgreSQLContainer, error) {
	t.Helper()

	if cfg == nil {
		cfg = DefaultPostgreSQLConfig()
	}

	if err := dockerUnavailable(ctx); err != nil {
		t.Skipf("skipping integration test: %v", err)
		return nil, nil
	}

	pgContainer, err := postgres.Run(ctx,
		fmt.Sprintf("postgres:%s", cfg.ImageTag),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			// Postgres restarts once after initdb.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(cfg.StartupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
	}

	t.Logf("PostgreSQL container started at %s", maskConnectionString(connStr))

	return &PostgreSQLContainer{container: pgContainer, connStr: connStr}, nil
}

// MustStartPostgreSQLContainer is StartPostgreSQLContainer that fails the test on error.
func MustStartPostgreSQLContainer(ctx context.Context, t *testing.T, cfg *PostgreSQLContainerConfig) *PostgreSQLContainer {
	t.Helper()

	container, err := StartPostgreSQLContainer(ctx, t, cfg)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	return container
}

// ConnectionString returns the PostgreSQL connection string
func (p *PostgreSQLContainer) ConnectionString() string {
	return p.connStr
}

// Terminate stops and removes the container.
func (p *PostgreSQLContainer) Terminate(ctx context.Context) error {
	if p.container == nil {
		return nil
	}
	return p.container.Terminate(ctx)
}

// Host returns the container host
func (p *PostgreSQLContainer) Host(ctx context.Context) (string, error) {
	if p.container == nil {
		return "", errors.New("container not initialized")
	}
	return p.container.Host(ctx)
}

// MappedPort returns the host port mapped to 5432.
func (p *PostgreSQLContainer) MappedPort(ctx context.Context) (int, error) {
	if p.container == nil {
		return 0, errors.New("container not initialized")
	}
	mappedPort, err := p.container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return 0, err
	}
	return mappedPort.Int(), nil
}

// WithCleanup terminates the container when the test finishes.
func (p *PostgreSQLContainer) WithCleanup(t *testing.T) *PostgreSQLContainer {
	t.Helper()
	t.Cleanup(func() {
		if err := p.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate PostgreSQL container: %v", err)
		}
	})
	return p
}

// maskConnectionString hides the password of a postgres:// URL.
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return "postgres://****:****@<host>:<port>/<database>"
	}
	return u.Redacted()
}
