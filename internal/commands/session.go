package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/easeware/snippetd/config"
	pgconn "github.com/easeware/snippetd/database/postgresql"
	"github.com/easeware/snippetd/executor"
	"github.com/easeware/snippetd/logger"
	"github.com/easeware/snippetd/oauth"
	"github.com/easeware/snippetd/observability"
	"github.com/easeware/snippetd/sheets"
	"github.com/easeware/snippetd/tokenstore"
	pgstore "github.com/easeware/snippetd/tokenstore/postgresql"
)

const shutdownTimeout = 5 * time.Second

// tokenBackend is an opened token store plus its lifecycle hooks.
type tokenBackend struct {
	store        tokenstore.Store
	table        string
	ensureSchema func(ctx context.Context) error
	close        func() error
}

// openTokenBackend connects to the configured PostgreSQL token store.
var openTokenBackend = func(cfg *config.Config, log logger.Logger) (*tokenBackend, error) {
	if !config.IsDatabaseConfigured(&cfg.Database) {
		return nil, config.NewNotConfiguredError("token store", "database.host")
	}

	conn, err := pgconn.NewConnection(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	store, err := pgstore.New(conn.Tracked(), cfg.Database.Tokens.Table, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	unregister := pgconn.RegisterPoolMetrics(conn)
	return &tokenBackend{
		store:        store,
		table:        store.Table(),
		ensureSchema: store.EnsureSchema,
		close: func() error {
			unregister()
			return conn.Close()
		},
	}, nil
}

// session is what a command needs once configuration is loaded.
type session struct {
	cfg       *config.Config
	log       logger.Logger
	telemetry observability.Provider
	out       io.Writer
	tokens    *tokenBackend
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func newSession(cmd *cobra.Command, opts *rootOptions) (*session, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	// Logs go to stderr so stdout stays machine readable.
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty, nil)

	telemetry, err := observability.NewProvider(&cfg.Observability, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	return &session{cfg: cfg, log: log, telemetry: telemetry, out: cmd.OutOrStdout()}, nil
}

// openTokens opens the token store once per command.
func (s *session) openTokens() (*tokenBackend, error) {
	if s.tokens != nil {
		return s.tokens, nil
	}
	tokens, err := openTokenBackend(s.cfg, s.log)
	if err != nil {
		return nil, err
	}
	s.tokens = tokens
	return tokens, nil
}

func (s *session) executor() *executor.Executor {
	return executor.NewBuilder(s.log).
		WithPolicy(s.cfg.Executor.RetryPolicy()).
		WithRateLimiter(s.cfg.Executor.RateLimiter()).
		Build()
}

func (s *session) sheetsClient() (*sheets.Client, error) {
	tokens, err := s.openTokens()
	if err != nil {
		return nil, err
	}
	refresher, err := oauth.NewRefresher(&s.cfg.OAuth, s.log)
	if err != nil {
		return nil, err
	}
	return sheets.NewClient(s.executor(), tokens.store, refresher, sheets.ConfigFrom(s.cfg), s.log)
}

func (s *session) close() {
	if s.tokens != nil && s.tokens.close != nil {
		if err := s.tokens.close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close token store")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to flush telemetry")
	}
}

func (s *session) printJSON(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withSession wraps a command body with session setup and teardown.
func withSession(opts *rootOptions, run func(cmd *cobra.Command, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := newSession(cmd, opts)
		if err != nil {
			return err
		}
		defer s.close()
		return run(cmd, s)
	}
}
