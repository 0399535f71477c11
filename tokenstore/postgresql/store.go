// Package postgresql stores account tokens in a PostgreSQL table.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/easeware/snippetd/logger"
	"github.com/easeware/snippetd/tokenstore"
)

// DefaultTable is the token table used when none is configured.
const DefaultTable = "account_tokens"

const (
	colAccountID    = "account_id"
	colAccessToken  = "access_token"
	colRefreshToken = "refresh_token"
	colExpireTime   = "expire_time"
	colUpdatedAt    = "updated_at"
)

// identifiers may be schema-qualified once
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// DB is the subset of *sql.DB the store needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements tokenstore.Store over a single table keyed by account id.
type Store struct {
	db     DB
	table  string
	sb     squirrel.StatementBuilderType
	logger logger.Logger
	now    func() time.Time
}

var _ tokenstore.Store = (*Store)(nil)

// New returns a Store writing to table. An empty table selects DefaultTable.
func New(db DB, table string, log logger.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("tokenstore/postgresql: nil database")
	}
	if table == "" {
		table = DefaultTable
	}
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("tokenstore/postgresql: invalid table name %q", table)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		db:     db,
		table:  table,
		sb:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger: log,
		now:    time.Now,
	}, nil
}

// Table returns the table the store writes to.
func (s *Store) Table() string {
	return s.table
}

// SchemaSQL returns the DDL for the token table.
func (s *Store) SchemaSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s TEXT PRIMARY KEY,
	%s TEXT NOT NULL DEFAULT '',
	%s TEXT NOT NULL DEFAULT '',
	%s TIMESTAMPTZ NULL,
	%s TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table, colAccountID, colAccessToken, colRefreshToken, colExpireTime, colUpdatedAt)
}

// EnsureSchema creates the token table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.SchemaSQL()); err != nil {
		return fmt.Errorf("create token table %s: %w", s.table, err)
	}
	s.logger.Info().Str("table", s.table).Msg("Token table ready")
	return nil
}

func (s *Store) Read(ctx context.Context, accountID string) (tokenstore.Record, error) {
	query, args, err := s.sb.
		Select(colAccessToken, colRefreshToken, colExpireTime, colUpdatedAt).
		From(s.table).
		Where(squirrel.Eq{colAccountID: accountID}).
		ToSql()
	if err != nil {
		return tokenstore.Record{}, fmt.Errorf("build token select: %w", err)
	}

	var (
		rec       tokenstore.Record
		expire    sql.NullTime
		updatedAt sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&rec.AccessToken, &rec.RefreshToken, &expire, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tokenstore.Record{}, tokenstore.ErrNotFound
	}
	if err != nil {
		return tokenstore.Record{}, fmt.Errorf("read token for %s: %w", accountID, err)
	}

	if expire.Valid {
		rec.ExpireTime = expire.Time.UTC()
	}
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time.UTC()
	}
	return rec, nil
}

// Write upserts rec. An empty RefreshToken keeps the stored one.
func (s *Store) Write(ctx context.Context, accountID string, rec tokenstore.Record) error {
	query, args, err := s.sb.
		Insert(s.table).
		Columns(colAccountID, colAccessToken, colRefreshToken, colExpireTime, colUpdatedAt).
		Values(accountID, rec.AccessToken, rec.RefreshToken, nullableTime(rec.ExpireTime), s.now().UTC()).
		Suffix(s.upsertSuffix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build token upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write token for %s: %w", accountID, err)
	}

	s.logger.Debug().
		Str("account", accountID).
		Bool("has_refresh_token", rec.RefreshToken != "").
		Msg("Stored account token")
	return nil
}

func (s *Store) Delete(ctx context.Context, accountID string) error {
	query, args, err := s.sb.
		Delete(s.table).
		Where(squirrel.Eq{colAccountID: accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build token delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete token for %s: %w", accountID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete token for %s: %w", accountID, err)
	}
	if n == 0 {
		return tokenstore.ErrNotFound
	}
	return nil
}

func (s *Store) upsertSuffix() string {
	return fmt.Sprintf("ON CONFLICT (%[2]s) DO UPDATE SET "+
		"%[3]s = EXCLUDED.%[3]s, "+
		"%[4]s = COALESCE(NULLIF(EXCLUDED.%[4]s, ''), %[1]s.%[4]s), "+
		"%[5]s = EXCLUDED.%[5]s, "+
		"%[6]s = EXCLUDED.%[6]s",
		s.table, colAccountID, colAccessToken, colRefreshToken, colExpireTime, colUpdatedAt)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
