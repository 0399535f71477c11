// Package tokenstore persists OAuth tokens per account.
//
// A Store is read before every outbound spreadsheet call and written after every
// refresh. Implementations must be safe for concurrent use.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Read and Delete when the account has no token record.
var ErrNotFound = errors.New("tokenstore: no token for account")

// Record is the token state of one account.
type Record struct {
	AccessToken  string
	RefreshToken string
	// ExpireTime is when AccessToken stops being valid. Zero means unknown.
	ExpireTime time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the access token must be refreshed before use at now.
// Tokens within skew of their expiry count as expired, as do tokens with an unknown
// expiry or no access token at all.
func (r Record) Expired(now time.Time, skew time.Duration) bool {
	if r.AccessToken == "" || r.ExpireTime.IsZero() {
		return true
	}
	return !now.Add(skew).Before(r.ExpireTime)
}

// CanRefresh reports whether the record carries a refresh token.
func (r Record) CanRefresh() bool {
	return r.RefreshToken != ""
}

// Store reads and writes token records keyed by an opaque account id.
type Store interface {
	Read(ctx context.Context, accountID string) (Record, error)
	// Write replaces the account's record.
	Write(ctx context.Context, accountID string, rec Record) error
	Delete(ctx context.Context, accountID string) error
}
