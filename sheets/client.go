// Package sheets calls the Google Sheets and Drive REST APIs on behalf of an account,
// keeping the account's stored OAuth token fresh.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/easeware/snippetd/config"
	"github.com/easeware/snippetd/executor"
	"github.com/easeware/snippetd/logger"
	"github.com/easeware/snippetd/oauth"
	"github.com/easeware/snippetd/tokenstore"
)

const (
	meterName = "github.com/easeware/snippetd/sheets"

	// refreshTimeout bounds a shared refresh, which outlives any single caller's context.
	refreshTimeout = 30 * time.Second
)

// Executor runs one logical request with retries.
type Executor interface {
	Execute(ctx context.Context, d *executor.Descriptor) (*executor.Result, error)
}

// TokenRefresher exchanges a refresh token for a new access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (oauth.Token, error)
}

// BuildFunc builds a fresh descriptor authorised with accessToken. It is called once
// per execution; descriptors are never reused.
type BuildFunc func(accessToken string) *executor.Descriptor

// Config holds the API endpoints and token expiry skew.
type Config struct {
	BaseURL  string
	DriveURL string
	Skew     time.Duration
}

// ConfigFrom extracts the client configuration from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		BaseURL:  cfg.Sheets.BaseURL,
		DriveURL: cfg.Sheets.DriveURL,
		Skew:     cfg.OAuth.Token.Skew,
	}
}

// Client performs token-aware API calls.
type Client struct {
	exec      Executor
	store     tokenstore.Store
	refresher TokenRefresher
	cfg       Config
	logger    logger.Logger
	group     singleflight.Group
	now       func() time.Time
	refreshes metric.Int64Counter
}

// NewClient composes an executor, a token store and a refresher.
func NewClient(exec Executor, store tokenstore.Store, refresher TokenRefresher, cfg Config, log logger.Logger) (*Client, error) {
	if exec == nil || store == nil || refresher == nil {
		return nil, errors.New("sheets: executor, store and refresher are required")
	}
	if log == nil {
		log = logger.Nop()
	}

	refreshes, err := otel.Meter(meterName).Int64Counter("snippetd.token.refreshes",
		metric.WithDescription("Access token refreshes by outcome"),
		metric.WithUnit("{refresh}"))
	if err != nil {
		return nil, fmt.Errorf("sheets: create refresh counter: %w", err)
	}

	return &Client{
		exec:      exec,
		store:     store,
		refresher: refresher,
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
		refreshes: refreshes,
	}, nil
}

// Do executes the descriptor produced by build with the account's access token. An
// expired token is refreshed first. A 401 response triggers one refresh and one more
// execution with a newly built descriptor. Any status is returned as a Result; use
// CheckResult to map it.
func (c *Client) Do(ctx context.Context, accountID string, build BuildFunc) (*executor.Result, error) {
	token, err := c.accessToken(ctx, accountID)
	if err != nil {
		return nil, err
	}

	res, err := c.exec.Execute(ctx, build(token))
	if err != nil {
		return res, err
	}
	if res.StatusCode != http.StatusUnauthorized {
		return res, nil
	}

	c.logger.WithContext(ctx).Info().
		Str("account", accountID).
		Msg("Access token rejected, refreshing")

	token, err = c.refresh(ctx, accountID, token)
	if err != nil {
		return res, err
	}
	return c.exec.Execute(ctx, build(token))
}

// accessToken returns a usable access token, refreshing it when it has expired.
func (c *Client) accessToken(ctx context.Context, accountID string) (string, error) {
	rec, err := c.store.Read(ctx, accountID)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNoToken, accountID)
	}
	if err != nil {
		return "", fmt.Errorf("sheets: read token: %w", err)
	}
	if !rec.Expired(c.now(), c.cfg.Skew) {
		return rec.AccessToken, nil
	}
	return c.refresh(ctx, accountID, rec.AccessToken)
}

// refresh replaces stale with a fresh token. Concurrent refreshes of one account
// share a single token endpoint call.
func (c *Client) refresh(ctx context.Context, accountID, stale string) (string, error) {
	v, err, shared := c.group.Do(accountID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.doRefresh(fctx, accountID, stale)
	})
	if shared {
		c.logger.WithContext(ctx).Debug().Str("account", accountID).Msg("Joined in-flight token refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) doRefresh(ctx context.Context, accountID, stale string) (string, error) {
	rec, err := c.store.Read(ctx, accountID)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNoToken, accountID)
	}
	if err != nil {
		return "", fmt.Errorf("sheets: read token: %w", err)
	}

	// Someone else already stored a newer token.
	if rec.AccessToken != stale && !rec.Expired(c.now(), c.cfg.Skew) {
		c.recordRefresh(ctx, "reused")
		return rec.AccessToken, nil
	}

	tok, err := c.refresher.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		if oauth.IsRevoked(err) {
			c.recordRefresh(ctx, "revoked")
			c.forget(ctx, accountID)
			return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		c.recordRefresh(ctx, "failed")
		return "", fmt.Errorf("sheets: refresh token: %w", err)
	}

	next := tokenstore.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpireTime:   tok.Expiry,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = rec.RefreshToken
	}
	if err := c.store.Write(ctx, accountID, next); err != nil {
		c.recordRefresh(ctx, "failed")
		return "", fmt.Errorf("sheets: store refreshed token: %w", err)
	}

	c.recordRefresh(ctx, "refreshed")
	c.logger.WithContext(ctx).Info().
		Str("account", accountID).
		Str("expiry", tok.Expiry.UTC().Format(time.RFC3339)).
		Msg("Access token refreshed")
	return tok.AccessToken, nil
}

// forget drops a token whose grant was revoked.
func (c *Client) forget(ctx context.Context, accountID string) {
	err := c.store.Delete(ctx, accountID)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		c.logger.WithContext(ctx).Error().Err(err).Str("account", accountID).Msg("Failed to delete revoked token")
		return
	}
	c.logger.WithContext(ctx).Warn().Str("account", accountID).Msg("Grant revoked, token deleted")
}

func (c *Client) recordRefresh(ctx context.Context, outcome string) {
	c.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
