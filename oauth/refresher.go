// Package oauth exchanges refresh tokens for fresh Google access tokens.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/easeware/snippetd/config"
	"github.com/easeware/snippetd/logger"
)

const tracerName = "github.com/easeware/snippetd/oauth"

// Token is the outcome of a successful refresh.
type Token struct {
	AccessToken string
	// RefreshToken is the token to store next; the endpoint may rotate it.
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// Refresher exchanges refresh tokens at a token endpoint.
type Refresher struct {
	conf       *oauth2.Config
	httpClient *http.Client
	logger     logger.Logger
	tracer     trace.Tracer
}

// Option customizes a Refresher.
type Option func(*Refresher)

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Refresher) {
		r.httpClient = c
	}
}

// WithTracerProvider sets the provider for refresh spans. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Refresher) {
		r.tracer = tp.Tracer(tracerName)
	}
}

// NewRefresher builds a Refresher for the configured client. Google's endpoint is
// used unless cfg.Token.URL overrides it.
func NewRefresher(cfg *config.OAuthConfig, log logger.Logger, opts ...Option) (*Refresher, error) {
	if cfg == nil || !config.IsOAuthConfigured(cfg) {
		return nil, config.NewNotConfiguredError("oauth", "oauth.client.id")
	}

	endpoint := google.Endpoint
	if cfg.Token.URL != "" {
		endpoint = oauth2.Endpoint{
			AuthURL:   google.Endpoint.AuthURL,
			TokenURL:  cfg.Token.URL,
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}
	if log == nil {
		log = logger.Nop()
	}

	r := &Refresher{
		conf: &oauth2.Config{
			ClientID:     cfg.Client.ID,
			ClientSecret: cfg.Client.Secret,
			Endpoint:     endpoint,
			Scopes:       cfg.Scopes,
		},
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// TokenURL returns the endpoint refreshes are sent to.
func (r *Refresher) TokenURL() string {
	return r.conf.Endpoint.TokenURL
}

// Refresh exchanges refreshToken for a new access token. Failures are *AuthError.
// An empty refreshToken fails without contacting the endpoint.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, &AuthError{Err: ErrNoRefreshToken}
	}

	ctx, span := r.tracer.Start(ctx, "oauth.refresh",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("oauth.token_url", r.conf.Endpoint.TokenURL)))
	defer span.End()

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	start := time.Now()
	tok, err := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		authErr := toAuthError(err)
		span.RecordError(authErr)
		span.SetStatus(codes.Error, authErr.Error())
		r.logger.WithContext(ctx).Warn().
			Err(err).
			Str("oauth_error", authErr.Code).
			Int("status", authErr.StatusCode).
			Bool("revoked", authErr.Revoked()).
			Dur("elapsed", time.Since(start)).
			Msg("Token refresh failed")
		return Token{}, authErr
	}

	r.logger.WithContext(ctx).Debug().
		Dur("elapsed", time.Since(start)).
		Str("expiry", tok.Expiry.UTC().Format(time.RFC3339)).
		Bool("rotated", tok.RefreshToken != refreshToken).
		Msg("Token refreshed")

	return Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}, nil
}

func toAuthError(err error) *AuthError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		ae := &AuthError{Code: re.ErrorCode, Description: re.ErrorDescription, Err: err}
		if re.Response != nil {
			ae.StatusCode = re.Response.StatusCode
		}
		return ae
	}
	return &AuthError{Err: err}
}
