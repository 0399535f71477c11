package oauth

import (
	"errors"
	"fmt"
)

// ErrNoRefreshToken is returned when a refresh is requested without a refresh token.
var ErrNoRefreshToken = errors.New("oauth: no refresh token")

// codeInvalidGrant is the token endpoint error for a revoked or expired grant.
const codeInvalidGrant = "invalid_grant"

// AuthError reports a failed token refresh.
type AuthError struct {
	// StatusCode is the token endpoint's HTTP status, 0 when no response arrived.
	StatusCode int
	// Code is the OAuth2 error code, e.g. "invalid_grant".
	Code        string
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("oauth: refresh failed: %s (%s)", e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("oauth: refresh failed: %s", e.Code)
	case e.StatusCode != 0:
		return fmt.Sprintf("oauth: refresh failed with status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("oauth: refresh failed: %v", e.Err)
	default:
		return "oauth: refresh failed"
	}
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Revoked reports whether the grant is no longer usable and the stored refresh
// token should be discarded.
func (e *AuthError) Revoked() bool {
	return e.Code == codeInvalidGrant
}

// IsRevoked reports whether err carries a revoked-grant AuthError.
func IsRevoked(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Revoked()
}
