package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// fieldValidator returns the shared validator. Field names are reported by their
// koanf tag so errors point at config paths rather than Go identifiers.
func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks cfg against its struct tags and cross-field rules.
// The first problem is returned as a *ConfigError.
func Validate(cfg *Config) error {
	if err := fieldValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return toConfigError(verrs[0])
		}
		return err
	}

	if IsDatabaseConfigured(&cfg.Database) && cfg.Database.ConnectionString == "" {
		if cfg.Database.Database == "" {
			return NewMissingFieldError("database.database")
		}
		if cfg.Database.Username == "" {
			return NewMissingFieldError("database.username")
		}
	}

	if cfg.OAuth.Client.Secret != "" && cfg.OAuth.Client.ID == "" {
		return NewMissingFieldError("oauth.client.id")
	}
	return nil
}

// IsDatabaseConfigured reports whether the token store database was configured.
func IsDatabaseConfigured(cfg *DatabaseConfig) bool {
	return cfg.ConnectionString != "" || cfg.Host != ""
}

// IsOAuthConfigured reports whether token refresh is possible.
func IsOAuthConfigured(cfg *OAuthConfig) bool {
	return cfg.Client.ID != "" && cfg.Client.Secret != ""
}

// toConfigError maps a validator failure onto the config path it belongs to.
// The namespace starts with the root struct name, which is dropped.
func toConfigError(fe validator.FieldError) *ConfigError {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch fe.Tag() {
	case "required":
		return NewMissingFieldError(field)
	case "oneof":
		return NewInvalidFieldError(field, "invalid value "+valueString(fe), strings.Fields(fe.Param()))
	case "url":
		return NewInvalidFieldError(field, "must be a valid url", nil)
	case "gtefield":
		return NewInvalidFieldError(field, "must be greater than or equal to "+strings.ToLower(fe.Param()), nil)
	default:
		return NewInvalidFieldError(field, "failed "+fe.Tag()+"="+fe.Param()+" check, got "+valueString(fe), nil)
	}
}

func valueString(fe validator.FieldError) string {
	if s, ok := fe.Value().(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprintf("%v", fe.Value())
}
