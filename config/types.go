package config

import (
	"time"

	"github.com/easeware/snippetd/observability"
)

// Config is the complete snippetd configuration.
type Config struct {
	App           AppConfig            `koanf:"app" json:"app" yaml:"app"`
	Log           LogConfig            `koanf:"log" json:"log" yaml:"log"`
	Executor      ExecutorConfig       `koanf:"executor" json:"executor" yaml:"executor"`
	OAuth         OAuthConfig          `koanf:"oauth" json:"oauth" yaml:"oauth"`
	Sheets        SheetsConfig         `koanf:"sheets" json:"sheets" yaml:"sheets"`
	Database      DatabaseConfig       `koanf:"database" json:"database" yaml:"database"`
	Observability observability.Config `koanf:"observability" json:"observability" yaml:"observability"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string `koanf:"name" json:"name" yaml:"name" validate:"required"`
	Version string `koanf:"version" json:"version" yaml:"version" validate:"required"`
	Env     string `koanf:"env" json:"env" yaml:"env" validate:"oneof=development staging production"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// ExecutorConfig is the retry policy of the outbound request executor.
//
//	executor:
//	  maxattempts: 6
//	  backoff: {base: 1s, max: 0s, legacyxor: false}
//	  jitter: {min: 0.001, max: 1.0, unit: 1s}
//	  attempt: {timeout: 5s}
//	  rate: {limit: 0, burst: 1}
type ExecutorConfig struct {
	MaxAttempts int           `koanf:"maxattempts" json:"maxattempts" yaml:"maxattempts" validate:"gte=1,lte=20"`
	Backoff     BackoffConfig `koanf:"backoff" json:"backoff" yaml:"backoff"`
	Jitter      JitterConfig  `koanf:"jitter" json:"jitter" yaml:"jitter"`
	Attempt     AttemptConfig `koanf:"attempt" json:"attempt" yaml:"attempt"`
	Rate        RateConfig    `koanf:"rate" json:"rate" yaml:"rate"`
}

// BackoffConfig controls the exponential part of the retry delay.
type BackoffConfig struct {
	Base time.Duration `koanf:"base" json:"base" yaml:"base" validate:"gte=0"`
	// Max caps the exponential part; 0 leaves it uncapped.
	Max       time.Duration `koanf:"max" json:"max" yaml:"max" validate:"gte=0"`
	LegacyXOR bool          `koanf:"legacyxor" json:"legacyxor" yaml:"legacyxor"`
}

// JitterConfig is the random delay added on top of the backoff, as fractions of Unit.
type JitterConfig struct {
	Min  float64       `koanf:"min" json:"min" yaml:"min" validate:"gte=0"`
	Max  float64       `koanf:"max" json:"max" yaml:"max" validate:"gtefield=Min"`
	Unit time.Duration `koanf:"unit" json:"unit" yaml:"unit" validate:"gt=0"`
}

// AttemptConfig bounds a single attempt.
type AttemptConfig struct {
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" validate:"gt=0"`
}

// RateConfig throttles outbound attempts. Limit 0 disables the limiter.
type RateConfig struct {
	Limit float64 `koanf:"limit" json:"limit" yaml:"limit" validate:"gte=0"`
	Burst int     `koanf:"burst" json:"burst" yaml:"burst" validate:"gte=1"`
}

// OAuthConfig holds the Google OAuth2 client used to refresh access tokens.
type OAuthConfig struct {
	Client OAuthClientConfig `koanf:"client" json:"client" yaml:"client"`
	Token  OAuthTokenConfig  `koanf:"token" json:"token" yaml:"token"`
	Scopes []string          `koanf:"scopes" json:"scopes" yaml:"scopes"`
}

// OAuthClientConfig identifies the OAuth2 client.
type OAuthClientConfig struct {
	ID     string `koanf:"id" json:"id" yaml:"id"`
	Secret string `koanf:"secret" json:"-" yaml:"secret"`
}

// OAuthTokenConfig configures the token endpoint and expiry handling.
type OAuthTokenConfig struct {
	// URL overrides the Google token endpoint; empty uses Google's.
	URL string `koanf:"url" json:"url" yaml:"url" validate:"omitempty,url"`
	// Skew refreshes tokens this long before they expire.
	Skew time.Duration `koanf:"skew" json:"skew" yaml:"skew" validate:"gte=0"`
}

// SheetsConfig holds the spreadsheet API endpoints.
type SheetsConfig struct {
	BaseURL  string `koanf:"baseurl" json:"baseurl" yaml:"baseurl" validate:"required,url"`
	DriveURL string `koanf:"driveurl" json:"driveurl" yaml:"driveurl" validate:"required,url"`
}

// DatabaseConfig holds the PostgreSQL token store connection.
type DatabaseConfig struct {
	Host     string `koanf:"host" json:"host" yaml:"host"`
	Port     int    `koanf:"port" json:"port" yaml:"port" validate:"omitempty,gte=1,lte=65535"`
	Database string `koanf:"database" json:"database" yaml:"database"`
	Username string `koanf:"username" json:"username" yaml:"username"`
	Password string `koanf:"password" json:"-" yaml:"password"`
	SSLMode  string `koanf:"sslmode" json:"sslmode" yaml:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`

	ConnectionString string `koanf:"connectionstring" json:"-" yaml:"connectionstring"`

	Pool   PoolConfig   `koanf:"pool" json:"pool" yaml:"pool"`
	Query  QueryConfig  `koanf:"query" json:"query" yaml:"query"`
	Tokens TokensConfig `koanf:"tokens" json:"tokens" yaml:"tokens"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	Max      PoolMaxConfig  `koanf:"max" json:"max" yaml:"max"`
	Idle     PoolIdleConfig `koanf:"idle" json:"idle" yaml:"idle"`
	Lifetime LifetimeConfig `koanf:"lifetime" json:"lifetime" yaml:"lifetime"`
}

// PoolMaxConfig holds maximum connections settings.
type PoolMaxConfig struct {
	Connections int32 `koanf:"connections" json:"connections" yaml:"connections" validate:"gte=0"`
}

// PoolIdleConfig holds idle connection settings.
type PoolIdleConfig struct {
	Connections int32         `koanf:"connections" json:"connections" yaml:"connections" validate:"gte=0"`
	Time        time.Duration `koanf:"time" json:"time" yaml:"time" validate:"gte=0"`
}

// LifetimeConfig holds connection recycling settings.
type LifetimeConfig struct {
	Max time.Duration `koanf:"max" json:"max" yaml:"max" validate:"gte=0"`
}

// QueryConfig controls query tracking.
type QueryConfig struct {
	Slow SlowQueryConfig `koanf:"slow" json:"slow" yaml:"slow"`
	Log  QueryLogConfig  `koanf:"log" json:"log" yaml:"log"`
}

// SlowQueryConfig sets the duration above which a query is logged as slow.
type SlowQueryConfig struct {
	Threshold time.Duration `koanf:"threshold" json:"threshold" yaml:"threshold" validate:"gte=0"`
}

// QueryLogConfig bounds the logged query text.
type QueryLogConfig struct {
	MaxLength int `koanf:"maxlength" json:"maxlength" yaml:"maxlength" validate:"gte=0"`
}

// TokensConfig names the token table.
type TokensConfig struct {
	Table string `koanf:"table" json:"table" yaml:"table" validate:"required"`
}
