package observability

import (
	"fmt"
	"strings"
	"time"
)

const (
	// EndpointStdout writes telemetry to stdout (local development).
	EndpointStdout = "stdout"

	// ProtocolHTTP specifies OTLP over HTTP/protobuf.
	ProtocolHTTP = "http"

	// ProtocolGRPC specifies OTLP over gRPC.
	ProtocolGRPC = "grpc"

	// EnvironmentDevelopment is the default deployment environment.
	EnvironmentDevelopment = "development"

	defaultServiceName = "snippetd"
)

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

// Config defines the telemetry exporters. It is unmarshaled from the
// "observability" section of the snippetd configuration.
type Config struct {
	Enabled     bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Environment string        `koanf:"environment" json:"environment" yaml:"environment"`
	Service     ServiceConfig `koanf:"service" json:"service" yaml:"service"`
	Trace       TraceConfig   `koanf:"trace" json:"trace" yaml:"trace"`
	Metrics     MetricsConfig `koanf:"metrics" json:"metrics" yaml:"metrics"`
}

// ServiceConfig identifies the service in exported resources.
type ServiceConfig struct {
	Name    string `koanf:"name" json:"name" yaml:"name"`
	Version string `koanf:"version" json:"version" yaml:"version"`
}

// TraceConfig defines span export.
type TraceConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled" yaml:"enabled"`

	// Endpoint is "stdout" or an OTLP endpoint: "http://collector:4318" for http,
	// "collector:4317" for grpc.
	Endpoint string            `koanf:"endpoint" json:"endpoint" yaml:"endpoint"`
	Protocol string            `koanf:"protocol" json:"protocol" yaml:"protocol"`
	Insecure bool              `koanf:"insecure" json:"insecure" yaml:"insecure"`
	Headers  map[string]string `koanf:"headers" json:"headers" yaml:"headers"`

	// SampleRate is the fraction of traces kept. nil means 1.0.
	SampleRate *float64 `koanf:"samplerate" json:"samplerate" yaml:"samplerate"`

	BatchTimeout time.Duration `koanf:"batchtimeout" json:"batchtimeout" yaml:"batchtimeout"`
}

// MetricsConfig defines metric export. Protocol, Insecure and Headers are shared
// with TraceConfig.
type MetricsConfig struct {
	Enabled       bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint      string        `koanf:"endpoint" json:"endpoint" yaml:"endpoint"`
	Interval      time.Duration `koanf:"interval" json:"interval" yaml:"interval"`
	ExportTimeout time.Duration `koanf:"exporttimeout" json:"exporttimeout" yaml:"exporttimeout"`
}

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = defaultServiceName
	}
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}

	if c.Trace.Endpoint == "" {
		c.Trace.Endpoint = EndpointStdout
	}
	if c.Trace.Protocol == "" {
		c.Trace.Protocol = ProtocolHTTP
	}
	if c.Trace.SampleRate == nil {
		c.Trace.SampleRate = Float64Ptr(1.0)
	}
	if c.Trace.BatchTimeout == 0 {
		if c.Environment == EnvironmentDevelopment || c.Trace.Endpoint == EndpointStdout {
			c.Trace.BatchTimeout = 500 * time.Millisecond
		} else {
			c.Trace.BatchTimeout = 5 * time.Second
		}
	}

	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = EndpointStdout
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 10 * time.Second
	}
	if c.Metrics.ExportTimeout == 0 {
		c.Metrics.ExportTimeout = 10 * time.Second
	}
}

// Validate checks a defaulted config. A disabled config is always valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.Service.Name == "" {
		return ErrMissingServiceName
	}
	if c.Trace.SampleRate != nil && (*c.Trace.SampleRate < 0 || *c.Trace.SampleRate > 1) {
		return ErrInvalidSampleRate
	}
	if c.Trace.Protocol != ProtocolHTTP && c.Trace.Protocol != ProtocolGRPC {
		return fmt.Errorf("protocol '%s': %w", c.Trace.Protocol, ErrInvalidProtocol)
	}
	if c.Trace.Enabled {
		if err := validateEndpoint(c.Trace.Endpoint, c.Trace.Protocol); err != nil {
			return fmt.Errorf("trace: %w", err)
		}
	}
	if c.Metrics.Enabled {
		if err := validateEndpoint(c.Metrics.Endpoint, c.Trace.Protocol); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	return nil
}

func validateEndpoint(endpoint, protocol string) error {
	if endpoint == EndpointStdout {
		return nil
	}
	hasScheme := strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
	switch protocol {
	case ProtocolGRPC:
		if hasScheme {
			return fmt.Errorf("grpc endpoint %q must be host:port: %w", endpoint, ErrInvalidEndpointFormat)
		}
	case ProtocolHTTP:
		if !hasScheme {
			return fmt.Errorf("http endpoint %q must include a scheme: %w", endpoint, ErrInvalidEndpointFormat)
		}
	}
	return nil
}
