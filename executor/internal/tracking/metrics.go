// Package tracking records OpenTelemetry metrics for executor calls.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	executorMeterName = "snippetd/executor"

	metricAttempts        = "http.client.attempts"         // Counter of sent attempts
	metricRetries         = "http.client.retries"          // Counter of backoff sleeps
	metricRequestDuration = "http.client.request.duration" // Histogram in seconds per Execute

	attrMethod     = "http.request.method"
	attrStatusCode = "http.response.status_code"
	attrOutcome    = "executor.outcome"
	attrAttempts   = "executor.attempts"
	attrErrorType  = "error.type"
)

// instruments is the set bound to one MeterProvider. Fields are nil when
// creation failed.
type instruments struct {
	attempts metric.Int64Counter
	retries  metric.Int64Counter
	duration metric.Float64Histogram
}

var (
	meterMu sync.Mutex
	bound   *instruments
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize executor metric %s: %v\n", metricName, err)
	}
}

func newInstruments() *instruments {
	meter := otel.Meter(executorMeterName)
	inst := &instruments{}

	attempts, err := meter.Int64Counter(
		metricAttempts,
		metric.WithDescription("Number of outbound attempts sent by the executor"),
		metric.WithUnit("{attempt}"),
	)
	logMetricError(metricAttempts, err)
	if err == nil {
		inst.attempts = attempts
	}

	retries, err := meter.Int64Counter(
		metricRetries,
		metric.WithDescription("Number of retries scheduled after a transient failure"),
		metric.WithUnit("{retry}"),
	)
	logMetricError(metricRetries, err)
	if err == nil {
		inst.retries = retries
	}

	duration, err := meter.Float64Histogram(
		metricRequestDuration,
		metric.WithDescription("Duration of a logical executor call including backoff"),
		metric.WithUnit("s"),
	)
	logMetricError(metricRequestDuration, err)
	if err == nil {
		inst.duration = duration
	}
	return inst
}

// current returns the instruments for the global MeterProvider, creating them on
// first use.
func current() *instruments {
	meterMu.Lock()
	defer meterMu.Unlock()

	if bound == nil {
		bound = newInstruments()
	}
	return bound
}

// RecordAttempt counts one attempt and its classified outcome
// (succeeded, retryable_failure, terminal_failure).
func RecordAttempt(ctx context.Context, method, outcome string, statusCode int) {
	inst := current()
	if inst.attempts == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrOutcome, outcome),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int(attrStatusCode, statusCode))
	}
	inst.attempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRetry counts one scheduled retry.
func RecordRetry(ctx context.Context, method string) {
	inst := current()
	if inst.retries == nil {
		return
	}
	inst.retries.Add(ctx, 1, metric.WithAttributes(attribute.String(attrMethod, method)))
}

// RecordExecution records the duration of one logical call.
// errType is empty when the call returned without error.
func RecordExecution(ctx context.Context, method string, statusCode, attempts int, duration time.Duration, errType string) {
	inst := current()
	if inst.duration == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.Int(attrAttempts, attempts),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int(attrStatusCode, statusCode))
	}
	if errType != "" {
		attrs = append(attrs, attribute.String(attrErrorType, errType))
	}
	inst.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// ResetForTesting drops the cached meter so the next record call binds to the
// current global MeterProvider.
func ResetForTesting() {
	meterMu.Lock()
	defer meterMu.Unlock()

	bound = nil
}
