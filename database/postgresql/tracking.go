package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/easeware/snippetd/config"
	"github.com/easeware/snippetd/logger"
)

const (
	dbTracerName = "snippetd/database"
	dbMeterName  = "snippetd/database"
	dbSystem     = "postgresql"

	defaultOperation  = "query"
	maxDBQueryAttrLen = 2000

	defaultSlowQueryThreshold = 200 * time.Millisecond
	defaultMaxQueryLength     = 1000

	metricDBCalls    = "db.client.calls"
	metricDBDuration = "db.client.operation.duration"
	metricPoolActive = "db.connection.pool.active"
	metricPoolIdle   = "db.connection.pool.idle"
	metricPoolTotal  = "db.connection.pool.total"

	attrDBSystem    = "db.system"
	attrDBOperation = "db.operation.name"
	attrDBTable     = "db.sql.table"
	attrErrorType   = "error.type"
)

// dbInstruments is the set bound to one MeterProvider. Fields are nil when
// creation failed.
type dbInstruments struct {
	meter    metric.Meter
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

var (
	meterMu sync.Mutex
	bound   *dbInstruments
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize database metric %s: %v\n", metricName, err)
	}
}

func newDBInstruments() *dbInstruments {
	inst := &dbInstruments{meter: otel.Meter(dbMeterName)}

	calls, err := inst.meter.Int64Counter(
		metricDBCalls,
		metric.WithDescription("Number of database statements executed"),
		metric.WithUnit("{call}"),
	)
	logMetricError(metricDBCalls, err)
	if err == nil {
		inst.calls = calls
	}

	duration, err := inst.meter.Float64Histogram(
		metricDBDuration,
		metric.WithDescription("Duration of database statements"),
		metric.WithUnit("s"),
	)
	logMetricError(metricDBDuration, err)
	if err == nil {
		inst.duration = duration
	}
	return inst
}

func currentDBInstruments() *dbInstruments {
	meterMu.Lock()
	defer meterMu.Unlock()

	if bound == nil {
		bound = newDBInstruments()
	}
	return bound
}

func resetMeterForTesting() {
	meterMu.Lock()
	defer meterMu.Unlock()

	bound = nil
}

// Queryer is the subset of *sql.DB the tracked wrapper delegates to.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TrackedDB records a span, metrics and a log line for every statement.
type TrackedDB struct {
	db             Queryer
	logger         logger.Logger
	tracer         trace.Tracer
	slowThreshold  time.Duration
	maxQueryLength int
}

// TrackOption customizes a TrackedDB.
type TrackOption func(*TrackedDB)

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) TrackOption {
	return func(t *TrackedDB) {
		if tp != nil {
			t.tracer = tp.Tracer(dbTracerName)
		}
	}
}

// NewTrackedDB wraps db. Non-positive query settings in cfg fall back to defaults.
func NewTrackedDB(db Queryer, cfg *config.DatabaseConfig, log logger.Logger, opts ...TrackOption) *TrackedDB {
	t := &TrackedDB{
		db:             db,
		logger:         log,
		tracer:         otel.Tracer(dbTracerName),
		slowThreshold:  defaultSlowQueryThreshold,
		maxQueryLength: defaultMaxQueryLength,
	}
	if cfg != nil {
		if cfg.Query.Slow.Threshold > 0 {
			t.slowThreshold = cfg.Query.Slow.Threshold
		}
		if cfg.Query.Log.MaxLength > 0 {
			t.maxQueryLength = cfg.Query.Log.MaxLength
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ExecContext executes a statement and tracks it.
func (t *TrackedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := t.db.ExecContext(ctx, query, args...)
	t.track(ctx, query, start, err)
	return res, err
}

// QueryRowContext runs a single-row query and tracks it. The row's deferred
// error, if any, is what gets recorded.
func (t *TrackedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	t.track(ctx, query, start, row.Err())
	return row
}

func (t *TrackedDB) track(ctx context.Context, query string, start time.Time, err error) {
	elapsed := time.Since(start)
	operation := extractDBOperation(query)
	table := extractTableName(query)

	t.recordSpan(ctx, query, operation, start, err)
	recordDBMetrics(ctx, operation, table, elapsed, err)

	event := t.logger.WithContext(ctx).WithFields(map[string]any{
		"vendor":      dbSystem,
		"duration_ms": elapsed.Milliseconds(),
		"query":       TruncateString(query, t.maxQueryLength),
	})
	switch {
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		event.Error().Err(err).Msg("Database operation error")
	case elapsed > t.slowThreshold:
		event.Warn().Msgf("Slow database operation detected (%s)", elapsed)
	default:
		event.Debug().Msg("Database operation executed")
	}
}

func (t *TrackedDB) recordSpan(ctx context.Context, query, operation string, start time.Time, err error) {
	_, span := t.tracer.Start(ctx, "db."+operation,
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String(attrDBSystem, dbSystem),
		semconv.DBQueryText(TruncateString(query, maxDBQueryAttrLen)),
	}
	if operation != defaultOperation {
		attrs = append(attrs, semconv.DBOperationName(operation))
	}
	span.SetAttributes(attrs...)

	// sql.ErrNoRows is an empty result, not a failure.
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func recordDBMetrics(ctx context.Context, operation, table string, elapsed time.Duration, err error) {
	inst := currentDBInstruments()

	attrs := []attribute.KeyValue{
		attribute.String(attrDBSystem, dbSystem),
		attribute.String(attrDBOperation, operation),
	}
	if table != "" {
		attrs = append(attrs, attribute.String(attrDBTable, table))
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		attrs = append(attrs, attribute.String(attrErrorType, "db_error"))
	}
	opt := metric.WithAttributes(attrs...)

	if inst.calls != nil {
		inst.calls.Add(ctx, 1, opt)
	}
	if inst.duration != nil {
		inst.duration.Record(ctx, elapsed.Seconds(), opt)
	}
}

// extractDBOperation returns the lowercased leading SQL keyword.
func extractDBOperation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return defaultOperation
	}
	switch op := strings.ToLower(fields[0]); op {
	case "select", "insert", "update", "delete", "create", "drop", "alter", "with":
		return op
	default:
		return defaultOperation
	}
}

// extractTableName returns the table following FROM, INTO, UPDATE or TABLE.
func extractTableName(query string) string {
	fields := strings.Fields(query)
	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToUpper(fields[i]) {
		case "FROM", "INTO", "UPDATE":
			return cleanTableName(fields[i+1])
		case "TABLE":
			next := i + 1
			// CREATE TABLE IF NOT EXISTS name
			if strings.EqualFold(fields[next], "IF") && next+3 < len(fields) {
				next += 3
			}
			return cleanTableName(fields[next])
		}
	}
	return ""
}

func cleanTableName(name string) string {
	if i := strings.IndexAny(name, "(,;"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(strings.Trim(name, `"`))
}

// TruncateString shortens value to maxLen runes, ending in "..." when there
// is room for it. A non-positive maxLen leaves value untouched.
func TruncateString(value string, maxLen int) string {
	if maxLen <= 0 {
		return value
	}
	r := []rune(value)
	if len(r) <= maxLen {
		return value
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// RegisterPoolMetrics reports pool usage gauges for conn until the returned
// func is called.
func RegisterPoolMetrics(conn *Connection) func() {
	noop := func() {}
	if conn == nil {
		return noop
	}
	meter := currentDBInstruments().meter

	active, err := meter.Int64ObservableGauge(metricPoolActive, metric.WithDescription("Number of active database connections"))
	logMetricError(metricPoolActive, err)
	idle, err := meter.Int64ObservableGauge(metricPoolIdle, metric.WithDescription("Number of idle database connections"))
	logMetricError(metricPoolIdle, err)
	total, err := meter.Int64ObservableGauge(metricPoolTotal, metric.WithDescription("Maximum number of database connections configured"))
	logMetricError(metricPoolTotal, err)
	if active == nil || idle == nil || total == nil {
		return noop
	}

	opt := metric.WithAttributes(attribute.String(attrDBSystem, dbSystem))
	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := conn.db.Stats()
		o.ObserveInt64(active, int64(stats.InUse), opt)
		o.ObserveInt64(idle, int64(stats.Idle), opt)
		o.ObserveInt64(total, int64(stats.MaxOpenConnections), opt)
		return nil
	}, active, idle, total)
	if err != nil {
		logMetricError("pool_metrics_callback", err)
		return noop
	}

	return func() {
		if err := registration.Unregister(); err != nil {
			logMetricError("pool_metrics_unregister", err)
		}
	}
}
