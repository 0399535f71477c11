package postgresql

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/easeware/snippetd/config"
	"github.com/easeware/snippetd/logger"
	obtest "github.com/easeware/snippetd/observability/testing"
)

const selectToken = "SELECT access_token FROM account_tokens WHERE account_id = $1"

func TestTrackedDBQueryRowRecordsSpanAndMetrics(t *testing.T) {
	mp := obtest.InstallMeterProvider(t, resetMeterForTesting)
	tp := obtest.NewTestTraceProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT access_token").WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"access_token"}).AddRow("tok"))

	tracked := NewTrackedDB(db, nil, logger.Nop(), WithTracerProvider(tp))
	var token string
	require.NoError(t, tracked.QueryRowContext(context.Background(), selectToken, "acct-1").Scan(&token))
	assert.Equal(t, "tok", token)
	require.NoError(t, mock.ExpectationsWereMet())

	span := obtest.FindSpan(t, tp.Exporter.GetSpans(), "db.select")
	obtest.AssertSpanAttribute(t, span, "db.system", "postgresql")
	obtest.AssertSpanAttribute(t, span, "db.operation.name", "select")
	obtest.AssertSpanAttribute(t, span, "db.query.text", selectToken)

	rm := mp.Collect(t)
	assert.Equal(t, int64(1), obtest.CounterValue(t, rm, metricDBCalls,
		attribute.String(attrDBOperation, "select"),
		attribute.String(attrDBTable, "account_tokens")))
	assert.Equal(t, uint64(1), obtest.HistogramCount(t, rm, metricDBDuration))
}

func TestTrackedDBExecErrorIsRecorded(t *testing.T) {
	mp := obtest.InstallMeterProvider(t, resetMeterForTesting)
	tp := obtest.NewTestTraceProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("DELETE FROM account_tokens").WillReturnError(errors.New("connection reset"))

	var buf bytes.Buffer
	tracked := NewTrackedDB(db, nil, logger.NewWithWriter(&buf, "debug", false, nil), WithTracerProvider(tp))
	_, err = tracked.ExecContext(context.Background(), "DELETE FROM account_tokens WHERE account_id = $1", "acct-1")
	require.EqualError(t, err, "connection reset")

	obtest.AssertSpanError(t, obtest.FindSpan(t, tp.Exporter.GetSpans(), "db.delete"))
	assert.Equal(t, int64(1), obtest.CounterValue(t, mp.Collect(t), metricDBCalls,
		attribute.String(attrErrorType, "db_error")))
	assert.Contains(t, buf.String(), "Database operation error")
	assert.Contains(t, buf.String(), `"vendor":"postgresql"`)
}

func TestTrackedDBLogsSlowQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("INSERT INTO account_tokens").WillDelayFor(5 * time.Millisecond).
		WillReturnResult(sqlmock.NewResult(0, 1))

	var buf bytes.Buffer
	cfg := &config.DatabaseConfig{Query: config.QueryConfig{
		Slow: config.SlowQueryConfig{Threshold: time.Millisecond},
		Log:  config.QueryLogConfig{MaxLength: 20},
	}}
	tracked := NewTrackedDB(db, cfg, logger.NewWithWriter(&buf, "debug", false, nil))
	_, err = tracked.ExecContext(context.Background(), "INSERT INTO account_tokens (account_id) VALUES ($1)", "acct-1")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Slow database operation detected")
	assert.Contains(t, out, `"query":"INSERT INTO accou..."`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestNewTrackedDBDefaults(t *testing.T) {
	tracked := NewTrackedDB(nil, &config.DatabaseConfig{}, logger.Nop())
	assert.Equal(t, defaultSlowQueryThreshold, tracked.slowThreshold)
	assert.Equal(t, defaultMaxQueryLength, tracked.maxQueryLength)
}

func TestExtractDBOperation(t *testing.T) {
	tests := map[string]string{
		"SELECT 1":                             "select",
		"  insert into t values (1)":           "insert",
		"CREATE TABLE IF NOT EXISTS t (a int)": "create",
		"VACUUM":                               defaultOperation,
		"":                                     defaultOperation,
	}
	for query, want := range tests {
		assert.Equal(t, want, extractDBOperation(query), query)
	}
}

func TestExtractTableName(t *testing.T) {
	tests := map[string]string{
		selectToken:                                         "account_tokens",
		"INSERT INTO tokens.accounts (a) VALUES ($1)":       "tokens.accounts",
		"UPDATE \"Tokens\" SET a = 1":                       "tokens",
		"CREATE TABLE IF NOT EXISTS account_tokens (a int)": "account_tokens",
		"CREATE TABLE t2(a int)":                            "t2",
		"SELECT 1":                                          "",
	}
	for query, want := range tests {
		assert.Equal(t, want, extractTableName(query), query)
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcdefg...", TruncateString(strings.Repeat("abcdefghij", 3), 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "héé...", TruncateString("hééééééé", 6))
	assert.Equal(t, "unchanged", TruncateString("unchanged", 0))
}

func TestRegisterPoolMetrics(t *testing.T) {
	mp := obtest.InstallMeterProvider(t, resetMeterForTesting)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(7)

	unregister := RegisterPoolMetrics(&Connection{db: db, logger: logger.Nop()})
	defer unregister()

	rm := mp.Collect(t)
	total := obtest.FindMetric(rm, metricPoolTotal)
	require.NotNil(t, total)
	obtest.AssertMetricExists(t, rm, metricPoolIdle)
	obtest.AssertMetricExists(t, rm, metricPoolActive)
}

func TestRecordDBMetricsWhileResetting(t *testing.T) {
	mp := obtest.InstallMeterProvider(t, resetMeterForTesting)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				recordDBMetrics(ctx, "select", "account_tokens", time.Millisecond, nil)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				resetMeterForTesting()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), obtest.CounterValue(t, mp.Collect(t), metricDBCalls))
}
