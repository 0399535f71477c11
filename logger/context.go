package logger

import (
	"context"
	"sync/atomic"
)

type contextKey string

const (
	// outboundCounterKey tracks outbound HTTP attempts made while serving one request
	outboundCounterKey contextKey = "outbound_attempt_counter"
	// outboundElapsedKey tracks total time spent in outbound HTTP attempts
	outboundElapsedKey contextKey = "outbound_elapsed_nanos"
)

// WithOutboundCounter creates a context that accumulates outbound attempt counts and
// elapsed time. The executor feeds it; request handlers read it when logging a summary.
func WithOutboundCounter(ctx context.Context) context.Context {
	counter := int64(0)
	elapsed := int64(0)
	ctx = context.WithValue(ctx, outboundCounterKey, &counter)
	ctx = context.WithValue(ctx, outboundElapsedKey, &elapsed)
	return ctx
}

// IncrementOutboundCounter increments the outbound attempt counter in the context
func IncrementOutboundCounter(ctx context.Context) {
	if counter, ok := ctx.Value(outboundCounterKey).(*int64); ok && counter != nil {
		atomic.AddInt64(counter, 1)
	}
}

// GetOutboundCounter returns the number of outbound attempts recorded in the context
func GetOutboundCounter(ctx context.Context) int64 {
	if counter, ok := ctx.Value(outboundCounterKey).(*int64); ok && counter != nil {
		return atomic.LoadInt64(counter)
	}
	return 0
}

// AddOutboundElapsed adds elapsed nanoseconds to the outbound elapsed time in the context
func AddOutboundElapsed(ctx context.Context, nanos int64) {
	if elapsed, ok := ctx.Value(outboundElapsedKey).(*int64); ok && elapsed != nil {
		atomic.AddInt64(elapsed, nanos)
	}
}

// GetOutboundElapsed returns the outbound elapsed time in nanoseconds from the context
func GetOutboundElapsed(ctx context.Context) int64 {
	if elapsed, ok := ctx.Value(outboundElapsedKey).(*int64); ok && elapsed != nil {
		return atomic.LoadInt64(elapsed)
	}
	return 0
}
