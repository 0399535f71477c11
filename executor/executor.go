package executor

import (
	"context"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/easeware/snippetd/executor/internal/tracking"
	"github.com/easeware/snippetd/logger"
	"github.com/easeware/snippetd/trace"
)

const tracerName = "snippetd/executor"

// Result is the outcome of one logical call.
type Result struct {
	StatusCode int
	Body       []byte
	Header     nethttp.Header
	Attempts   int
	Elapsed    time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Executor runs descriptors with retry and backoff. It is safe for concurrent use as
// long as every call gets its own Descriptor.
type Executor struct {
	transport Transport
	policy    RetryPolicy
	logger    logger.Logger
	limiter   *rate.Limiter
	uniform   func() float64
	sleep     Sleeper
	observer  Observer
	tracer    oteltrace.Tracer
	callCount int64
}

// Builder provides a fluent interface for configuring an Executor
type Builder struct {
	exec *Executor
}

// NewBuilder creates an executor builder with the reference retry policy and a
// net/http transport.
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{exec: &Executor{
		transport: NewHTTPTransport(nil),
		policy:    DefaultRetryPolicy(),
		logger:    log,
		uniform:   cryptoUniform,
		sleep:     sleepContext,
		tracer:    otel.Tracer(tracerName),
	}}
}

// New creates an executor with the reference retry policy
func New(log logger.Logger) *Executor {
	return NewBuilder(log).Build()
}

// WithPolicy sets the retry policy used by Execute
func (b *Builder) WithPolicy(p RetryPolicy) *Builder {
	b.exec.policy = p
	return b
}

// WithTransport replaces the transport, mostly for tests
func (b *Builder) WithTransport(t Transport) *Builder {
	if t != nil {
		b.exec.transport = t
	}
	return b
}

// WithHTTPClient sends attempts through client
func (b *Builder) WithHTTPClient(client *nethttp.Client) *Builder {
	b.exec.transport = NewHTTPTransport(client)
	return b
}

// WithRateLimiter makes every attempt wait for a token from limiter
func (b *Builder) WithRateLimiter(limiter *rate.Limiter) *Builder {
	b.exec.limiter = limiter
	return b
}

// WithUniformSource replaces the [0, 1) sampler used for jitter
func (b *Builder) WithUniformSource(fn func() float64) *Builder {
	if fn != nil {
		b.exec.uniform = fn
	}
	return b
}

// WithSleeper replaces the backoff sleep
func (b *Builder) WithSleeper(fn Sleeper) *Builder {
	if fn != nil {
		b.exec.sleep = fn
	}
	return b
}

// WithObserver registers a callback invoked after every attempt
func (b *Builder) WithObserver(fn Observer) *Builder {
	b.exec.observer = fn
	return b
}

// WithTracerProvider uses tp instead of the global tracer provider
func (b *Builder) WithTracerProvider(tp oteltrace.TracerProvider) *Builder {
	if tp != nil {
		b.exec.tracer = tp.Tracer(tracerName)
	}
	return b
}

// Build returns the configured executor
func (b *Builder) Build() *Executor {
	e := *b.exec
	if e.logger == nil {
		e.logger = logger.Nop()
	}
	return &e
}

// Policy returns the executor's default retry policy
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// Execute runs d with the executor's policy. See ExecuteWithPolicy.
func (e *Executor) Execute(ctx context.Context, d *Descriptor) (*Result, error) {
	return e.ExecuteWithPolicy(ctx, d, e.policy)
}

// attemptScratch is the private per-call copy of a descriptor. The loop only ever
// reads from it, so the caller's descriptor is touched once, by the final reset.
type attemptScratch struct {
	method  string
	url     string
	headers Headers
	body    []byte
}

func newScratch(d *Descriptor) *attemptScratch {
	s := &attemptScratch{
		method:  d.Method,
		url:     d.ResolvedURL(),
		headers: BuildHeaders(d),
	}
	if bodyAllowed(d.Method) && len(d.Body) > 0 {
		s.body = append([]byte(nil), d.Body...)
	}
	return s
}

func (s *attemptScratch) request() *OutgoingRequest {
	// Each attempt gets its own header list so a transport cannot alter the next one.
	return &OutgoingRequest{Method: s.method, URL: s.url, Headers: s.headers.Clone(), Body: s.body}
}

// ExecuteWithPolicy sends d until a response with status <= 407 arrives or
// policy.MaxAttempts attempts were made.
//
// The returned Result carries the last response and the attempt count. HTTP statuses
// never produce an error. If the final attempt got no response the Result (with
// Attempts set) is returned together with an exhausted error wrapping the transport
// failure. d is reset before returning, whatever the outcome.
func (e *Executor) ExecuteWithPolicy(ctx context.Context, d *Descriptor, policy RetryPolicy) (*Result, error) {
	if err := validateDescriptor(d); err != nil {
		if d != nil {
			d.Reset()
		}
		return nil, err
	}
	defer d.Reset()

	policy = policy.withDefaults()
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	ctx, traceID := trace.EnsureContext(ctx)
	scratch := newScratch(d)
	callCount := atomic.AddInt64(&e.callCount, 1)
	log := e.logger.WithFields(map[string]any{"trace_id": traceID, "call": callCount})

	ctx, span := e.tracer.Start(ctx, "executor.execute", oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String("http.request.method", scratch.method),
			attribute.String("url.full", scratch.url),
			attribute.Int("executor.max_attempts", policy.MaxAttempts),
		))
	defer span.End()

	start := time.Now()
	state := StatePending
	attempt := 0
	var (
		lastResp  *RawResponse
		lastErr   error
		nextDelay time.Duration
	)

	for !state.Terminal() && attempt < policy.MaxAttempts {
		if attempt > 0 {
			tracking.RecordRetry(ctx, scratch.method)
			log.Debug().Int("attempt", attempt).Dur("delay", nextDelay).Msg("Backing off before retry")
			if err := e.sleep(ctx, nextDelay); err != nil {
				return e.abort(ctx, span, log, scratch, attempt, start, err)
			}
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return e.abort(ctx, span, log, scratch, attempt, start, err)
			}
		}

		attempt++
		state = StateSent
		attemptStart := time.Now()
		e.logAttempt(log, scratch, attempt)

		lastResp, lastErr = e.send(ctx, scratch, policy.AttemptTimeout)
		if lastErr != nil && ctx.Err() != nil {
			return e.abort(ctx, span, log, scratch, attempt, start, ctx.Err())
		}

		state = advance(classify(lastResp, lastErr), attempt, policy.MaxAttempts)
		nextDelay = 0
		if state == StateRetryableFailure {
			nextDelay = policy.Backoff(attempt, e.uniform())
		}
		status := 0
		if lastResp != nil && lastErr == nil {
			status = lastResp.StatusCode
		}
		elapsed := time.Since(attemptStart)
		logger.IncrementOutboundCounter(ctx)
		logger.AddOutboundElapsed(ctx, elapsed.Nanoseconds())
		tracking.RecordAttempt(ctx, scratch.method, state.String(), status)
		span.AddEvent("attempt", oteltrace.WithAttributes(
			attribute.Int("executor.attempt", attempt),
			attribute.String("executor.state", state.String()),
			attribute.Int("http.response.status_code", status),
		))
		e.logOutcome(log, attempt, state, status, lastErr, elapsed)
		e.notify(AttemptEvent{
			Attempt:    attempt,
			State:      state,
			StatusCode: status,
			Err:        lastErr,
			Elapsed:    elapsed,
			NextDelay:  nextDelay,
		})
	}

	result := &Result{Attempts: attempt, Elapsed: time.Since(start)}
	span.SetAttributes(attribute.Int("executor.attempts", attempt))

	if lastErr != nil {
		var err error
		if IsErrorType(lastErr, ValidationError) {
			err = lastErr
		} else {
			err = NewExhaustedError(attempt, lastErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		tracking.RecordExecution(ctx, scratch.method, 0, attempt, result.Elapsed, string(errorTypeOf(err)))
		log.Error().Err(err).Int("attempts", attempt).Msg("Outbound request failed")
		return result, err
	}

	result.StatusCode = lastResp.StatusCode
	result.Body = lastResp.Body
	result.Header = lastResp.Header
	span.SetAttributes(attribute.Int("http.response.status_code", result.StatusCode))
	tracking.RecordExecution(ctx, scratch.method, result.StatusCode, attempt, result.Elapsed, "")

	log.Info().
		Str("direction", "inbound").
		Int("status", result.StatusCode).
		Int("attempts", attempt).
		Dur("elapsed", result.Elapsed).
		Msg("Outbound request completed")
	return result, nil
}

// send performs one attempt bounded by timeout.
func (e *Executor) send(ctx context.Context, s *attemptScratch, timeout time.Duration) (*RawResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.transport.RoundTrip(attemptCtx, s.request())
	if err != nil {
		if isTimeout(err) && !IsErrorType(err, TimeoutError) {
			return nil, NewTimeoutError("attempt timed out", timeout, err)
		}
		if !IsErrorType(err, NetworkError) && !IsErrorType(err, TimeoutError) && !IsErrorType(err, ValidationError) {
			return nil, NewNetworkError("transport failure", err)
		}
		return nil, err
	}
	if resp == nil {
		return nil, NewNetworkError("transport returned no response", nil)
	}
	return resp, nil
}

// abort ends the loop because ctx is done (or the limiter gave up).
func (e *Executor) abort(ctx context.Context, span oteltrace.Span, log logger.Logger, s *attemptScratch, attempt int, start time.Time, cause error) (*Result, error) {
	err := NewCanceledError(attempt, cause)
	result := &Result{Attempts: attempt, Elapsed: time.Since(start)}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	tracking.RecordExecution(ctx, s.method, 0, attempt, result.Elapsed, string(CanceledError))
	log.Warn().Err(cause).Int("attempts", attempt).Msg("Outbound request canceled")
	e.notify(AttemptEvent{Attempt: attempt, State: StateTerminalFailure, Err: err})
	return result, err
}

func (e *Executor) notify(ev AttemptEvent) {
	if e.observer != nil {
		e.observer(ev)
	}
}

func (e *Executor) logAttempt(log logger.Logger, s *attemptScratch, attempt int) {
	ev := log.Debug().
		Str("direction", "outbound").
		Str("method", s.method).
		Str("url", s.url).
		Int("attempt", attempt).
		Interface("headers", s.headers.fields())
	if len(s.body) > 0 {
		ev = ev.Int("body_bytes", len(s.body))
	}
	ev.Msg("Sending outbound request")
}

func (e *Executor) logOutcome(log logger.Logger, attempt int, state State, status int, err error, elapsed time.Duration) {
	switch state {
	case StateSucceeded:
		return
	case StateRetryableFailure:
		ev := log.Warn().Int("attempt", attempt).Str("state", state.String()).Dur("elapsed", elapsed)
		if err != nil {
			ev = ev.Err(err)
		} else {
			ev = ev.Int("status", status)
		}
		ev.Msg("Outbound attempt failed, retrying")
	case StateTerminalFailure:
		ev := log.Warn().Int("attempt", attempt).Str("state", state.String())
		if err != nil {
			ev = ev.Err(err)
		} else {
			ev = ev.Int("status", status)
		}
		ev.Msg("Outbound attempt failed, giving up")
	}
}

func errorTypeOf(err error) ErrorType {
	for _, t := range []ErrorType{ValidationError, CanceledError, ExhaustedError, TimeoutError, NetworkError} {
		if IsErrorType(err, t) {
			return t
		}
	}
	return ""
}

// sleepContext blocks the calling goroutine for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
