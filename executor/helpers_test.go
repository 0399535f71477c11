package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/easeware/snippetd/logger"
)

const (
	testURL   = "https://api.example/x"
	testToken = "T1"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:1: connect: connection refused")

// step scripts one attempt: a status code or a transport error.
type step struct {
	status int
	body   string
	err    error
}

// scriptedTransport replays steps in order and records every request it saw.
// Once the script runs out the last step repeats.
type scriptedTransport struct {
	mu       sync.Mutex
	steps    []step
	requests []*OutgoingRequest
}

func newScriptedTransport(steps ...step) *scriptedTransport {
	return &scriptedTransport{steps: steps}
}

func (s *scriptedTransport) RoundTrip(_ context.Context, req *OutgoingRequest) (*RawResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *req
	copied.Headers = req.Headers.Clone()
	copied.Body = append([]byte(nil), req.Body...)
	s.requests = append(s.requests, &copied)

	idx := len(s.requests) - 1
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	st := s.steps[idx]
	if st.err != nil {
		return nil, st.err
	}
	return &RawResponse{StatusCode: st.status, Body: []byte(st.body)}, nil
}

func (s *scriptedTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedTransport) request(i int) *OutgoingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

// sleepRecorder captures backoff delays without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func fixedUniform(u float64) func() float64 {
	return func() float64 { return u }
}

// testPolicy is the reference policy with deterministic, fast-to-assert values.
func testPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.JitterMin = 0
	p.JitterMax = 0
	return p
}

func newTestExecutor(t Transport, rec *sleepRecorder) *Executor {
	return NewBuilder(logger.Nop()).
		WithTransport(t).
		WithPolicy(testPolicy()).
		WithSleeper(rec.sleep).
		WithUniformSource(fixedUniform(0)).
		Build()
}
