package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		resp     *RawResponse
		err      error
		expected State
	}{
		{name: "200", resp: &RawResponse{StatusCode: 200}, expected: StateSucceeded},
		{name: "304", resp: &RawResponse{StatusCode: 304}, expected: StateSucceeded},
		{name: "401", resp: &RawResponse{StatusCode: 401}, expected: StateSucceeded},
		{name: "407", resp: &RawResponse{StatusCode: 407}, expected: StateSucceeded},
		{name: "408", resp: &RawResponse{StatusCode: 408}, expected: StateRetryableFailure},
		{name: "500", resp: &RawResponse{StatusCode: 500}, expected: StateRetryableFailure},
		{name: "nil response", expected: StateRetryableFailure},
		{name: "network error", err: NewNetworkError("reset", errors.New("econnreset")), expected: StateRetryableFailure},
		{name: "timeout", err: NewTimeoutError("slow", 0, nil), expected: StateRetryableFailure},
		{name: "validation", err: NewValidationError("bad", "url"), expected: StateTerminalFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classify(tt.resp, tt.err))
		})
	}
}

func TestAdvance(t *testing.T) {
	assert.Equal(t, StateRetryableFailure, advance(StateRetryableFailure, 1, 6))
	assert.Equal(t, StateTerminalFailure, advance(StateRetryableFailure, 6, 6))
	assert.Equal(t, StateSucceeded, advance(StateSucceeded, 6, 6))
	assert.Equal(t, StateTerminalFailure, advance(StateTerminalFailure, 1, 6))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "sent", StateSent.String())
	assert.Equal(t, "succeeded", StateSucceeded.String())
	assert.Equal(t, "retryable_failure", StateRetryableFailure.String())
	assert.Equal(t, "terminal_failure", StateTerminalFailure.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateTerminalFailure.Terminal())
	assert.False(t, StatePending.Terminal())
	assert.False(t, StateSent.Terminal())
	assert.False(t, StateRetryableFailure.Terminal())
}
