package executor

import "time"

// State is the position of one Execute call in the retry state machine.
//
//	Pending -> Sent -> Succeeded
//	                -> RetryableFailure -> (backoff) -> Sent ...
//	                -> RetryableFailure -> TerminalFailure   (attempts exhausted)
//	                -> TerminalFailure                       (validation error, canceled)
type State int

const (
	StatePending State = iota
	StateSent
	StateSucceeded
	StateRetryableFailure
	StateTerminalFailure
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSent:
		return "sent"
	case StateSucceeded:
		return "succeeded"
	case StateRetryableFailure:
		return "retryable_failure"
	case StateTerminalFailure:
		return "terminal_failure"
	default:
		return "unknown"
	}
}

// Terminal reports whether the loop stops in this state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateTerminalFailure
}

// classify maps one attempt's transport outcome onto the next state.
// Any response with status <= 407 succeeds from the executor's point of view; the
// caller interprets application-level failures such as 401 or 404.
func classify(resp *RawResponse, err error) State {
	if err != nil {
		if IsErrorType(err, ValidationError) {
			return StateTerminalFailure
		}
		return StateRetryableFailure
	}
	if resp == nil || IsRetryableStatus(resp.StatusCode) {
		return StateRetryableFailure
	}
	return StateSucceeded
}

// advance applies the attempt budget: a retryable failure on the last allowed
// attempt becomes terminal.
func advance(s State, attempt, maxAttempts int) State {
	if s == StateRetryableFailure && attempt >= maxAttempts {
		return StateTerminalFailure
	}
	return s
}

// AttemptEvent is reported to an Observer after every attempt.
type AttemptEvent struct {
	Attempt    int
	State      State
	StatusCode int
	Err        error
	Elapsed    time.Duration
	// NextDelay is the backoff that precedes the following attempt, zero when the loop ends
	NextDelay time.Duration
}

// Observer receives attempt events synchronously on the calling goroutine.
type Observer func(AttemptEvent)
