// Package executor issues one logical outbound HTTP request to a spreadsheet/data API
// with bounded retry and exponential backoff.
//
// Retries
//   - Transport failures (no response at all) and per-attempt timeouts are retried.
//   - Responses with status >= 408 are retried.
//   - Responses with status <= 407 end the loop and are returned as-is. That includes
//     401 and 404: retrying cannot fix an invalid token, so callers interpret them.
//
// Backoff Strategy
//   - Before attempt k+1 (k >= 1) the executor sleeps BackoffBase * 2^(k-1) plus a jitter
//     drawn uniformly from [JitterMin, JitterMax) * JitterUnit.
//   - RetryPolicy.LegacyXORBackoff reproduces the historical curve that used XOR
//     (2 ^ (k-1)) instead of a power. Only use it for timing compatibility tests.
//
// Descriptors
//   - A Descriptor is built per logical call. Execute copies it into private attempt
//     state and, once the loop ends, resets it (GET, no body, no path, no headers) so a
//     stray reuse cannot leak the previous call's payload.
//   - The outgoing header set is the descriptor's headers minus any Authorization header,
//     followed by exactly one "Authorization: OAuth <token>".
//
// Errors
//   - HTTP statuses never produce an error.
//   - When the final attempt fails at the transport level the returned error satisfies
//     IsErrorType(err, ExhaustedError) and comes with a Result carrying the attempt
//     count. AttemptsFromError also reports it.
package executor
