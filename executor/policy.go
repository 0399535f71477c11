package executor

import (
	crand "crypto/rand"
	"math"
	"math/big"
	"time"
)

const (
	// DefaultMaxAttempts is one initial attempt plus five retries
	DefaultMaxAttempts = 6

	// DefaultBackoffBase is the delay unit multiplied by 2^(k-1)
	DefaultBackoffBase = 1 * time.Second

	// DefaultJitterMin and DefaultJitterMax bound the fractional-second jitter
	DefaultJitterMin = 0.001
	DefaultJitterMax = 1.0

	// DefaultJitterUnit scales the jitter fractions
	DefaultJitterUnit = 1 * time.Second

	// DefaultAttemptTimeout bounds a single attempt
	DefaultAttemptTimeout = 5 * time.Second

	// maxShift keeps 1<<shift well inside int64
	maxShift = 30
)

// RetryPolicy controls how many attempts are made and how long to wait between them.
type RetryPolicy struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	JitterMin      float64
	JitterMax      float64
	JitterUnit     time.Duration
	MaxBackoff     time.Duration // 0 leaves the exponential part uncapped
	AttemptTimeout time.Duration

	// LegacyXORBackoff multiplies BackoffBase by (2 XOR (k-1)) instead of 2^(k-1)
	LegacyXORBackoff bool
}

// DefaultRetryPolicy returns the reference policy: 6 attempts, 1s base, jitter in
// [0.001s, 1s) and a 5s per-attempt timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		BackoffBase:    DefaultBackoffBase,
		JitterMin:      DefaultJitterMin,
		JitterMax:      DefaultJitterMax,
		JitterUnit:     DefaultJitterUnit,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// withDefaults fills the fields whose zero value would make the policy unusable.
// A zero BackoffBase or zero jitter range is a legitimate choice and is kept.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.JitterUnit <= 0 {
		p.JitterUnit = DefaultJitterUnit
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = DefaultAttemptTimeout
	}
	return p
}

// Validate rejects negative durations and inverted jitter ranges.
func (p RetryPolicy) Validate() error {
	if p.BackoffBase < 0 {
		return NewValidationError("backoff base must not be negative", "backoff_base")
	}
	if p.MaxBackoff < 0 {
		return NewValidationError("max backoff must not be negative", "max_backoff")
	}
	if p.JitterMin < 0 || p.JitterMax < p.JitterMin {
		return NewValidationError("jitter range must satisfy 0 <= min <= max", "jitter")
	}
	return nil
}

// Multiplier returns the factor applied to BackoffBase before attempt k+1.
func (p RetryPolicy) Multiplier(k int) int64 {
	if k <= 0 {
		return 0
	}
	n := k - 1
	if p.LegacyXORBackoff {
		return int64(2 ^ n)
	}
	if n > maxShift {
		n = maxShift
	}
	return int64(1) << n
}

// Backoff returns the delay to wait after attempt k (k >= 1) and before attempt k+1.
// u is a uniform sample in [0, 1) that picks the jitter inside the configured range.
func (p RetryPolicy) Backoff(k int, u float64) time.Duration {
	if k <= 0 {
		return 0
	}

	mult := p.Multiplier(k)
	var d time.Duration
	if p.BackoffBase > 0 && mult > math.MaxInt64/int64(p.BackoffBase) {
		d = time.Duration(math.MaxInt64)
	} else {
		d = p.BackoffBase * time.Duration(mult)
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}

	if u < 0 {
		u = 0
	}
	if u >= 1 {
		u = math.Nextafter(1, 0)
	}
	fraction := p.JitterMin + u*(p.JitterMax-p.JitterMin)
	jitter := time.Duration(fraction * float64(p.JitterUnit))

	if d > time.Duration(math.MaxInt64)-jitter {
		return time.Duration(math.MaxInt64)
	}
	return d + jitter
}

// cryptoUniform draws a uniform sample in [0, 1) from crypto/rand.
func cryptoUniform() float64 {
	const precision = 1 << 53
	n, err := crand.Int(crand.Reader, big.NewInt(precision))
	if err != nil {
		// On RNG failure use the middle of the range
		return 0.5
	}
	return float64(n.Int64()) / precision
}
