package stratum

import "time"

// RetryBuilder constructs RetryPolicy values fluently. Obtain one with
// Retry, chain a backoff shape, and pass Policy() to WithRetry:
//
//	stratum.WithRetry(stratum.Retry(3).WithConstantBackoff(time.Second).Policy())
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry starts a builder allowing up to maxAttempts invocations of the
// stage. Values below 1 are clamped to 1, meaning no retries at all.
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		policy: RetryPolicy{
			MaxAttempts: maxAttempts,
		},
	}
}

// WithExponentialBackoff sleeps initial before the first retry and grows
// the delay by multiplier each attempt, capped at max. A multiplier at or
// below zero falls back to 2.0; a max at or below zero means uncapped.
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.InitialBackoff = initial
	p.MaxBackoff = max
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.BackoffMultiplier = multiplier
	return RetryBuilder{policy: p}
}

// WithConstantBackoff sleeps the same delay between every retry. Shorthand
// for an exponential backoff with multiplier 1.0 and no cap.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	p := r.policy
	p.InitialBackoff = delay
	p.MaxBackoff = 0
	p.BackoffMultiplier = 1.0
	return RetryBuilder{policy: p}
}

// Immediate clears any configured backoff so retries happen back to back.
// MaxAttempts still bounds them.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.InitialBackoff = 0
	p.MaxBackoff = 0
	p.BackoffMultiplier = 0
	return RetryBuilder{policy: p}
}

// Policy returns the built RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
