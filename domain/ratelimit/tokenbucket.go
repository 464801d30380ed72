// Package ratelimit implements the pure token-bucket and sliding-window
// limiting algorithms of §4.5, and the sharded concurrent Bank that keys
// limiter state per §9's "avoid a single global lock" guidance.
package ratelimit

import "time"

// TokenBucketState is the persisted state of one token-bucket limiter
// (§4.5: "{capacity, tokens: float, refill_rate_per_sec, last_refill_time}").
type TokenBucketState struct {
	Tokens         float64
	LastRefillTime time.Time
}

// TokenBucketConfig is the immutable configuration of a token bucket.
type TokenBucketConfig struct {
	Capacity       float64
	RefillRatePerS float64
}

// TokenBucketResult reports the outcome of one acquisition attempt.
type TokenBucketResult struct {
	Allowed      bool
	RetryAfter   time.Duration // populated only when !Allowed
	RemainingTokens float64
}

// TryAcquireTokenBucket implements §4.5's token-bucket algorithm as a pure
// function: refill by elapsed*rate up to capacity, then atomically subtract
// cost if tokens >= cost, else return the seconds until it will. "Atomic" is
// with respect to the caller holding the state's lock; this function itself
// has no shared mutable state.
func TryAcquireTokenBucket(state TokenBucketState, cfg TokenBucketConfig, cost float64, now time.Time) (TokenBucketResult, TokenBucketState) {
	tokens := state.Tokens
	if state.LastRefillTime.IsZero() {
		// First use: start full, matching a freshly allocated limiter.
		tokens = cfg.Capacity
	} else if elapsed := now.Sub(state.LastRefillTime); elapsed > 0 {
		tokens += elapsed.Seconds() * cfg.RefillRatePerS
		if tokens > cfg.Capacity {
			tokens = cfg.Capacity
		}
	}

	newState := TokenBucketState{Tokens: tokens, LastRefillTime: now}

	if tokens >= cost {
		newState.Tokens = tokens - cost
		return TokenBucketResult{Allowed: true, RemainingTokens: newState.Tokens}, newState
	}

	deficit := cost - tokens
	var retryAfter time.Duration
	if cfg.RefillRatePerS > 0 {
		retryAfter = time.Duration(deficit / cfg.RefillRatePerS * float64(time.Second))
	}
	return TokenBucketResult{Allowed: false, RetryAfter: retryAfter, RemainingTokens: tokens}, newState
}
