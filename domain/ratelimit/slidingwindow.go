package ratelimit

import "time"

// SlidingWindowState holds a monotonic queue of acceptance timestamps,
// oldest first, per §4.5.
type SlidingWindowState struct {
	Timestamps []time.Time
}

// SlidingWindowConfig is the immutable configuration of a sliding window.
type SlidingWindowConfig struct {
	Rate   int
	Window time.Duration
}

// SlidingWindowResult reports the outcome of one acquisition attempt.
type SlidingWindowResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Count      int
}

// TryAcquireSlidingWindow implements §4.5's sliding-window algorithm: evict
// timestamps older than now-Window, then accept iff
// window-count + cost <= rate, recording `cost` new timestamps at `now` on
// acceptance.
func TryAcquireSlidingWindow(state SlidingWindowState, cfg SlidingWindowConfig, cost int, now time.Time) (SlidingWindowResult, SlidingWindowState) {
	cutoff := now.Add(-cfg.Window)
	kept := state.Timestamps[:0:0]
	for _, t := range state.Timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept)+cost <= cfg.Rate {
		for i := 0; i < cost; i++ {
			kept = append(kept, now)
		}
		return SlidingWindowResult{Allowed: true, Count: len(kept)}, SlidingWindowState{Timestamps: kept}
	}

	var retryAfter time.Duration
	if len(kept) > 0 {
		retryAfter = kept[0].Add(cfg.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
	}
	return SlidingWindowResult{Allowed: false, RetryAfter: retryAfter, Count: len(kept)}, SlidingWindowState{Timestamps: kept}
}
