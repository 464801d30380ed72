package ratelimit

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/oagw/gateway/domain/upstream"
)

// limiterState is the per-key state held by the bank: one of the two
// algorithms is populated depending on the key's configured algorithm.
type limiterState struct {
	tokenBucket   TokenBucketState
	slidingWindow SlidingWindowState
	lastAccess    time.Time
}

type shard struct {
	mu    sync.Mutex
	state map[string]*limiterState
}

// Bank is a keyed bank of token-bucket / sliding-window limiters (§4.5,
// §9). It shards on the limiter key so no single global lock serializes the
// hot path, following the teacher's ShardedRateLimitStore pattern.
type Bank struct {
	shards    []*shard
	numShards int

	cleanup *time.Ticker
	done    chan struct{}
}

// BankConfig configures shard count and idle-entry cleanup cadence.
type BankConfig struct {
	NumShards       int
	CleanupInterval time.Duration
	MaxIdle         time.Duration
}

// NewBank creates a Bank and starts its background cleanup loop.
func NewBank(cfg BankConfig) *Bank {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = time.Hour
	}

	b := &Bank{
		shards:    make([]*shard, cfg.NumShards),
		numShards: cfg.NumShards,
		done:      make(chan struct{}),
	}
	for i := range b.shards {
		b.shards[i] = &shard{state: make(map[string]*limiterState)}
	}

	b.cleanup = time.NewTicker(cfg.CleanupInterval)
	go b.cleanupLoop(cfg.MaxIdle)
	return b
}

func (b *Bank) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return b.shards[h.Sum32()%uint32(b.numShards)]
}

// Key computes the limiter key per §4.5:
// scope || tenant || (route_id|upstream_id) || subject?. A global-scope
// limiter ignores tenant, matching the spec's explicit carve-out.
func Key(scope upstream.RateLimitScope, tenantID, routeOrUpstreamID, subject string) string {
	parts := []string{string(scope)}
	if scope != upstream.ScopeGlobal {
		parts = append(parts, tenantID)
	}
	parts = append(parts, routeOrUpstreamID)
	if subject != "" {
		parts = append(parts, subject)
	}
	return strings.Join(parts, "||")
}

// Acquire consumes cost tokens/slots for key under cfg, lazily allocating
// state on first use (§3 Lifecycles: "Rate limiter state: allocated lazily
// on first keyed request; retained in-process."). It returns whether the
// request is allowed and, when not, a retry-after duration estimate.
func (b *Bank) Acquire(key string, cfg upstream.RateLimitConfig, now time.Time) (allowed bool, retryAfter time.Duration) {
	s := b.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[key]
	if !ok {
		st = &limiterState{}
		s.state[key] = st
	}
	st.lastAccess = now

	switch cfg.Algorithm {
	case upstream.AlgorithmSlidingWindow:
		swCfg := SlidingWindowConfig{Rate: sustainedCapacity(cfg), Window: windowDuration(cfg.Sustained.Window)}
		result, newState := TryAcquireSlidingWindow(st.slidingWindow, swCfg, cfg.Cost, now)
		st.slidingWindow = newState
		return result.Allowed, result.RetryAfter
	default: // AlgorithmTokenBucket is the default per §3.
		capacity := float64(sustainedCapacity(cfg))
		if cfg.Burst != nil {
			capacity = float64(cfg.Burst.Capacity)
		}
		tbCfg := TokenBucketConfig{
			Capacity:       capacity,
			RefillRatePerS: refillRatePerSecond(cfg.Sustained),
		}
		result, newState := TryAcquireTokenBucket(st.tokenBucket, tbCfg, float64(cfg.Cost), now)
		st.tokenBucket = newState
		return result.Allowed, result.RetryAfter
	}
}

func sustainedCapacity(cfg upstream.RateLimitConfig) int {
	return cfg.Sustained.Rate
}

func refillRatePerSecond(s upstream.Sustained) float64 {
	seconds := windowDuration(s.Window).Seconds()
	if seconds <= 0 {
		return float64(s.Rate)
	}
	return float64(s.Rate) / seconds
}

func windowDuration(w upstream.RateLimitWindow) time.Duration {
	switch w {
	case upstream.WindowSecond:
		return time.Second
	case upstream.WindowHour:
		return time.Hour
	case upstream.WindowDay:
		return 24 * time.Hour
	default: // WindowMinute is the default.
		return time.Minute
	}
}

// cleanupLoop periodically drops shard entries untouched for longer than
// maxIdle, bounding the bank's memory for keys that stop being used
// (e.g. a deleted route or upstream).
func (b *Bank) cleanupLoop(maxIdle time.Duration) {
	for {
		select {
		case <-b.cleanup.C:
			b.doCleanup(maxIdle)
		case <-b.done:
			return
		}
	}
}

func (b *Bank) doCleanup(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	for _, s := range b.shards {
		s.mu.Lock()
		for key, st := range s.state {
			if st.lastAccess.Before(cutoff) {
				delete(s.state, key)
			}
		}
		s.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (b *Bank) Close() {
	close(b.done)
	b.cleanup.Stop()
}

// Len returns the total number of live keys across all shards (for tests).
func (b *Bank) Len() int {
	total := 0
	for _, s := range b.shards {
		s.mu.Lock()
		total += len(s.state)
		s.mu.Unlock()
	}
	return total
}
