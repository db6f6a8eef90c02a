package security

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxLimiterEntries bounds the number of distinct identifiers tracked.
	DefaultMaxLimiterEntries = 1000

	// DefaultCleanupInterval is how often idle identifiers are swept.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultMaxIdle is how long an identifier may go unused before a sweep
	// removes it.
	DefaultMaxIdle = 30 * time.Minute
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier token-bucket limiting. The fetcher keys it
// by destination host so a hostile metadata document cannot make the client
// hammer a single host. The oldest idle identifier is evicted when the table is
// full.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*limiterEntry
	limit      rate.Limit
	burst      int
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time

	cleanupInterval time.Duration
	maxIdle         time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	evictions     int64
	totalCleanups int64
}

// NewRateLimiter creates a limiter allowing perSecond events per identifier with
// the given burst. A perSecond of zero or less disables limiting. An enabled
// limiter sweeps idle identifiers in the background until Stop is called.
func NewRateLimiter(perSecond float64, burst int, logger *slog.Logger) *RateLimiter {
	return newRateLimiter(perSecond, burst, DefaultCleanupInterval, DefaultMaxIdle, logger)
}

func newRateLimiter(perSecond float64, burst int, cleanupInterval, maxIdle time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		limiters:        make(map[string]*limiterEntry),
		limit:           rate.Limit(perSecond),
		burst:           burst,
		maxEntries:      DefaultMaxLimiterEntries,
		logger:          logger,
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
		stopCleanup:     make(chan struct{}),
	}

	if rl.Enabled() {
		go rl.cleanupLoop()
	}
	return rl
}

// cleanupLoop periodically removes idle identifiers
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(rl.maxIdle)
		case <-rl.stopCleanup:
			return
		}
	}
}

// Stop ends the background sweep. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	if rl == nil {
		return
	}
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Enabled reports whether the limiter enforces anything.
func (rl *RateLimiter) Enabled() bool {
	return rl != nil && rl.limit > 0
}

// Allow reports whether an event for identifier may happen now.
func (rl *RateLimiter) Allow(identifier string) bool {
	if !rl.Enabled() {
		return true
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[identifier]
	if !ok {
		if rl.maxEntries > 0 && len(rl.limiters) >= rl.maxEntries {
			rl.evictOldest()
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[identifier] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

// evictOldest removes the least recently used entry. Caller must hold mu.
func (rl *RateLimiter) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range rl.limiters {
		if oldestKey == "" || entry.lastAccess.Before(oldest) {
			oldestKey = key
			oldest = entry.lastAccess
		}
	}
	if oldestKey == "" {
		return
	}
	delete(rl.limiters, oldestKey)
	rl.evictions++
	rl.logger.Debug("Rate limiter eviction",
		"identifier", oldestKey,
		"total_evictions", rl.evictions)
}

// Cleanup removes identifiers idle for longer than maxIdle and returns how many
// were removed.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	if rl == nil {
		return 0
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > maxIdle {
			delete(rl.limiters, key)
			removed++
		}
	}

	if removed > 0 {
		rl.totalCleanups++
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.limiters),
			"total_cleanups", rl.totalCleanups)
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (rl *RateLimiter) Len() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
