package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bindery-io/bindery/internal/audit"
)

const (
	defaultWindow           = time.Minute
	defaultMaxPerWindow     = 100
	rateLimitSweepInterval  = 5 * time.Minute
	burstCapacityMultiplier = 2
)

type (
	// Limiter decides whether a request from a client should be admitted.
	//
	// Implementations may count in-memory (single-node deployment) or against
	// a shared store for a global limit across instances. The in-memory
	// limiter makes the limit per-instance when scaled horizontally; that is
	// an accepted limitation, logged at startup, not a bug.
	Limiter interface {
		// Allow records one request for the client key and reports whether it
		// is admitted. The increment is charged regardless of whether the
		// request later completes.
		Allow(clientKey string) bool
	}

	// FixedWindowLimiter implements Limiter with a fixed 60-second counting
	// window per client key, plus an optional global token-bucket tier that
	// protects the instance as a whole.
	//
	// All counter reads and writes happen under one mutex, giving the
	// exactly-once-increment guarantee the admission contract requires: no
	// I/O ever happens between the counter read and its increment.
	FixedWindowLimiter struct {
		mu       sync.Mutex
		counters map[string]*windowCounter

		window      time.Duration
		maxRequests int

		// global is a coarse whole-instance throttle; nil when disabled.
		global *rate.Limiter

		// now is injectable so window-reset behavior is testable without sleeping.
		now func() time.Time

		sweepTicker *time.Ticker
		done        chan struct{}
	}

	// windowCounter tracks one client's request count in the current window.
	// count only grows until resetAt passes; the next request then starts a
	// fresh window instead of inheriting the stale count.
	windowCounter struct {
		count   int
		resetAt time.Time
	}
)

// NewFixedWindowLimiter creates a fixed-window rate limiter from config.
//
// A background sweep removes counters whose window has passed, replacing the
// probabilistic per-request cleanup that made the original design hard to
// test deterministically. Sweeping is purely about memory: a counter that
// outlives its window is reset on the client's next request anyway, so a
// missed sweep can never change an admission decision.
func NewFixedWindowLimiter(config *Config) *FixedWindowLimiter {
	window := config.Window
	if window <= 0 {
		window = defaultWindow
	}

	maxRequests := config.MaxRequestsPerWindow
	if maxRequests <= 0 {
		maxRequests = defaultMaxPerWindow
	}

	rl := &FixedWindowLimiter{
		counters:    make(map[string]*windowCounter),
		window:      window,
		maxRequests: maxRequests,
		now:         time.Now,
		done:        make(chan struct{}),
	}

	if config.GlobalRPS > 0 {
		burst := config.GlobalBurst
		if burst <= 0 {
			burst = config.GlobalRPS * burstCapacityMultiplier
		}

		rl.global = rate.NewLimiter(rate.Limit(config.GlobalRPS), burst)
	}

	rl.startSweep(config.SweepInterval)

	return rl
}

// Allow implements the Limiter interface.
//
// Missing counters are the creation case, not an error, and this method
// never fails: the answer is always a plain admit/reject.
func (rl *FixedWindowLimiter) Allow(clientKey string) bool {
	// Whole-instance tier first (fail fast); per-client accounting is not
	// charged for requests the global tier rejects.
	if rl.global != nil && !rl.global.Allow() {
		return false
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	counter, ok := rl.counters[clientKey]
	if !ok || !now.Before(counter.resetAt) {
		counter = &windowCounter{resetAt: now.Add(rl.window)}
		rl.counters[clientKey] = counter
	}

	counter.count++

	return counter.count <= rl.maxRequests
}

// RetryAfter returns how long the client should wait before its window
// resets. Used to populate the Retry-After header on 429 responses.
func (rl *FixedWindowLimiter) RetryAfter(clientKey string) time.Duration {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	counter, ok := rl.counters[clientKey]
	if !ok || !now.Before(counter.resetAt) {
		return 0
	}

	return counter.resetAt.Sub(now)
}

// Close stops the background sweep goroutine.
// Must be called when the limiter is no longer needed.
func (rl *FixedWindowLimiter) Close() error {
	if rl.sweepTicker != nil {
		rl.sweepTicker.Stop()
	}

	close(rl.done)

	return nil
}

// startSweep starts the background goroutine that removes expired counters.
func (rl *FixedWindowLimiter) startSweep(interval time.Duration) {
	if interval <= 0 {
		interval = rateLimitSweepInterval
	}

	rl.sweepTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-rl.sweepTicker.C:
				rl.SweepNow()
			case <-rl.done:
				return
			}
		}
	}()
}

// SweepNow removes all counters whose window has passed.
// Exported so tests and operators can trigger reclamation deterministically.
func (rl *FixedWindowLimiter) SweepNow() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, counter := range rl.counters {
		if !now.Before(counter.resetAt) {
			delete(rl.counters, key)
		}
	}
}

// tracked returns the number of live counters. Test hook.
func (rl *FixedWindowLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.counters)
}

// retryAfterHinter is implemented by limiters that can estimate when a
// rejected client may try again.
type retryAfterHinter interface {
	RetryAfter(clientKey string) time.Duration
}

// RateLimit returns a middleware that enforces admission on incoming requests.
//
// Rejected requests are answered with 429 and an RFC 7807 body whose detail
// contains "Rate limit exceeded". Rejections are expected behavior: they are
// logged at info level via the audit recorder, never as errors, and are
// terminal for the request (the server never retries on the client's behalf).
func RateLimit(limiter Limiter, recorder audit.Recorder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			if !limiter.Allow(key) {
				requestID := GetRequestID(r.Context())

				if hinter, ok := limiter.(retryAfterHinter); ok {
					if wait := hinter.RetryAfter(key); wait > 0 {
						w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds()+1)))
					}
				}

				if recorder != nil {
					recorder.Record(r.Context(), audit.Event{
						Kind:      audit.KindRateLimitRejected,
						ClientKey: key,
						Path:      r.URL.Path,
						Detail:    "Rate limit exceeded",
					})
				}

				detail := "Rate limit exceeded. Please retry after the current window resets."
				if err := writeProblem(w, r, http.StatusTooManyRequests, detail, requestID); err != nil {
					logger.Error("failed to write rate limit response",
						slog.String("request_id", requestID),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)

					// Fallback to plain text if the problem encoder fails
					http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				}

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey identifies the client for admission accounting: the first
// X-Forwarded-For hop when present (TLS-terminating proxy in front), else
// the remote address host.
func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}
