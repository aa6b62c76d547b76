package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/port"
)

const (
	limitProblemType  = "/problems/rate-limited"
	limitProblemTitle = "Too Many Requests"
)

// KeyFunc extracts the value a limit is scoped by, usually the client IP.
// Returning false skips the rule for this request.
type KeyFunc func(*gin.Context) (string, bool)

// ThrottleRule is one sliding-window budget: at most Limit requests per
// Window for each distinct key.
type ThrottleRule struct {
	Name   string
	Limit  int
	Window time.Duration
	Key    KeyFunc
}

// ByClientIP scopes a rule by the request's client IP.
func ByClientIP() KeyFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimiter enforces ThrottleRules against a shared attempt store. Store
// failures fail open: a broken limiter must not take ticket issuance down
// with it.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock swaps the time source, for tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// windowState is the outcome of checking one rule for one request.
type windowState struct {
	allowed    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// ProblemDetails is the RFC 9457 payload returned on a throttled request.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// Enforce returns a middleware applying the given rules. Rules with no key
// function, a non-positive limit, or a non-positive window are dropped.
// When several rules match, response headers reflect the strictest one.
func (rl *RateLimiter) Enforce(rules ...ThrottleRule) gin.HandlerFunc {
	active := make([]ThrottleRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Key == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var strictest *windowState

		for _, rule := range active {
			scope, ok := rule.Key(c)
			if !ok || scope == "" {
				continue
			}

			state, err := rl.check(c, rule, fmt.Sprintf("%s:%s", rule.Name, scope), now)
			if err != nil {
				rl.logger.Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("scope", scope),
					zap.Error(err))
				continue
			}

			if strictest == nil || stricter(state, *strictest) {
				snapshot := state
				strictest = &snapshot
			}

			if !state.allowed {
				writeLimitHeaders(c, state)
				rl.reject(c, state)
				return
			}
		}

		if strictest != nil {
			writeLimitHeaders(c, *strictest)
		}

		c.Next()
	}
}

// check trims the window, counts what is left, and records the attempt when
// the budget still has room. Blocked requests are not recorded so they do
// not extend the lockout.
func (rl *RateLimiter) check(c *gin.Context, rule ThrottleRule, key string, now time.Time) (windowState, error) {
	ctx := c.Request.Context()

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return windowState{}, err
	}

	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return windowState{}, err
	}

	oldest, hasAttempts, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return windowState{}, err
	}

	state := windowState{
		allowed: true,
		limit:   rule.Limit,
		reset:   now.Add(rule.Window),
	}
	if hasAttempts {
		state.reset = oldest.Add(rule.Window)
	}

	if count >= rule.Limit {
		state.allowed = false
		state.retryAfter = max(state.reset.Sub(now), 0)
		return state, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return windowState{}, err
	}

	state.remaining = max(rule.Limit-count-1, 0)
	state.retryAfter = max(state.reset.Sub(now), 0)
	if !hasAttempts {
		state.reset = now.Add(rule.Window)
	}

	return state, nil
}

// stricter orders window states for header reporting: blocked beats allowed,
// then fewer remaining, then the earlier reset.
func stricter(candidate, current windowState) bool {
	if !candidate.allowed && current.allowed {
		return true
	}
	if candidate.allowed != current.allowed {
		return false
	}
	if candidate.remaining != current.remaining {
		return candidate.remaining < current.remaining
	}
	return candidate.reset.Before(current.reset)
}

func writeLimitHeaders(c *gin.Context, state windowState) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(state.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(state.remaining, 0)))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(state.reset.Unix(), 10))

	if !state.allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(state)))
	}
}

func (rl *RateLimiter) reject(c *gin.Context, state windowState) {
	seconds := retrySeconds(state)

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       limitProblemType,
		Title:      limitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}

func retrySeconds(state windowState) int {
	return max(int(math.Ceil(state.retryAfter.Seconds())), 0)
}
