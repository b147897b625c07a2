package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const healthPath = "/api/health"

// rateLimiter admits a request or reports how long the client should wait.
type rateLimiter interface {
	Admit() (bool, time.Duration)
}

type tokenBucket struct {
	limiter *rate.Limiter
}

func newTokenBucket(ratePerSecond float64, burst int) *tokenBucket {
	return &tokenBucket{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Admit takes a token when one is available. Otherwise the reservation is
// returned to the bucket and its delay is reported.
func (b *tokenBucket) Admit() (bool, time.Duration) {
	reservation := b.limiter.Reserve()
	if !reservation.OK() {
		return false, time.Second
	}
	delay := reservation.Delay()
	if delay == 0 {
		return true, 0
	}
	reservation.Cancel()
	return false, delay
}

// retryAfterSeconds rounds delay up to whole seconds, at least one.
func retryAfterSeconds(delay time.Duration) string {
	seconds := int(math.Ceil(delay.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// rateLimitMiddleware throttles API traffic. Health checks are never throttled.
func rateLimitMiddleware(logger *zap.Logger, limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == healthPath {
			next.ServeHTTP(w, r)
			return
		}

		ok, delay := limiter.Admit()
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		logger.Debug("request throttled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("retry_after", delay),
			zap.String("request_id", requestIDFromContext(r.Context())),
		)
		w.Header().Set("Retry-After", retryAfterSeconds(delay))
		writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry shortly")
	})
}
