package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds middleware configuration.
type Config struct {
	Logger *zap.Logger

	// CORS is skipped when nil.
	CORS *CORSConfig

	// RateLimit is requests per second per client host; zero disables limiting.
	RateLimit      rate.Limit
	RateLimitBurst int

	// RequestTimeout is skipped when zero.
	RequestTimeout time.Duration
}

// Chain wraps a handler with, from outer to inner: request logging, request id,
// panic recovery, CORS, rate limiting and the request timeout.
func Chain(config *Config) func(http.Handler) http.Handler {
	var rateLimiter *RateLimiter
	if config.RateLimit > 0 {
		rateLimiter = NewRateLimiter(config.RateLimit, config.RateLimitBurst)
	}

	return func(handler http.Handler) http.Handler {
		h := handler

		if config.RequestTimeout > 0 {
			h = Timeout(config.RequestTimeout)(h)
		}

		if rateLimiter != nil {
			h = rateLimiter.Middleware()(h)
		}

		if config.CORS != nil {
			h = CORS(config.CORS)(h)
		}

		h = Recovery(config.Logger)(h)

		h = RequestID(h)

		h = Logger(config.Logger)(h)

		return h
	}
}
