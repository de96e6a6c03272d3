package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// userRateLimiter keeps a token bucket per caller.
type userRateLimiter struct {
	perMinute int
	limiters  map[string]*rate.Limiter
	mu        sync.Mutex
}

func newUserRateLimiter(perMinute int) *userRateLimiter {
	return &userRateLimiter{
		perMinute: perMinute,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (l *userRateLimiter) allow(key string) bool {
	if l.perMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.limiters[key] = limiter
	}

	return limiter.Allow()
}

func (s Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get(userIDHeader)
		if key == "" {
			key = c.RealIP()
		}

		if !s.limiter.allow(key) {
			log.FromContext(c.Request().Context()).WithField("caller", key).Warn("Rate limit exceeded")
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded, try again later")
		}

		return next(c)
	}
}
