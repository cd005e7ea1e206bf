package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	limiter "github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

var ErrRateLimited = errors.New("too many requests, try again later")

// RateLimiter returns a Gin middleware that rate-limits requests by client IP.
// Format examples: "5-M" (5/min), "10-H" (10/hour), "1-S" (1/sec).
func RateLimiter(formatted string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: invalid rate format %q: %w", formatted, err)
	}
	store := memory.NewStore()
	instance := limiter.New(store, rate)
	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.AbortWithError(http.StatusTooManyRequests, ErrRateLimited)
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("ratelimit: %w", err))
		}),
	), nil
}
