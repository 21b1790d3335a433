package middleware

import (
	"fmt"
	"math"

	"github.com/labstack/echo/v4"

	"partshub/internal/infrastructure/ratelimit"
	"partshub/pkg/errors"
	"partshub/pkg/response"
)

// RateLimit throttles an action per authenticated user, falling back to the
// client IP for anonymous requests.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, _ := c.Get("uid").(string)
			if key == "" {
				key = "ip:" + c.RealIP()
			}
			allowed, wait := limiter.Allow(key, action)
			if !allowed {
				c.Response().Header().Set("Retry-After", fmt.Sprint(int(math.Ceil(wait.Seconds()))))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded"))
			}
			return next(c)
		}
	}
}
