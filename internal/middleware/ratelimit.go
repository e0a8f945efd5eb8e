package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/samuraifrenchienft/music-legends-engine/internal/ratelimit"
)

// RateLimit returns an Echo middleware enforcing the sliding-window rule
// configured for action.  Authenticated requests are limited per user id,
// anonymous ones per client IP.  Redis errors fail open: an outage of the
// limiter must not take the purchase path down with it.
func RateLimit(limiter *ratelimit.Limiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter == nil {
				return next(c)
			}
			actor := actorKey(c)
			allowed, err := limiter.Allow(c.Request().Context(), actor, action)
			if err != nil {
				log.Printf("ratelimit: allow %s/%s failed: %v", actor, action, err)
				return next(c)
			}
			if allowed {
				return next(c)
			}

			resp := echo.Map{"error": "rate limit exceeded", "action": action}
			if st, serr := limiter.GetStatus(c.Request().Context(), actor, action); serr == nil {
				c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(st.Limit))
				c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(st.Remaining))
				if wait := time.Until(st.ResetTime); wait > 0 {
					c.Response().Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
				}
				resp["reset_time"] = st.ResetTime.UTC().Format(time.RFC3339)
			}
			return c.JSON(http.StatusTooManyRequests, resp)
		}
	}
}

func actorKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return fmt.Sprintf("user:%d", id)
	}
	return "ip:" + c.RealIP()
}
