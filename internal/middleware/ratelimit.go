package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	rd "github.com/redis/go-redis/v9"
)

// Sliding window over a Redis sorted set, executed as one Lua script so
// prune + count + insert are atomic.
// KEYS[1]=limiter key, ARGV: now, window start, window seconds, member, limit.
// Returns the count inside the window, or -1 when over the limit.
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)

if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`

// RedisRateLimit limits requests per authenticated user inside a
// sliding window, falling back to the client IP when no user is set.
// A Redis failure fails open so the limiter can never take the
// protected endpoint down with it.
func RedisRateLimit(rdb *rd.Client, scope string, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := fmt.Sprintf("rate_limit:%s:ip:%s", scope, c.RealIP())
			if userID, ok := c.Get("user_id").(string); ok && userID != "" {
				key = fmt.Sprintf("rate_limit:%s:user:%s", scope, userID)
			}

			now := time.Now().Unix()
			windowSec := int64(window.Seconds())
			windowStart := now - windowSec
			member := fmt.Sprintf("%d-%d", now, time.Now().UnixNano())

			res, err := rdb.Eval(c.Request().Context(), luaRateLimit, []string{key},
				now, windowStart, windowSec, member, limit).Int()
			if err != nil {
				return next(c)
			}

			if res < 0 {
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"success": false,
					"error":   "too many attempts, try again shortly",
				})
			}
			return next(c)
		}
	}
}
