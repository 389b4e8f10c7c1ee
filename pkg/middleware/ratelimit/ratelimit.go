package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/response"
)

// ErrRateLimited is returned when a client exceeds its quota.
var ErrRateLimited = appErrors.New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests")

// NewStore returns a Redis backed limiter store, or an in-memory one when no
// client is available.
func NewStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if client == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute}), nil
	}
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix, MaxRetry: 3})
}

// Middleware limits requests per client IP and route using a rate such as
// "10-M". An unparsable rate disables limiting for the route.
func Middleware(store limiter.Store, formatted string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	lim := limiter.New(store, rate)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + "|" + route

		ctx, err := lim.Get(c.Request.Context(), key)
		if err != nil {
			// Limiter backend errors fail open.
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(ctx.Reset, 10))

		if ctx.Reached {
			retry := time.Until(time.Unix(ctx.Reset, 0))
			if retry < 0 {
				retry = 0
			}
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
			response.Error(c, ErrRateLimited)
			return
		}
		c.Next()
	}, nil
}
