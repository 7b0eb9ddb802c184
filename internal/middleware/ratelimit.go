package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/ctxkit/internal/pkg/errcode"
	"github.com/xxxsen/ctxkit/internal/pkg/response"
)

const defaultSweepInterval = 10 * time.Minute

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

// rateLimiter keeps one token bucket per client IP and path. Idle buckets
// are dropped on a sweep.
type rateLimiter struct {
	mu            sync.Mutex
	limit         rate.Limit
	burst         int
	clients       map[string]*clientLimiter
	sweepInterval time.Duration
	lastSweep     time.Time
	now           func() time.Time
}

// RateLimit allows rps requests per second with the given burst. A
// non-positive rps disables limiting.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = 1
	}
	l := &rateLimiter{
		limit:         rate.Limit(rps),
		burst:         burst,
		clients:       make(map[string]*clientLimiter),
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
	}
	return l.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.limit <= 0 {
		c.Next()
		return
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	ip := c.ClientIP()
	key := ip + "|" + path
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.sweepInterval {
		l.cleanupIdleLocked(now)
	}
	client, ok := l.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = client
	}
	client.seen = now
	allowed := client.limiter.AllowN(now, 1)
	l.mu.Unlock()

	if !allowed {
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("path", path),
		)
		response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	c.Next()
}

func (l *rateLimiter) cleanupIdleLocked(now time.Time) {
	for key, client := range l.clients {
		if now.Sub(client.seen) >= l.sweepInterval {
			delete(l.clients, key)
		}
	}
	l.lastSweep = now
}
