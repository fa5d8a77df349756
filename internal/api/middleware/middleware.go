package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/bedrockd/internal/config"
	"github.com/yourusername/bedrockd/internal/logging"
)

// CORS applies the configured origin allowlist. A lone "*" (or the
// 0.0.0.0/0 spelling) permits any origin; otherwise the request origin
// is echoed back only when it matches the list exactly.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.AllowedMethods) > 0 {
		methods = strings.Join(cfg.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if isOriginAllowed(origin, cfg.AllowedOrigins) {
			switch {
			case origin != "":
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			case containsWildcard(cfg.AllowedOrigins):
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			}
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", methods)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Logger emits one structured line per request through the shared slog
// logger. Health probes are suppressed outside debug mode so they do
// not swamp the log.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		latency := time.Since(start)
		c.Writer.Header().Set("X-Response-Time", latency.String())

		if path == "/health" && gin.Mode() != gin.DebugMode {
			return
		}
		logging.L().Info("http_request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", latency.String(),
			"ip", c.ClientIP(),
		)
	}
}

// RateLimit applies a per-IP fixed-window limit. Polling endpoints the
// frontend hits continuously are exempt so an idle dashboard never
// locks its own user out.
func RateLimit(enabled bool, requestsPerMinute int) gin.HandlerFunc {
	limiter := newRateLimiter(enabled, requestsPerMinute)

	return func(c *gin.Context) {
		if !limiter.enabled {
			c.Next()
			return
		}

		if isPollingPath(c.Request.Method, c.Request.URL.Path) {
			c.Next()
			return
		}

		if !limiter.allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

func isPollingPath(method, path string) bool {
	switch path {
	case "/api/v1/auth/setup-status", "/api/v1/auth/refresh":
		return true
	case "/api/v1/auth/me":
		return method == http.MethodGet
	}
	return false
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	// Same-origin requests and non-browser clients carry no Origin header.
	if origin == "" {
		return true
	}

	for _, entry := range allowedOrigins {
		switch strings.TrimSpace(entry) {
		case "":
			continue
		case "*", "0.0.0.0/0", origin:
			return true
		}
	}
	return false
}

func containsWildcard(allowedOrigins []string) bool {
	for _, entry := range allowedOrigins {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "*" || trimmed == "0.0.0.0/0" {
			return true
		}
	}
	return false
}

// rateLimiter is a fixed-window counter per client key. Good enough for
// a single-admin daemon; no token-bucket smoothing needed.
type rateLimiter struct {
	enabled           bool
	requestsPerMinute int
	window            time.Duration

	mu          sync.Mutex
	entries     map[string]*rateLimitEntry
	lastCleanup time.Time
}

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

func newRateLimiter(enabled bool, requestsPerMinute int) *rateLimiter {
	return &rateLimiter{
		enabled:           enabled && requestsPerMinute > 0,
		requestsPerMinute: requestsPerMinute,
		window:            time.Minute,
		entries:           make(map[string]*rateLimitEntry),
		lastCleanup:       time.Now(),
	}
}

func (rl *rateLimiter) allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastCleanup) > time.Minute {
		rl.cleanup(now)
	}

	entry, ok := rl.entries[key]
	if !ok || now.Sub(entry.windowStart) >= rl.window {
		rl.entries[key] = &rateLimitEntry{windowStart: now, count: 1}
		return true
	}
	if entry.count >= rl.requestsPerMinute {
		return false
	}
	entry.count++
	return true
}

func (rl *rateLimiter) cleanup(now time.Time) {
	for key, entry := range rl.entries {
		if now.Sub(entry.windowStart) >= rl.window {
			delete(rl.entries, key)
		}
	}
	rl.lastCleanup = now
}
