package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders sets the standard hardening headers on every response.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// ContentSecurityPolicy locks the API surface down to self-only sources.
// Dev mode loosens connect-src for websocket hot reload and script-src
// for tooling that still relies on eval.
func ContentSecurityPolicy(isDev bool) gin.HandlerFunc {
	scriptSrc := "'self'"
	connectSrc := "'self'"
	if isDev {
		scriptSrc += " 'unsafe-eval'"
		connectSrc += " ws: wss:"
	}

	policy := fmt.Sprintf(
		"default-src 'none'; script-src %s; style-src 'self' 'unsafe-inline'; "+
			"img-src 'self' data:; connect-src %s; font-src 'self'; "+
			"object-src 'none'; frame-ancestors 'none';",
		scriptSrc, connectSrc)

	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", policy)
		c.Next()
	}
}
