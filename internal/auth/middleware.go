package auth

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
)

// GinContextKey is where the RequestContext lives in the gin context.
const GinContextKey = "requestContext"

// ErrorKindHeader carries the machine-readable error kind alongside the JSON
// body on every failed response.
const ErrorKindHeader = "X-Mcp-Error-Kind"

// Public paths bypass authentication and run with the public tenant.
var publicPaths = map[string]bool{
	"/health":      true,
	"/health.json": true,
	"/ready":       true,
}

// Middleware authenticates every non-public request and applies the per-key
// rate limit. The resolved context is attached to both gin and the request
// context.
func Middleware(resolver *Resolver, limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if publicPaths[c.Request.URL.Path] {
			rc := &RequestContext{TenantID: PublicTenant}
			c.Set(GinContextKey, rc)
			c.Request = c.Request.WithContext(WithRequestContext(c.Request.Context(), rc))
			c.Next()
			return
		}

		rc, err := resolver.Resolve(c.Request.Context(), c.Request)
		if err != nil {
			Abort(c, err)
			return
		}

		if limiter != nil {
			key := rc.APIKeyID
			if key == "" {
				key = rc.TenantID + "/" + rc.UserID
			}
			if !limiter.Allow(key) {
				c.Header("Retry-After", "1")
				Abort(c, apperrors.RateLimited())
				return
			}
		}

		c.Set(GinContextKey, rc)
		c.Request = c.Request.WithContext(WithRequestContext(c.Request.Context(), rc))
		c.Next()
	}
}

// Abort writes the error response with its kind header and stops the chain.
func Abort(c *gin.Context, err error) {
	c.Header(ErrorKindHeader, string(apperrors.KindOf(err)))
	c.AbortWithStatusJSON(apperrors.GetHTTPStatus(err), gin.H{
		"error": gin.H{
			"kind":    apperrors.KindOf(err),
			"message": err.Error(),
		},
	})
}

// MustRequestContext returns the resolved context for a handler. Only called
// behind the middleware, so absence is a programming error surfaced as
// Unauthorized rather than a panic.
func MustRequestContext(c *gin.Context) *RequestContext {
	if v, ok := c.Get(GinContextKey); ok {
		if rc, ok := v.(*RequestContext); ok {
			return rc
		}
	}
	return &RequestContext{TenantID: PublicTenant}
}
