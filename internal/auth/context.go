// Package auth resolves request credentials into a tenant-scoped request
// context. The resolver is the only source of tenant identity; payload
// fields named tenantId are data, never authorization.
package auth

import "context"

// PublicTenant is the tenant assigned to unauthenticated public paths. It
// carries no tool scope.
const PublicTenant = "_public"

// RequestContext is the resolved identity attached to every request.
type RequestContext struct {
	TenantID string
	UserID   string
	APIKeyID string
	AgentID  string
	Scopes   []string
}

// HasScope reports whether the context carries the named scope. An empty
// scope list means unrestricted (API keys without scoping).
func (rc *RequestContext) HasScope(scope string) bool {
	if len(rc.Scopes) == 0 {
		return true
	}
	for _, s := range rc.Scopes {
		if s == scope || s == "admin" {
			return true
		}
	}
	return false
}

type requestContextKey struct{}

// WithRequestContext attaches the resolved identity to the context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext extracts the resolved identity, or nil.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}
