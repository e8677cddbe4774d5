package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/common/config"
	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/memory"
)

// Header names accepted by the resolver.
const (
	HeaderAPIKey   = "X-API-Key"
	HeaderTenantID = "X-Tenant-Id"
	HeaderAgentID  = "X-Agent-Id"
)

// Resolver maps request credentials to a RequestContext. Two credential
// modes: API keys (hashed and looked up) and HMAC-signed identity tokens
// (subject claim becomes the user, organization claim selects the tenant).
type Resolver struct {
	store     memory.Store
	jwtSecret []byte
	logger    *logger.Logger
}

// NewResolver creates a resolver backed by the credential tables.
func NewResolver(store memory.Store, cfg config.AuthConfig, log *logger.Logger) *Resolver {
	return &Resolver{
		store:     store,
		jwtSecret: []byte(cfg.JWTSecret),
		logger:    log.WithFields(zap.String("component", "auth")),
	}
}

// HashKey returns the hex SHA-256 of a raw API key. Raw keys are never
// stored or logged.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Resolve authenticates the request and returns its tenant-scoped context.
// The X-Tenant-Id override is honored only for recorded members of the
// target tenant; otherwise the original tenant is silently retained.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*RequestContext, error) {
	credential := req.Header.Get(HeaderAPIKey)
	if credential == "" {
		authz := req.Header.Get("Authorization")
		if strings.HasPrefix(authz, "Bearer ") {
			credential = strings.TrimPrefix(authz, "Bearer ")
		}
	}
	if credential == "" {
		return nil, apperrors.Unauthorized("missing credentials")
	}

	var rc *RequestContext
	var err error
	if looksLikeJWT(credential) {
		rc, err = r.resolveToken(ctx, credential)
	} else {
		rc, err = r.resolveAPIKey(ctx, credential)
	}
	if err != nil {
		return nil, err
	}

	if override := req.Header.Get(HeaderTenantID); override != "" && override != rc.TenantID {
		principal := rc.UserID
		if principal == "" {
			principal = rc.APIKeyID
		}
		member, merr := r.store.IsTenantMember(ctx, principal, override)
		if merr != nil {
			return nil, merr
		}
		if member {
			rc.TenantID = override
		} else {
			r.logger.Debug("tenant override ignored",
				zap.String("tenant_id", rc.TenantID),
				zap.String("requested", override))
		}
	}

	rc.AgentID = req.Header.Get(HeaderAgentID)
	return rc, nil
}

func (r *Resolver) resolveAPIKey(ctx context.Context, raw string) (*RequestContext, error) {
	key, err := r.store.LookupAPIKey(ctx, HashKey(raw))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthorized("invalid api key")
		}
		return nil, err
	}
	return &RequestContext{
		TenantID: key.TenantID,
		UserID:   key.UserID,
		APIKeyID: key.ID,
		Scopes:   key.Scopes,
	}, nil
}

type identityClaims struct {
	Org string `json:"org"`
	jwt.RegisteredClaims
}

func (r *Resolver) resolveToken(ctx context.Context, raw string) (*RequestContext, error) {
	if len(r.jwtSecret) == 0 {
		return nil, apperrors.Unauthorized("identity tokens are not enabled")
	}

	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.Unauthorized("unexpected token signing method")
		}
		return r.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.Unauthorized("invalid identity token")
	}
	if claims.Org == "" {
		return nil, apperrors.Unauthorized("identity token has no organization claim")
	}

	exists, err := r.store.TenantExists(ctx, claims.Org)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.UnknownTenant(claims.Org)
	}

	return &RequestContext{
		TenantID: claims.Org,
		UserID:   claims.Subject,
	}, nil
}

// looksLikeJWT distinguishes identity tokens from opaque API keys sent via
// the same Authorization header.
func looksLikeJWT(credential string) bool {
	return strings.Count(credential, ".") == 2 && strings.HasPrefix(credential, "eyJ")
}
