package httpmw

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/neuralhub/neuralhub/internal/auth"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/common/tracing"
)

// OtelTracing wraps each request in an OTel span stamped with the resolved
// hub identity: tenant, calling agent, and the error kind when the request
// failed. When tracing is disabled (no OTEL_EXPORTER_OTLP_ENDPOINT), this is
// a no-op. surface names the listener ("api" or "ws").
func OtelTracing(surface string) gin.HandlerFunc {
	tracer := tracing.Tracer(surface)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		ctx, span := tracer.Start(c.Request.Context(), fmt.Sprintf("%s %s", c.Request.Method, route))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPResponseStatusCodeKey.Int(status),
			attribute.String("hub.surface", surface),
		}
		// Credentials resolve downstream of this middleware, so the
		// identity is only readable once the chain has run.
		if rc := auth.MustRequestContext(c); rc.TenantID != auth.PublicTenant {
			attrs = append(attrs, attribute.String("hub.tenant_id", rc.TenantID))
			if rc.AgentID != "" {
				attrs = append(attrs, attribute.String("hub.agent_id", rc.AgentID))
			}
		}
		if kind := c.Writer.Header().Get(auth.ErrorKindHeader); kind != "" {
			attrs = append(attrs, attribute.String("hub.error_kind", kind))
		}
		if id, ok := c.Request.Context().Value(logger.CorrelationIDKey).(string); ok && id != "" {
			attrs = append(attrs, attribute.String("hub.correlation_id", id))
		}
		span.SetAttributes(attrs...)
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}
