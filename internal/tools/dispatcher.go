// Package tools owns the MCP tool surface: declarations, input validation,
// alias normalization, and dispatch into the domain services. Tool handlers
// receive the resolved tenant from the request context; tenant-looking
// fields inside arguments are data, never identity.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/agent/registry"
	"github.com/neuralhub/neuralhub/internal/auth"
	"github.com/neuralhub/neuralhub/internal/cache"
	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/memory"
	"github.com/neuralhub/neuralhub/internal/router"
	"github.com/neuralhub/neuralhub/internal/session"
)

// Scopes attached to tools. Keys without explicit scopes pass everything.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// handlerFunc executes one tool call and returns a JSON-encodable result.
type handlerFunc func(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error)

type toolSpec struct {
	tool    mcp.Tool
	schema  *jsonschema.Schema
	scope   string
	handler handlerFunc
}

// Dispatcher validates and routes tool calls.
type Dispatcher struct {
	store    memory.Store
	registry *registry.Registry
	router   *router.Router
	sessions *session.Manager
	cache    *cache.Cache
	logger   *logger.Logger

	specs map[string]*toolSpec
	order []string
}

// New builds the dispatcher and registers the tool set.
func New(store memory.Store, reg *registry.Registry, rt *router.Router, sm *session.Manager, c *cache.Cache, log *logger.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		store:    store,
		registry: reg,
		router:   rt,
		sessions: sm,
		cache:    c,
		logger:   log.WithFields(zap.String("component", "tools")),
		specs:    make(map[string]*toolSpec),
	}
	if err := d.registerAll(); err != nil {
		return nil, err
	}
	return d, nil
}

// register compiles the tool's declared input schema and adds it to the set.
func (d *Dispatcher) register(tool mcp.Tool, scope string, handler handlerFunc) error {
	raw, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return fmt.Errorf("failed to encode schema for %s: %w", tool.Name, err)
	}
	schema, err := jsonschema.CompileString(tool.Name+".json", string(raw))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", tool.Name, err)
	}
	d.specs[tool.Name] = &toolSpec{tool: tool, schema: schema, scope: scope, handler: handler}
	d.order = append(d.order, tool.Name)
	return nil
}

// Tools returns the declared tool list for tools/list, in registration order.
func (d *Dispatcher) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.specs[name].tool)
	}
	return out
}

// Call validates arguments and runs the named tool. The returned
// CallToolResult is always non-nil; err carries the error kind for the
// transport's side channel and is set exactly when the result is an error.
func (d *Dispatcher) Call(ctx context.Context, rc *auth.RequestContext, name string, args map[string]any) (res *mcp.CallToolResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("tool handler panicked",
				zap.String("tool", name),
				zap.Any("panic", p),
				zap.String("stack", string(debug.Stack())))
			err = apperrors.Storage(fmt.Sprintf("tool %s failed", name), fmt.Errorf("panic: %v", p))
			res = mcp.NewToolResultError(err.Error())
		}
	}()

	spec, ok := d.specs[name]
	if !ok {
		err = apperrors.NotFound("tool", name)
		return mcp.NewToolResultError(err.Error()), err
	}
	if rc == nil || rc.TenantID == "" || rc.TenantID == auth.PublicTenant {
		err = apperrors.Unauthorized("tool calls require an authenticated tenant")
		return mcp.NewToolResultError(err.Error()), err
	}
	if !rc.HasScope(spec.scope) {
		err = apperrors.Forbidden(fmt.Sprintf("scope '%s' required for %s", spec.scope, name))
		return mcp.NewToolResultError(err.Error()), err
	}

	if args == nil {
		args = map[string]any{}
	}
	args = normalizeAliases(args)

	if verr := spec.schema.Validate(toPlain(args)); verr != nil {
		err = schemaError(verr)
		return mcp.NewToolResultError(err.Error()), err
	}

	d.touchCaller(ctx, rc)

	out, herr := spec.handler(ctx, rc, args)
	if herr != nil {
		d.logger.WithContext(ctx).Warn("tool call failed",
			zap.String("tool", name),
			zap.String("tenant_id", rc.TenantID),
			zap.String("kind", string(apperrors.KindOf(herr))))
		return mcp.NewToolResultError(herr.Error()), herr
	}

	encoded, merr := json.Marshal(out)
	if merr != nil {
		err = apperrors.Storage("failed to encode tool result", merr)
		return mcp.NewToolResultError(err.Error()), err
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

// touchCaller refreshes the calling agent's last_seen. Unregistered callers
// are fine; presence only tracks registered agents.
func (d *Dispatcher) touchCaller(ctx context.Context, rc *auth.RequestContext) {
	if rc.AgentID == "" {
		return
	}
	if err := d.registry.Heartbeat(ctx, rc.TenantID, rc.AgentID, memory.AgentOnline); err != nil && !apperrors.IsNotFound(err) {
		d.logger.Debug("failed to touch calling agent", zap.Error(err))
	}
}

// invalidate drops the tenant's cached reads after a mutation.
func (d *Dispatcher) invalidate(tenantID string) {
	if d.cache != nil {
		d.cache.InvalidatePrefix(tenantID + ":")
	}
}

// normalizeAliases rewrites legacy wire fields before validation:
// agentId → to, message → content, capabilities → toCapabilities. The
// canonical field wins when both are present.
func normalizeAliases(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if _, ok := out["to"]; !ok {
		if v, ok := out["agentId"]; ok {
			out["to"] = v
		}
	}
	if _, ok := out["content"]; !ok {
		if v, ok := out["message"]; ok {
			out["content"] = v
			delete(out, "message")
		}
	}
	if _, ok := out["toCapabilities"]; !ok {
		if v, ok := out["capabilities"]; ok {
			out["toCapabilities"] = v
		}
	}
	return out
}

// toPlain round-trips the arguments through JSON so the validator sees plain
// json types (float64 numbers, []any arrays).
func toPlain(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return args
	}
	return plain
}

// schemaError converts a validation failure into InvalidArgument with the
// offending field path.
func schemaError(err error) error {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		field := leaf.InstanceLocation
		if field == "" {
			field = "arguments"
		}
		return apperrors.InvalidArgument(field, leaf.Message)
	}
	return apperrors.InvalidArgument("arguments", err.Error())
}

// Argument helpers. Schema validation runs first, so type mismatches here
// only happen for optional absent fields.

func strArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func boolArg(args map[string]any, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func floatArg(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func strSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func strMapArg(args map[string]any, key string) map[string]string {
	raw, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
