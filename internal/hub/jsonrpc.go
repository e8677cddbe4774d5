package hub

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/neuralhub/neuralhub/internal/auth"
	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
)

// JSON-RPC 2.0 protocol error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// handleMCP serves the JSON-RPC surface: tools/list and tools/call. Tool
// failures are JSON-RPC successes carrying isError:true, with the structured
// kind in the X-Mcp-Error-Kind header; protocol failures use JSON-RPC error
// objects.
func (s *Server) handleMCP(c *gin.Context) {
	var req rpcRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: "failed to parse request"},
		})
		return
	}
	if req.JSONRPC != "2.0" {
		c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: codeInvalidRequest, Message: "jsonrpc must be \"2.0\""},
		})
		return
	}

	rc := auth.MustRequestContext(c)

	switch req.Method {
	case "tools/list":
		c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Result: gin.H{"tools": s.dispatcher.Tools()},
		})

	case "tools/call":
		var params callParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			c.JSON(http.StatusOK, rpcResponse{
				JSONRPC: "2.0", ID: req.ID,
				Error: &rpcError{Code: codeInvalidParams, Message: "params must be {name, arguments}"},
			})
			return
		}

		result, err := s.dispatcher.Call(c.Request.Context(), rc, params.Name, params.Arguments)
		if err != nil {
			c.Header(auth.ErrorKindHeader, string(apperrors.KindOf(err)))
		}
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})

	default:
		c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: codeMethodNotFound, Message: "unknown method: " + req.Method},
		})
	}
}
