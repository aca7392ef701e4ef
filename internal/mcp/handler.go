package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/genmedia/mcpgen/internal/apperr"
	"github.com/genmedia/mcpgen/internal/config"
	"github.com/genmedia/mcpgen/internal/response"
	"github.com/genmedia/mcpgen/internal/tools"
)

// DefaultMaxBodyBytes bounds a request body. Inline base64 images must fit.
const DefaultMaxBodyBytes = 32 << 20

// ToolCaller runs a named tool. *tools.Service satisfies it.
type ToolCaller interface {
	Call(ctx context.Context, name string, args json.RawMessage) (interface{}, error)
}

// Handler answers MCP requests on one endpoint.
type Handler struct {
	tools   ToolCaller
	defs    []tools.Tool
	info    ServerInfo
	maxBody int64

	mu       sync.Mutex
	sessions map[string]struct{}
}

// NewHandler returns a Handler that lists defs and dispatches calls to caller.
func NewHandler(caller ToolCaller, defs []tools.Tool, info ServerInfo) *Handler {
	return &Handler{
		tools:    caller,
		defs:     defs,
		info:     info,
		maxBody:  DefaultMaxBodyBytes,
		sessions: make(map[string]struct{}),
	}
}

// ServeHTTP implements http.Handler.
//
//	POST   JSON-RPC request, notification or batch
//	DELETE end the session named by Mcp-Session-Id
//	other  405; this server does not offer a server-initiated stream
//
//	@Summary		Model Context Protocol endpoint
//	@Description	JSON-RPC 2.0 endpoint: initialize, ping, tools/list, tools/call. Notifications are answered with 202 and no body.
//	@Tags			mcp
//	@Accept			json
//	@Produce		json
//	@Security		ApiKeyAuth
//	@Param			request	body		Request	true	"JSON-RPC request or batch"
//	@Success		200		{object}	Response
//	@Success		202
//	@Failure		400		{object}	Response
//	@Failure		401		{object}	response.Envelope
//	@Failure		403		{object}	response.Envelope
//	@Router			/mcp [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		response.MethodNotAllowed(w, "POST, DELETE")
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionHeader)
	h.mu.Lock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		response.Error(w, http.StatusNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse(nil, CodeInvalidRequest, "Request too large", err.Error()), "")
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error", err.Error()), "")
		return
	}
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '[' {
		h.handleBatch(w, r, body)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error", err.Error()), "")
		return
	}

	resp, session := h.dispatch(r.Context(), &req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp, session)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request, body []byte) {
	var reqs []Request
	if err := json.Unmarshal(body, &reqs); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error", err.Error()), "")
		return
	}
	if len(reqs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, CodeInvalidRequest, "Invalid Request", "empty batch"), "")
		return
	}

	var (
		out     []*Response
		session string
	)
	for i := range reqs {
		resp, s := h.dispatch(r.Context(), &reqs[i])
		if s != "" {
			session = s
		}
		if resp != nil {
			out = append(out, resp)
		}
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, out, session)
}

// dispatch routes one request. It returns nil for notifications, plus the
// session id to announce when the request was initialize.
func (h *Handler) dispatch(ctx context.Context, req *Request) (*Response, string) {
	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.IsNotification() {
			return nil, ""
		}
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request", "jsonrpc must be \"2.0\" and method is required"), ""
	}
	if req.IsNotification() {
		config.Debugf("[mcp] notification %s", req.Method)
		return nil, ""
	}

	switch req.Method {
	case "initialize":
		return h.handleInitialize(req)
	case "ping":
		return resultResponse(req.ID, map[string]interface{}{}), ""
	case "tools/list":
		return resultResponse(req.ID, map[string]interface{}{"tools": h.defs}), ""
	case "tools/call":
		return h.handleToolsCall(ctx, req), ""
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil), ""
	}
}

func (h *Handler) handleInitialize(req *Request) (*Response, string) {
	var p initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error()), ""
		}
	}
	version := p.ProtocolVersion
	if !supportedVersions[version] {
		version = LatestProtocolVersion
	}

	session := uuid.NewString()
	h.mu.Lock()
	h.sessions[session] = struct{}{}
	h.mu.Unlock()
	log.Printf("[mcp] session %s initialized by %s %s (protocol %s)", session, p.ClientInfo.Name, p.ClientInfo.Version, version)

	return resultResponse(req.ID, map[string]interface{}{
		"protocolVersion": version,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{"listChanged": false},
		},
		"serverInfo": h.info,
	}), session
}

func (h *Handler) handleToolsCall(ctx context.Context, req *Request) *Response {
	var p toolCallParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	}
	if strings.TrimSpace(p.Name) == "" {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params", "tool name is required")
	}

	result, err := h.tools.Call(ctx, p.Name, p.Arguments)
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return errorResponse(req.ID, CodeInvalidParams, "Unknown tool", err.Error())
	case errors.Is(err, apperr.ErrValidation):
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	case err != nil:
		return errorResponse(req.ID, CodeToolFailed, "Tool execution failed", err.Error())
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResponse(req.ID, CodeInternalError, "Internal error", err.Error())
	}
	return resultResponse(req.ID, toolCallResult{
		Content:           []textContent{{Type: "text", Text: string(text)}},
		StructuredContent: result,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, session string) {
	if session != "" {
		w.Header().Set(SessionHeader, session)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[mcp] failed to encode response: %v", err)
	}
}
