package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/genmedia/mcpgen/internal/apperr"
	"github.com/genmedia/mcpgen/internal/tools"
)

type stubTools struct {
	calls []string
}

func (s *stubTools) Call(_ context.Context, name string, args json.RawMessage) (interface{}, error) {
	s.calls = append(s.calls, name)
	switch name {
	case "echo":
		var m map[string]interface{}
		if err := json.Unmarshal(args, &m); err != nil {
			return nil, err
		}
		return map[string]interface{}{"url": "http://localhost:8000/static/x.png", "args": m}, nil
	case "invalid":
		return nil, apperr.Validation("arguments", "prompt is required")
	case "broken":
		return nil, errors.New("upstream exploded")
	default:
		return nil, fmt.Errorf("%w: %s", tools.ErrUnknownTool, name)
	}
}

func newTestHandler() (*Handler, *stubTools) {
	st := &stubTools{}
	return NewHandler(st, tools.Definitions(), ServerInfo{Name: "mcpgen", Version: "test"}), st
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestInitializeIssuesSession(t *testing.T) {
	h, _ := newTestHandler()
	rec := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"t","version":"1"}}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	session := rec.Header().Get(SessionHeader)
	if session == "" {
		t.Fatal("no session header")
	}
	resp := decode(t, rec)
	if string(resp.ID) != "1" || resp.Error != nil {
		t.Fatalf("resp = %+v", resp)
	}
	result := resp.Result.(map[string]interface{})
	if result["protocolVersion"] != "2025-03-26" {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	if result["serverInfo"].(map[string]interface{})["name"] != "mcpgen" {
		t.Errorf("serverInfo = %v", result["serverInfo"])
	}

	// A second initialize gets a different session.
	rec2 := post(t, h, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`)
	if rec2.Header().Get(SessionHeader) == session {
		t.Error("session ids should be unique")
	}
	if v := decode(t, rec2).Result.(map[string]interface{})["protocolVersion"]; v != LatestProtocolVersion {
		t.Errorf("unknown version should fall back to latest, got %v", v)
	}

	// DELETE ends it once.
	del := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	del.Header.Set(SessionHeader, session)
	drec := httptest.NewRecorder()
	h.ServeHTTP(drec, del)
	if drec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d", drec.Code)
	}
	drec = httptest.NewRecorder()
	h.ServeHTTP(drec, del)
	if drec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d", drec.Code)
	}
}

func TestNotificationIsAccepted(t *testing.T) {
	h, st := newTestHandler()
	rec := post(t, h, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if rec.Code != http.StatusAccepted || rec.Body.Len() != 0 {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body.String())
	}
	if len(st.calls) != 0 {
		t.Error("notification must not reach tools")
	}
}

func TestGetIsNotAllowed(t *testing.T) {
	h, _ := newTestHandler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPingAndToolsList(t *testing.T) {
	h, _ := newTestHandler()

	resp := decode(t, post(t, h, `{"jsonrpc":"2.0","id":"p","method":"ping"}`))
	if string(resp.ID) != `"p"` || resp.Error != nil {
		t.Errorf("ping = %+v", resp)
	}

	resp = decode(t, post(t, h, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	list := resp.Result.(map[string]interface{})["tools"].([]interface{})
	if len(list) != len(tools.Definitions()) {
		t.Fatalf("tools = %d", len(list))
	}
	names := map[string]bool{}
	for _, tl := range list {
		names[tl.(map[string]interface{})["name"].(string)] = true
	}
	for _, want := range []string{"create_visualization", "analyze_image", "text_to_speech", "create_video"} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}
}

func TestToolsCall(t *testing.T) {
	h, st := newTestHandler()
	resp := decode(t, post(t, h, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"prompt":"hi"}}}`))
	if resp.Error != nil {
		t.Fatalf("error = %+v", resp.Error)
	}
	result := resp.Result.(map[string]interface{})
	content := result["content"].([]interface{})
	if len(content) != 1 {
		t.Fatalf("content = %v", content)
	}
	text := content[0].(map[string]interface{})["text"].(string)
	if !strings.Contains(text, "http://localhost:8000/static/x.png") {
		t.Errorf("text = %q", text)
	}
	if result["isError"] != false {
		t.Errorf("isError = %v", result["isError"])
	}
	sc := result["structuredContent"].(map[string]interface{})
	if sc["url"] != "http://localhost:8000/static/x.png" {
		t.Errorf("structuredContent = %v", sc)
	}
	if len(st.calls) != 1 || st.calls[0] != "echo" {
		t.Errorf("calls = %v", st.calls)
	}
}

func TestErrorCodes(t *testing.T) {
	h, _ := newTestHandler()
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   int
	}{
		{"parse error", `{"jsonrpc":`, http.StatusBadRequest, CodeParseError},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, http.StatusOK, CodeMethodNotFound},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, http.StatusOK, CodeInvalidRequest},
		{"call without name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, http.StatusOK, CodeInvalidParams},
		{"call with bad params", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":"x"}`, http.StatusOK, CodeInvalidParams},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`, http.StatusOK, CodeInvalidParams},
		{"invalid arguments", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"invalid"}}`, http.StatusOK, CodeInvalidParams},
		{"tool failure", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"broken"}}`, http.StatusOK, CodeToolFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			resp := decode(t, rec)
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %d", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestToolFailureCarriesMessage(t *testing.T) {
	h, _ := newTestHandler()
	resp := decode(t, post(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"broken"}}`))
	if resp.Error == nil || resp.Error.Data != "upstream exploded" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestBatch(t *testing.T) {
	h, _ := newTestHandler()

	rec := post(t, h, `[
		{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}},
		{"jsonrpc":"2.0","method":"notifications/initialized"},
		{"jsonrpc":"2.0","id":2,"method":"ping"}
	]`)
	if rec.Code != http.StatusOK || rec.Header().Get(SessionHeader) == "" {
		t.Fatalf("status = %d session = %q", rec.Code, rec.Header().Get(SessionHeader))
	}
	var out []Response
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Errorf("responses = %d, want 2", len(out))
	}

	rec = post(t, h, `[{"jsonrpc":"2.0","method":"notifications/initialized"}]`)
	if rec.Code != http.StatusAccepted {
		t.Errorf("notification-only batch status = %d", rec.Code)
	}

	rec = post(t, h, `[]`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d", rec.Code)
	}
}

func TestBodyTooLarge(t *testing.T) {
	h, _ := newTestHandler()
	h.maxBody = 16
	rec := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"padding":"xxxxxxxx"}}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d", rec.Code)
	}
}
