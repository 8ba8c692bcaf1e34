package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTransport builds a transport mounted on a fresh Echo router.
func newTestTransport(t *testing.T, opts ...func(*HTTPTransportConfig)) (*HTTPTransport, *Handler, *echo.Echo) {
	t.Helper()
	h := newTestHandler(t)
	cfg := HTTPTransportConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	transport := NewHTTPTransport(h, nil, cfg)
	e := echo.New()
	transport.RegisterRoutes(e)
	return transport, h, e
}

// postJSON performs a POST /mcp with a JSON accept header.
func postJSON(e *echo.Echo, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// initOverHTTP runs initialize over POST and returns the session id
// from the response header.
func initOverHTTP(t *testing.T, e *echo.Echo) string {
	t.Helper()
	body := mustMarshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      "init",
		"method":  "initialize",
		"params": InitializeParams{
			ProtocolVersion: ProtocolVersion20251125,
			ClientInfo:      map[string]interface{}{"name": "test-client"},
		},
	})
	rec := postJSON(e, body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)
	return sessionID
}

// TestHTTP_InitializeFlow tests the full initialize exchange over POST.
//
// This test verifies:
//   - The session id arrives in the Mcp-Session-Id header
//   - The negotiated protocol version arrives in MCP-Protocol-Version
//   - CORS headers expose both
func TestHTTP_InitializeFlow(t *testing.T) {
	_, _, e := newTestTransport(t)

	body := mustMarshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      "1",
		"method":  "initialize",
		"params": InitializeParams{
			ProtocolVersion: ProtocolVersion20250618,
			ClientInfo:      map[string]interface{}{"name": "c"},
		},
	})
	rec := postJSON(e, body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Mcp-Session-Id"))
	assert.Equal(t, ProtocolVersion20250618, rec.Header().Get("MCP-Protocol-Version"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Mcp-Session-Id")

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
}

func TestHTTP_ServerInfo(t *testing.T) {
	_, h, e := newTestTransport(t)
	registerEchoTool(t, h, "search", nil)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "streamable-http", info["transport"])

	tools := info["tools"].(map[string]interface{})
	assert.Equal(t, float64(1), tools["count"])

	server := info["server"].(map[string]interface{})
	assert.Equal(t, "test-server", server["name"])
}

func TestHTTP_Options(t *testing.T) {
	_, _, e := newTestTransport(t)

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID")
}

// TestHTTP_PostErrors tests the status mapping of malformed requests.
//
// This test verifies:
//   - Empty and unparseable bodies are 400 with -32700
//   - Oversized bodies are 400 with -32600
//   - Handler-level errors ride a 200
func TestHTTP_PostErrors(t *testing.T) {
	_, _, e := newTestTransport(t, func(cfg *HTTPTransportConfig) {
		cfg.MaxBodyBytes = 256
	})

	t.Run("empty body", func(t *testing.T) {
		rec := postJSON(e, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, ParseError, resp.Error.Code)
		assert.Equal(t, "Parse error: Empty body", resp.Error.Message)
	})

	t.Run("unparseable body", func(t *testing.T) {
		rec := postJSON(e, []byte("{not json"), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, ParseError, resp.Error.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		rec := postJSON(e, bytes.Repeat([]byte("a"), 300), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidRequest, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "Request body too large (max 256 bytes)")
	})

	t.Run("method not found is 200", func(t *testing.T) {
		sessionID := initOverHTTP(t, e)
		body := mustMarshal(map[string]interface{}{
			"jsonrpc": "2.0", "id": "1", "method": "bogus/method",
		})
		rec := postJSON(e, body, map[string]string{"Mcp-Session-Id": sessionID})
		assert.Equal(t, http.StatusOK, rec.Code)
		var resp Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, MethodNotFound, resp.Error.Code)
	})
}

func TestHTTP_ToolCallJSON(t *testing.T) {
	_, h, e := newTestTransport(t)
	registerEchoTool(t, h, "echo", []*Parameter{{Name: "text", Type: TypeString, Required: true}})
	sessionID := initOverHTTP(t, e)

	body := mustMarshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": "1", "method": "tools/call",
		"params": map[string]interface{}{
			"name":      "echo",
			"arguments": map[string]interface{}{"text": "hello"},
		},
	})
	rec := postJSON(e, body, map[string]string{"Mcp-Session-Id": sessionID})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
}

func TestHTTP_NotificationAccepted(t *testing.T) {
	_, _, e := newTestTransport(t)
	sessionID := initOverHTTP(t, e)

	body := mustMarshal(map[string]interface{}{
		"jsonrpc": "2.0", "method": "notifications/initialized",
	})
	rec := postJSON(e, body, map[string]string{"Mcp-Session-Id": sessionID})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

// TestHTTP_PostSSE tests a tools/call answered over a per-request SSE
// stream.
func TestHTTP_PostSSE(t *testing.T) {
	_, h, e := newTestTransport(t)
	registerEchoTool(t, h, "echo", nil)
	sessionID := initOverHTTP(t, e)

	body := mustMarshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": "1", "method": "tools/call",
		"params": map[string]interface{}{"name": "echo"},
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	raw := rec.Body.String()
	assert.Contains(t, raw, "event: message\r\n")
	assert.Contains(t, raw, "id: 1\r\n")
	assert.Contains(t, raw, `"jsonrpc":"2.0"`)
}

func TestHTTP_PostSSE_ErrorEvent(t *testing.T) {
	_, _, e := newTestTransport(t)
	sessionID := initOverHTTP(t, e)

	body := mustMarshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": "1", "method": "tools/call",
		"params": map[string]interface{}{"name": "missing_tool"},
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: error\r\n")
}

// TestHTTP_PostSSE_ProgressInterleave tests a tools/call whose tool
// reports progress while running.
//
// This test verifies:
//   - Each progress report arrives as a server_request event carrying
//     notifications/progress with the client's token
//   - All progress events precede the final message event
//   - The final message event carries the tool result
func TestHTTP_PostSSE_ProgressInterleave(t *testing.T) {
	_, h, e := newTestTransport(t)
	sessionID := initOverHTTP(t, e)

	tool, err := NewTool("crawl", "Reports progress then finishes", nil,
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			helpers := HelpersFromContext(ctx)
			if helpers == nil {
				return nil, NewMCPError(InternalError, "no helpers in scope")
			}
			total := 2.0
			for step := 1; step <= 2; step++ {
				if err := helpers.SendProgress(ctx, helpers.ProgressToken(), float64(step), &total); err != nil {
					return nil, err
				}
			}
			return "done", nil
		})
	require.NoError(t, err)
	h.RegisterTool(tool)

	body := mustMarshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": "7", "method": "tools/call",
		"params": map[string]interface{}{
			"name":  "crawl",
			"_meta": map[string]interface{}{"progressToken": "tok-1"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSEEvents(t, rec.Body.String())
	require.Len(t, events, 3)

	for i, ev := range events[:2] {
		assert.Equal(t, "server_request", ev["event"], "event %d", i)

		var note Message
		require.NoError(t, json.Unmarshal([]byte(ev["data"]), &note))
		assert.Equal(t, "notifications/progress", note.Method)
		assert.Nil(t, note.ID)

		var params map[string]interface{}
		require.NoError(t, json.Unmarshal(note.Params, &params))
		assert.Equal(t, "tok-1", params["progressToken"])
		assert.Equal(t, float64(i+1), params["progress"])
		assert.Equal(t, float64(2), params["total"])
	}

	final := events[2]
	assert.Equal(t, "message", final["event"])
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(final["data"]), &resp))
	require.Nil(t, resp.Error)
	assert.Equal(t, "7", resp.ID)

	// Event ids are sequential so a replay can resume after a drop.
	assert.Equal(t, []string{"1", "2", "3"}, []string{events[0]["id"], events[1]["id"], events[2]["id"]})
}

// TestHTTP_Stream_ServerOriginatedFraming tests framing on the
// persistent GET stream.
//
// This test verifies:
//   - A server-originated notification (method, no id) rides a
//     server_request event, not a message event
//   - A server-initiated request (method and id) does too
func TestHTTP_Stream_ServerOriginatedFraming(t *testing.T) {
	transport, h, e := newTestTransport(t)
	sessionID := initOverHTTP(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil).WithContext(ctx)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return transport.hub.sender(sessionID) != nil
	}, time.Second, 5*time.Millisecond)

	transport.hub.broadcast(&Message{
		JSONRPC: JSONRPCVersion,
		Method:  "notifications/tasks/status",
		Params:  json.RawMessage(`{"taskId":"t1","status":"working"}`),
	})
	transport.hub.broadcast(&Message{
		JSONRPC: JSONRPCVersion,
		ID:      "srv-1",
		Method:  "roots/list",
	})

	// emit buffers every event for replay; wait on the buffer rather
	// than the recorder, which the serve loop is still writing to.
	require.Eventually(t, func() bool {
		return len(h.Events().After(sessionID, 0)) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	events := parseSSEEvents(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "server_request", events[0]["event"])
	assert.Equal(t, "server_request", events[1]["event"])

	var note Message
	require.NoError(t, json.Unmarshal([]byte(events[0]["data"]), &note))
	assert.Equal(t, "notifications/tasks/status", note.Method)
	assert.Nil(t, note.ID)
}

// TestHTTP_Replay tests the Last-Event-ID resume path.
func TestHTTP_Replay(t *testing.T) {
	transport, h, e := newTestTransport(t)
	sessionID := initOverHTTP(t, e)
	_ = transport

	// Seed the replay buffer as a previous stream would have.
	for i := 0; i < 3; i++ {
		id := h.Events().NextID(sessionID)
		payload := mustMarshal(map[string]interface{}{"seq": id})
		h.Events().Buffer(sessionID, id, SSEEventMessage, payload)
	}

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	raw := rec.Body.String()
	assert.NotContains(t, raw, "id: 1\r\n")
	assert.Contains(t, raw, "id: 2\r\n")
	assert.Contains(t, raw, "id: 3\r\n")
}

func TestHTTP_Replay_InvalidLastEventID(t *testing.T) {
	_, _, e := newTestTransport(t)
	sessionID := initOverHTTP(t, e)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)
	req.Header.Set("Last-Event-ID", "not-a-number")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_StreamRequiresSession(t *testing.T) {
	_, _, e := newTestTransport(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing session ID")
}

// TestHTTP_Delete tests session termination.
func TestHTTP_Delete(t *testing.T) {
	_, h, e := newTestTransport(t)
	sessionID := initOverHTTP(t, e)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set("Mcp-Session-Id", sessionID)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"terminated"`)
	assert.Nil(t, h.Sessions().Get(sessionID))

	// Deleting again reports the session as unknown.
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), `"status":"unknown_session"`)

	// Missing header is a 400.
	req = httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestHTTP_Respond tests the client-reply endpoint.
func TestHTTP_Respond(t *testing.T) {
	_, h, e := newTestTransport(t)

	t.Run("no pending request", func(t *testing.T) {
		body := mustMarshal(map[string]interface{}{
			"jsonrpc": "2.0", "id": "srv-unknown",
			"result": map[string]interface{}{},
		})
		req := httptest.NewRequest(http.MethodPost, "/mcp/respond", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "No pending request with that id")
	})

	t.Run("resolves a pending request", func(t *testing.T) {
		delivered := make(chan *Message, 1)
		go func() {
			reply, err := h.callClient(context.Background(),
				func(context.Context, *Message) error { return nil },
				&Message{JSONRPC: JSONRPCVersion, ID: "srv-wait", Method: "roots/list"})
			if err == nil {
				delivered <- reply
			}
		}()

		// Wait for the request to be registered as pending.
		require.Eventually(t, func() bool {
			h.mu.Lock()
			defer h.mu.Unlock()
			_, ok := h.pending["srv-wait"]
			return ok
		}, time.Second, 5*time.Millisecond)

		body := mustMarshal(map[string]interface{}{
			"jsonrpc": "2.0", "id": "srv-wait",
			"result": map[string]interface{}{"roots": []interface{}{}},
		})
		req := httptest.NewRequest(http.MethodPost, "/mcp/respond", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusAccepted, rec.Code)

		select {
		case reply := <-delivered:
			assert.NotNil(t, reply.Result)
		case <-time.After(time.Second):
			t.Fatal("reply never reached the waiting caller")
		}
	})

	t.Run("request body rejected", func(t *testing.T) {
		body := mustMarshal(map[string]interface{}{
			"jsonrpc": "2.0", "id": "1", "method": "ping",
		})
		req := httptest.NewRequest(http.MethodPost, "/mcp/respond", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "must be a JSON-RPC response")
	})
}

// TestHTTP_RateLimit tests the 429 path with a tiny bucket.
func TestHTTP_RateLimit(t *testing.T) {
	_, _, e := newTestTransport(t, func(cfg *HTTPTransportConfig) {
		cfg.RateLimitEnabled = true
		cfg.RateLimit = 1
		cfg.RateBurst = 2
	})

	body := mustMarshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": "1", "method": "initialize",
		"params": InitializeParams{ProtocolVersion: ProtocolVersion20251125},
	})

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		rec := postJSON(e, body, nil)
		codes[rec.Code]++
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, 2, codes[http.StatusOK], "burst of 2 passes")
	assert.GreaterOrEqual(t, codes[http.StatusTooManyRequests], 2)
}

func TestBearerToken(t *testing.T) {
	transport, _, e := newTestTransport(t)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "plain bearer", header: "Bearer tok123", want: "tok123"},
		{name: "doubled prefix", header: "Bearer Bearer tok123", want: "tok123"},
		{name: "case insensitive", header: "bearer tok123", want: "tok123"},
		{name: "missing", header: "", want: ""},
		{name: "wrong scheme", header: "Basic dXNlcg==", want: ""},
		{name: "prefix only", header: "Bearer", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())
			assert.Equal(t, tt.want, transport.bearerToken(c))
		})
	}
}

func TestHTTPStatusFor(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want int
	}{
		{name: "success", resp: NewResponse("1", map[string]interface{}{}), want: http.StatusOK},
		{name: "parse error", resp: NewErrorResponse(nil, ParseError, "x"), want: http.StatusBadRequest},
		{name: "invalid request", resp: NewErrorResponse("1", InvalidRequest, "x"), want: http.StatusBadRequest},
		{name: "method not found", resp: NewErrorResponse("1", MethodNotFound, "x"), want: http.StatusOK},
		{name: "internal error", resp: NewErrorResponse("1", InternalError, "x"), want: http.StatusOK},
		{name: "resource not found", resp: NewErrorResponse("1", ResourceNotFound, "x"), want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, httpStatusFor(tt.resp))
		})
	}
}

func TestWantsSSE(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	assert.False(t, wantsSSE(req))

	req.Header.Set("Accept", "application/json, text/event-stream")
	assert.True(t, wantsSSE(req))
}

// parseSSEEvents splits a raw SSE body into per-event field maps.
func parseSSEEvents(t *testing.T, body string) []map[string]string {
	t.Helper()
	var events []map[string]string
	for _, block := range strings.Split(body, "\r\n\r\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, ":") {
			continue
		}
		fields := map[string]string{}
		for _, line := range strings.Split(block, "\r\n") {
			if k, v, ok := strings.Cut(line, ": "); ok {
				fields[k] = v
			}
		}
		events = append(events, fields)
	}
	return events
}

func TestHTTP_PostSSE_EventFraming(t *testing.T) {
	_, h, e := newTestTransport(t)
	registerEchoTool(t, h, "echo", nil)
	sessionID := initOverHTTP(t, e)

	body := mustMarshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": "42", "method": "tools/call",
		"params": map[string]interface{}{"name": "echo"},
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	events := parseSSEEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, "1", events[0]["id"])
	assert.Equal(t, "message", events[0]["event"])

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(events[0]["data"]), &resp))
	assert.Equal(t, "42", resp.ID)
}
