package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HTTPTransportConfig tunes the Streamable HTTP transport. Zero values
// fall back to the documented defaults.
type HTTPTransportConfig struct {
	MaxBodyBytes      int64         // POST body cap, default 10 MiB
	HeartbeatInterval time.Duration // SSE keepalive comments, default 30s

	RateLimitEnabled bool
	RateLimit        float64 // requests per second, default 100
	RateBurst        int     // default 200
}

// HTTPTransport serves the MCP Streamable HTTP surface on an Echo
// router: the /mcp endpoint (OPTIONS, GET, POST, DELETE) and the
// /mcp/respond client-reply channel.
type HTTPTransport struct {
	handler *Handler
	logger  *zap.Logger

	maxBody   int64
	heartbeat time.Duration
	limiter   *sessionLimiter
	hub       *streamHub
}

// NewHTTPTransport creates the transport bound to a protocol handler.
func NewHTTPTransport(handler *Handler, logger *zap.Logger, cfg HTTPTransportConfig) *HTTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}

	t := &HTTPTransport{
		handler:   handler,
		logger:    logger,
		maxBody:   cfg.MaxBodyBytes,
		heartbeat: cfg.HeartbeatInterval,
		hub:       newStreamHub(),
	}
	if cfg.RateLimitEnabled {
		t.limiter = newSessionLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	// Evicted sessions lose their stream, replay buffer, and bucket.
	handler.OnSessionEvict(func(sessionID string) {
		t.hub.drop(sessionID)
		if t.limiter != nil {
			t.limiter.forget(sessionID)
		}
	})

	// Task status notifications go to every open stream; clients filter
	// by task id.
	handler.Tasks().OnStatusChange(func(notification *Message) {
		t.hub.broadcast(notification)
	})

	return t
}

// RegisterRoutes mounts the MCP endpoints on the router.
func (t *HTTPTransport) RegisterRoutes(e *echo.Echo) {
	e.OPTIONS("/mcp", t.handleOptions)
	e.GET("/mcp", t.handleGet)
	e.POST("/mcp", t.handlePost)
	e.DELETE("/mcp", t.handleDelete)
	e.OPTIONS("/mcp/respond", t.handleOptions)
	e.POST("/mcp/respond", t.handleRespond)
}

// setCommonHeaders stamps the CORS and MCP headers every response
// carries. The protocol version follows the session's negotiation when
// one exists.
func (t *HTTPTransport) setCommonHeaders(c echo.Context, sessionID string) {
	h := c.Response().Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Expose-Headers", "Mcp-Session-Id, MCP-Protocol-Version")

	version := SupportedProtocolVersions[0]
	if s := t.handler.Sessions().Get(sessionID); s != nil {
		version = s.ProtocolVersion
	}
	h.Set("MCP-Protocol-Version", version)
	if sessionID != "" {
		h.Set("Mcp-Session-Id", sessionID)
	}
}

func (t *HTTPTransport) handleOptions(c echo.Context) error {
	h := c.Response().Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers",
		"Content-Type, Authorization, Accept, Mcp-Session-Id, MCP-Protocol-Version, Last-Event-ID")
	h.Set("Access-Control-Max-Age", "3600")
	return c.NoContent(http.StatusNoContent)
}

func (t *HTTPTransport) handleGet(c echo.Context) error {
	sessionID := c.Request().Header.Get("Mcp-Session-Id")

	if !wantsSSE(c.Request()) {
		return t.serveInfo(c, sessionID)
	}

	session := t.handler.Sessions().Get(sessionID)
	if session == nil {
		return t.jsonrpcError(c, nil, InvalidRequest, "Missing session ID")
	}
	t.handler.Sessions().Touch(sessionID)

	if lastEventID := c.Request().Header.Get("Last-Event-ID"); lastEventID != "" {
		return t.serveReplay(c, sessionID, lastEventID)
	}
	return t.serveStream(c, sessionID)
}

// serveInfo answers a plain GET with a small server description.
func (t *HTTPTransport) serveInfo(c echo.Context, sessionID string) error {
	t.setCommonHeaders(c, sessionID)
	toolNames := t.handler.ToolNames()
	resourceURIs := t.handler.ResourceURIs()
	promptNames := t.handler.PromptNames()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"server":    t.handler.ServerInfo(),
		"transport": "streamable-http",
		"protocolVersions": SupportedProtocolVersions,
		"tools": map[string]interface{}{
			"count":     len(toolNames),
			"available": toolNames,
		},
		"resources": map[string]interface{}{
			"count":     len(resourceURIs),
			"available": resourceURIs,
		},
		"prompts": map[string]interface{}{
			"count":     len(promptNames),
			"available": promptNames,
		},
		"endpoints": map[string]string{
			"mcp":     "/mcp",
			"respond": "/mcp/respond",
		},
	})
}

// serveReplay re-emits buffered events newer than Last-Event-ID and
// closes the stream.
func (t *HTTPTransport) serveReplay(c echo.Context, sessionID, lastEventID string) error {
	after, err := strconv.ParseInt(lastEventID, 10, 64)
	if err != nil {
		return t.jsonrpcError(c, nil, InvalidRequest, "Invalid Last-Event-ID: "+lastEventID)
	}

	t.setCommonHeaders(c, sessionID)
	t.setSSEHeaders(c)
	res := c.Response()
	res.WriteHeader(http.StatusOK)

	for _, rec := range t.handler.Events().After(sessionID, after) {
		writeSSEEvent(res, rec.ID, rec.Event, rec.Payload)
	}
	res.Flush()
	return nil
}

// serveStream holds a persistent SSE stream open, forwarding queued
// per-session messages until the client disconnects or the session is
// evicted.
func (t *HTTPTransport) serveStream(c echo.Context, sessionID string) error {
	t.setCommonHeaders(c, sessionID)
	t.setSSEHeaders(c)
	res := c.Response()
	res.WriteHeader(http.StatusOK)

	queue := t.hub.attach(sessionID)
	defer t.hub.detach(sessionID, queue)

	SSEStreamsActive.Inc()
	defer SSEStreamsActive.Dec()

	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	heartbeats := 0
	for {
		select {
		case msg, ok := <-queue:
			if !ok {
				// Session evicted.
				return nil
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			// message is reserved for JSON-RPC responses; anything the
			// server originates carries a method and rides server_request.
			event := SSEEventMessage
			if msg.Method != "" {
				event = SSEEventServerRequest
			}
			t.emit(res, sessionID, event, payload)
		case <-ticker.C:
			heartbeats++
			writeSSEComment(res, "heartbeat "+strconv.Itoa(heartbeats))
			res.Flush()
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func (t *HTTPTransport) setSSEHeaders(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// emit assigns the next per-session event id, buffers the event for
// replay, and writes it to the stream.
func (t *HTTPTransport) emit(res *echo.Response, sessionID, event string, payload []byte) {
	id := t.handler.Events().NextID(sessionID)
	t.handler.Events().Buffer(sessionID, id, event, payload)
	writeSSEEvent(res, id, event, payload)
	res.Flush()
}

func (t *HTTPTransport) handlePost(c echo.Context) error {
	sessionID := c.Request().Header.Get("Mcp-Session-Id")

	if t.limiter != nil {
		key := sessionID
		if key == "" {
			key = c.RealIP()
		}
		if !t.limiter.allow(key) {
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded",
			})
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, t.maxBody+1))
	if err != nil {
		return t.jsonrpcError(c, nil, ParseError, "Failed to read request body")
	}
	if int64(len(body)) > t.maxBody {
		return t.jsonrpcError(c, nil, InvalidRequest,
			"Request body too large (max "+strconv.FormatInt(t.maxBody, 10)+" bytes)")
	}
	if len(body) == 0 {
		return t.jsonrpcError(c, nil, ParseError, "Parse error: Empty body")
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return t.jsonrpcError(c, nil, ParseError, "Parse error: "+err.Error())
	}

	ctx := c.Request().Context()
	if token := t.bearerToken(c); token != "" {
		ctx = WithBearerToken(ctx, token)
	}
	// When the session has a persistent stream open, server-initiated
	// requests go out over it.
	if send := t.hub.sender(sessionID); send != nil {
		ctx = WithClientSender(ctx, send)
	}

	// A body without a method is the client replying to a
	// server-initiated request.
	if msg.IsResponse() {
		t.handler.ResolvePending(&msg)
		return c.NoContent(http.StatusAccepted)
	}

	if msg.IsNotification() {
		t.handler.Handle(ctx, &msg, sessionID)
		t.setCommonHeaders(c, sessionID)
		return c.NoContent(http.StatusAccepted)
	}

	if wantsSSE(c.Request()) {
		return t.servePostSSE(c, ctx, &msg, sessionID)
	}

	resp, newSessionID := t.handler.Handle(ctx, &msg, sessionID)
	if newSessionID != "" {
		sessionID = newSessionID
	}
	t.setCommonHeaders(c, sessionID)
	if resp == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(httpStatusFor(resp), resp)
}

// servePostSSE answers one POST over an SSE stream. tools/call runs
// concurrently so server_request events can be interleaved before the
// final response; every other method emits a single message event.
func (t *HTTPTransport) servePostSSE(c echo.Context, ctx context.Context, msg *Message, sessionID string) error {
	res := c.Response()

	if msg.Method != "tools/call" {
		resp, newSessionID := t.handler.Handle(ctx, msg, sessionID)
		if newSessionID != "" {
			sessionID = newSessionID
		}
		t.setCommonHeaders(c, sessionID)
		t.setSSEHeaders(c)
		res.WriteHeader(http.StatusOK)
		if resp != nil {
			payload, err := json.Marshal(resp)
			if err != nil {
				return err
			}
			t.emit(res, sessionID, SSEEventMessage, payload)
		}
		return nil
	}

	t.setCommonHeaders(c, sessionID)
	t.setSSEHeaders(c)
	res.WriteHeader(http.StatusOK)

	SSEStreamsActive.Inc()
	defer SSEStreamsActive.Dec()

	// The tool call runs in its own goroutine; server->client requests
	// it makes are enqueued here and forwarded as server_request
	// events until the final response arrives.
	queue := make(chan *Message, 16)
	callCtx := WithClientSender(ctx, func(sendCtx context.Context, m *Message) error {
		select {
		case queue <- m:
			return nil
		case <-sendCtx.Done():
			return sendCtx.Err()
		}
	})

	done := make(chan *Response, 1)
	go func() {
		resp, _ := t.handler.Handle(callCtx, msg, sessionID)
		done <- resp
	}()

	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	heartbeats := 0
	for {
		select {
		case m := <-queue:
			payload, err := json.Marshal(m)
			if err != nil {
				continue
			}
			t.emit(res, sessionID, SSEEventServerRequest, payload)
		case resp := <-done:
			// Flush anything the tool enqueued right before finishing.
			for {
				select {
				case m := <-queue:
					if payload, err := json.Marshal(m); err == nil {
						t.emit(res, sessionID, SSEEventServerRequest, payload)
					}
					continue
				default:
				}
				break
			}
			if resp == nil {
				resp = NewErrorResponse(msg.ID, InternalError, "No response produced")
			}
			payload, err := json.Marshal(resp)
			if err != nil {
				return err
			}
			event := SSEEventMessage
			if resp.Error != nil {
				event = SSEEventError
			}
			t.emit(res, sessionID, event, payload)
			return nil
		case <-ticker.C:
			heartbeats++
			writeSSEComment(res, "heartbeat "+strconv.Itoa(heartbeats))
			res.Flush()
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func (t *HTTPTransport) handleDelete(c echo.Context) error {
	sessionID := c.Request().Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		return t.jsonrpcError(c, nil, InvalidRequest, "Missing session ID")
	}

	terminated := t.handler.Sessions().Terminate(sessionID)
	t.setCommonHeaders(c, "")
	if !terminated {
		return c.JSON(http.StatusOK, map[string]string{"status": "unknown_session"})
	}
	t.logger.Info("session terminated", zap.String("session_id", sessionID))
	return c.JSON(http.StatusOK, map[string]string{"status": "terminated"})
}

// handleRespond accepts the JSON-RPC response a client owes the server
// for an earlier server_request event.
func (t *HTTPTransport) handleRespond(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, t.maxBody+1))
	if err != nil || len(body) == 0 {
		return t.jsonrpcError(c, nil, ParseError, "Parse error: Empty body")
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return t.jsonrpcError(c, nil, ParseError, "Parse error: "+err.Error())
	}
	if !msg.IsResponse() || msg.ID == nil {
		return t.jsonrpcError(c, msg.ID, InvalidRequest, "Body must be a JSON-RPC response with an id")
	}

	t.setCommonHeaders(c, c.Request().Header.Get("Mcp-Session-Id"))
	if !t.handler.ResolvePending(&msg) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "No pending request with that id",
		})
	}
	return c.NoContent(http.StatusAccepted)
}

// bearerToken extracts the Authorization bearer token. A known client
// bug doubles the prefix ("Bearer Bearer <token>"); the extra prefix
// is stripped with a warning.
func (t *HTTPTransport) bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return ""
	}
	fields := strings.Fields(header)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	if len(fields) >= 3 && strings.EqualFold(fields[1], "Bearer") {
		t.logger.Warn("doubled Bearer prefix in Authorization header")
		return fields[2]
	}
	return fields[1]
}

func (t *HTTPTransport) jsonrpcError(c echo.Context, id interface{}, code int, message string) error {
	c.Response().Header().Set("Access-Control-Allow-Origin", "*")
	c.Response().Header().Set("MCP-Protocol-Version", SupportedProtocolVersions[0])
	resp := NewErrorResponse(id, code, message)
	return c.JSON(httpStatusFor(resp), resp)
}

// httpStatusFor maps a JSON-RPC response to its HTTP status. Malformed
// envelopes are 400; everything else, including handler errors, rides
// a 200.
func httpStatusFor(resp *Response) int {
	if resp.Error != nil && (resp.Error.Code == ParseError || resp.Error.Code == InvalidRequest) {
		return http.StatusBadRequest
	}
	return http.StatusOK
}

func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
