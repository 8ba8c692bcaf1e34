package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OAuthToken is the result of a successful bearer-token validation.
type OAuthToken struct {
	UserID              string
	ExternalAccessToken string
}

// OAuthGate validates the bearer token presented by the transport and
// returns the upstream identity bound to it. The surrounding
// application registers one when any tool requires authorization.
type OAuthGate func(ctx context.Context, bearerToken string) (*OAuthToken, error)

// validLogLevels are the levels accepted by logging/setLevel.
var validLogLevels = map[string]struct{}{
	"debug": {}, "info": {}, "notice": {}, "warning": {},
	"error": {}, "critical": {}, "alert": {}, "emergency": {},
}

// HandlerOptions configure the protocol handler. Zero values fall back
// to the documented defaults.
type HandlerOptions struct {
	Logger        *zap.Logger
	ServerName    string
	ServerVersion string

	MaxArgumentKeys    int           // per tools/call arguments object, default 100
	MaxPendingRequests int           // outstanding server->client requests, default 100
	ClientReplyTimeout time.Duration // wait for a client reply, default 120s
	PageSize           int           // list pagination, default 100

	MaxSessions            int
	SessionMaxAge          time.Duration
	SessionCleanupInterval int
	EventBufferSize        int

	OAuthGate   OAuthGate
	SetLogLevel func(level string) error
}

// Handler is the JSON-RPC dispatch core. It owns the registries, the
// session manager, the event buffer, the task manager, the in-flight
// request table, and the pending server->client reply table. One
// Handler serves every transport of the process.
type Handler struct {
	logger *zap.Logger

	serverName    string
	serverVersion string

	maxArgKeys   int
	maxPending   int
	replyTimeout time.Duration
	pageSize     int

	tools     *registry[*ToolHandler]
	resources *registry[*ResourceHandler]
	templates *registry[*ResourceTemplateHandler]
	prompts   *registry[*PromptHandler]

	sessions *SessionManager
	events   *EventBuffer
	tasks    *TaskManager

	oauthGate   OAuthGate
	setLogLevel func(level string) error

	mu         sync.Mutex
	inflight   map[string]context.CancelFunc
	pending    map[string]chan *Message
	evictHooks []func(sessionID string)
}

// NewHandler creates a protocol handler with the given options.
func NewHandler(opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ServerName == "" {
		opts.ServerName = "mcpd"
	}
	if opts.ServerVersion == "" {
		opts.ServerVersion = "dev"
	}
	if opts.MaxArgumentKeys <= 0 {
		opts.MaxArgumentKeys = 100
	}
	if opts.MaxPendingRequests <= 0 {
		opts.MaxPendingRequests = 100
	}
	if opts.ClientReplyTimeout <= 0 {
		opts.ClientReplyTimeout = 120 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}

	h := &Handler{
		logger:        logger,
		serverName:    opts.ServerName,
		serverVersion: opts.ServerVersion,
		maxArgKeys:    opts.MaxArgumentKeys,
		maxPending:    opts.MaxPendingRequests,
		replyTimeout:  opts.ClientReplyTimeout,
		pageSize:      opts.PageSize,
		tools:         newRegistry[*ToolHandler](),
		resources:     newRegistry[*ResourceHandler](),
		templates:     newRegistry[*ResourceTemplateHandler](),
		prompts:       newRegistry[*PromptHandler](),
		sessions:      NewSessionManager(opts.MaxSessions, opts.SessionMaxAge, opts.SessionCleanupInterval),
		events:        NewEventBuffer(opts.EventBufferSize),
		tasks:         NewTaskManager(),
		oauthGate:     opts.OAuthGate,
		setLogLevel:   opts.SetLogLevel,
		inflight:      map[string]context.CancelFunc{},
		pending:       map[string]chan *Message{},
	}

	h.sessions.OnEvict(func(sessionID string) {
		h.events.Drop(sessionID)
		ActiveSessions.Set(float64(h.sessions.Count()))

		h.mu.Lock()
		hooks := append([]func(string){}, h.evictHooks...)
		h.mu.Unlock()
		for _, hook := range hooks {
			hook(sessionID)
		}
	})

	return h
}

// OnSessionEvict registers a hook run whenever a session is removed,
// so transports can release per-session state (streams, limiters).
func (h *Handler) OnSessionEvict(fn func(sessionID string)) {
	h.mu.Lock()
	h.evictHooks = append(h.evictHooks, fn)
	h.mu.Unlock()
}

// ServerInfo returns the identity advertised during initialize.
func (h *Handler) ServerInfo() ServerInfo {
	return ServerInfo{Name: h.serverName, Version: h.serverVersion}
}

// Sessions exposes the session manager.
func (h *Handler) Sessions() *SessionManager { return h.sessions }

// Events exposes the SSE event buffer.
func (h *Handler) Events() *EventBuffer { return h.events }

// Tasks exposes the task manager.
func (h *Handler) Tasks() *TaskManager { return h.tasks }

// RegisterTool adds a tool to the registry, replacing any previous
// tool with the same name.
func (h *Handler) RegisterTool(tool *ToolHandler, tags ...string) {
	h.tools.Register(tool.Name, tool, tags...)
}

// DeregisterTool removes a tool by name.
func (h *Handler) DeregisterTool(name string) { h.tools.Deregister(name) }

// ToolNames returns registered tool names in registration order.
func (h *Handler) ToolNames() []string { return h.tools.Keys() }

// ToolsByTag returns tools carrying the tag.
func (h *Handler) ToolsByTag(tag string) []*ToolHandler { return h.tools.ByTag(tag) }

// RegisterResource adds a fixed-URI resource.
func (h *Handler) RegisterResource(res *ResourceHandler, tags ...string) {
	h.resources.Register(res.URI, res, tags...)
}

// DeregisterResource removes a resource by URI.
func (h *Handler) DeregisterResource(uri string) { h.resources.Deregister(uri) }

// ResourceURIs returns registered resource URIs in registration order.
func (h *Handler) ResourceURIs() []string { return h.resources.Keys() }

// PromptNames returns registered prompt names in registration order.
func (h *Handler) PromptNames() []string { return h.prompts.Keys() }

// RegisterResourceTemplate adds a templated resource.
func (h *Handler) RegisterResourceTemplate(tpl *ResourceTemplateHandler, tags ...string) {
	h.templates.Register(tpl.URITemplate, tpl, tags...)
}

// RegisterPrompt adds a prompt.
func (h *Handler) RegisterPrompt(prompt *PromptHandler, tags ...string) {
	h.prompts.Register(prompt.Name, prompt, tags...)
}

// DeregisterPrompt removes a prompt by name.
func (h *Handler) DeregisterPrompt(name string) { h.prompts.Deregister(name) }

// CreateTask registers a working task bound to a JSON-RPC request id.
func (h *Handler) CreateTask(requestID interface{}, toolName string) string {
	return h.tasks.Create(requestID, toolName)
}

// UpdateTask transitions a task's status.
func (h *Handler) UpdateTask(taskID, status string, result, taskErr interface{}, message string) {
	h.tasks.Update(taskID, status, result, taskErr, message)
}

// Handle dispatches one incoming JSON-RPC message. The returned
// response is nil for notifications and client replies. newSessionID
// is non-empty only when the message was an initialize request, so the
// transport can emit the Mcp-Session-Id header.
func (h *Handler) Handle(ctx context.Context, msg *Message, sessionID string) (resp *Response, newSessionID string) {
	if msg == nil {
		return NewErrorResponse(nil, InvalidRequest, "Invalid Request"), ""
	}

	// Replies to server-initiated requests carry no method.
	if msg.IsResponse() {
		if !h.ResolvePending(msg) {
			h.logger.Debug("dropping reply to unknown request", zap.Any("id", msg.ID))
		}
		return nil, ""
	}

	if msg.JSONRPC != JSONRPCVersion {
		return h.finish(msg.Method, NewErrorResponse(msg.ID, InvalidRequest, "Invalid Request: jsonrpc must be \"2.0\"")), ""
	}
	if msg.Method == "" {
		return h.finish("", NewErrorResponse(msg.ID, InvalidRequest, "Invalid Request: method is required")), ""
	}

	if msg.IsNotification() {
		recordRequest(msg.Method)
		h.handleNotification(msg, sessionID)
		return nil, ""
	}

	recordRequest(msg.Method)

	if msg.Method == "initialize" {
		resp, sid := h.handleInitialize(msg)
		return h.finish(msg.Method, resp), sid
	}

	session := h.sessions.Get(sessionID)
	if session == nil {
		return h.finish(msg.Method, NewErrorResponse(msg.ID, InvalidRequest, "Missing session ID")), ""
	}
	h.sessions.Touch(sessionID)
	h.sessions.Protect(sessionID)
	defer h.sessions.Unprotect(sessionID)

	switch msg.Method {
	case "ping":
		resp = NewResponse(msg.ID, map[string]interface{}{})
	case "tools/list":
		resp = h.handleToolsList(msg)
	case "tools/call":
		resp = h.handleToolsCall(ctx, msg, session)
	case "resources/list":
		resp = h.handleResourcesList(msg)
	case "resources/templates/list":
		resp = h.handleTemplatesList(msg)
	case "resources/read":
		resp = h.handleResourcesRead(ctx, msg)
	case "resources/subscribe":
		resp = h.handleSubscribe(msg, sessionID, true)
	case "resources/unsubscribe":
		resp = h.handleSubscribe(msg, sessionID, false)
	case "prompts/list":
		resp = h.handlePromptsList(msg)
	case "prompts/get":
		resp = h.handlePromptsGet(ctx, msg)
	case "completion/complete":
		resp = NewResponse(msg.ID, map[string]interface{}{
			"completion": map[string]interface{}{
				"values":  []string{},
				"total":   0,
				"hasMore": false,
			},
		})
	case "logging/setLevel":
		resp = h.handleSetLevel(msg)
	case "tasks/get":
		resp = h.handleTasksGet(msg)
	case "tasks/result":
		resp = h.handleTasksResult(msg)
	case "tasks/list":
		resp = h.handleTasksList(msg)
	case "tasks/cancel":
		resp = h.handleTasksCancel(msg)
	default:
		resp = NewErrorResponse(msg.ID, MethodNotFound, fmt.Sprintf("Method not found: %s", msg.Method))
	}
	return h.finish(msg.Method, resp), ""
}

func (h *Handler) finish(method string, resp *Response) *Response {
	if resp != nil && resp.Error != nil {
		recordErrorCode(strconv.Itoa(resp.Error.Code))
		h.logger.Debug("request failed",
			zap.String("method", method),
			zap.Int("code", resp.Error.Code),
			zap.String("error", resp.Error.Message))
	}
	return resp
}

func (h *Handler) handleInitialize(msg *Message) (*Response, string) {
	var params InitializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return errorResponseFor(msg.ID, invalidParamsf("Invalid initialize params: %s", err.Error())), ""
		}
	}

	version := SupportedProtocolVersions[0]
	for _, v := range SupportedProtocolVersions {
		if params.ProtocolVersion == v {
			version = v
			break
		}
	}

	sessionID := h.sessions.Create(params.ClientInfo, version, params.Capabilities)
	ActiveSessions.Set(float64(h.sessions.Count()))

	h.logger.Info("session initialized",
		zap.String("session_id", sessionID),
		zap.String("protocol_version", version),
		zap.Any("client_info", params.ClientInfo))

	result := InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      ServerInfo{Name: h.serverName, Version: h.serverVersion},
		Capabilities:    h.serverCapabilities(),
	}
	return NewResponse(msg.ID, result), sessionID
}

// serverCapabilities advertises only what has actually been registered.
// Logging is always on; setLevel works regardless of registrations.
func (h *Handler) serverCapabilities() ServerCapabilities {
	caps := ServerCapabilities{Logging: map[string]interface{}{}}
	if len(h.tools.Keys()) > 0 {
		caps.Tools = &ToolsCapability{ListChanged: true}
	}
	if len(h.resources.Keys()) > 0 || len(h.templates.Keys()) > 0 {
		caps.Resources = &ResourcesCapability{ListChanged: true, Subscribe: true}
	}
	if len(h.prompts.Keys()) > 0 {
		caps.Prompts = &PromptsCapability{ListChanged: true}
	}
	return caps
}

func (h *Handler) handleNotification(msg *Message, sessionID string) {
	switch msg.Method {
	case "notifications/initialized":
		h.sessions.Touch(sessionID)
		h.logger.Debug("client initialized", zap.String("session_id", sessionID))
	case "notifications/cancelled":
		var params struct {
			RequestID interface{} `json:"requestId"`
			Reason    string      `json:"reason"`
		}
		if len(msg.Params) > 0 {
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				h.logger.Debug("malformed cancellation", zap.Error(err))
				return
			}
		}
		if params.RequestID == nil {
			return
		}
		h.logger.Debug("client cancelled request",
			zap.Any("request_id", params.RequestID),
			zap.String("reason", params.Reason))
		h.cancelInFlight(params.RequestID)
	case "notifications/roots/list_changed":
		h.logger.Debug("client roots changed", zap.String("session_id", sessionID))
	default:
		h.logger.Debug("ignoring notification", zap.String("method", msg.Method))
	}
}

// cancelInFlight triggers the cancellation handle of an in-flight
// request, if one is tracked under the given JSON-RPC id.
func (h *Handler) cancelInFlight(requestID interface{}) {
	key := fmt.Sprint(requestID)
	h.mu.Lock()
	cancel, ok := h.inflight[key]
	delete(h.inflight, key)
	h.mu.Unlock()
	if ok {
		cancel()
	}
}

func cursorFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var params struct {
		Cursor string `json:"cursor"`
	}
	_ = json.Unmarshal(raw, &params)
	return params.Cursor
}

// paginatedResult pages descriptors under the given result key and
// attaches nextCursor when more pages remain.
func (h *Handler) paginatedResult(id interface{}, key string, items []map[string]interface{}, cursor string) *Response {
	page, next, err := paginate(items, cursor, h.pageSize)
	if err != nil {
		return errorResponseFor(id, err)
	}
	result := map[string]interface{}{key: page}
	if next != "" {
		result["nextCursor"] = next
	}
	return NewResponse(id, result)
}

func (h *Handler) handleToolsList(msg *Message) *Response {
	tools := h.tools.All()
	items := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		items = append(items, t.MCPFormat())
	}
	return h.paginatedResult(msg.ID, "tools", items, cursorFrom(msg.Params))
}

func (h *Handler) handleResourcesList(msg *Message) *Response {
	resources := h.resources.All()
	items := make([]map[string]interface{}, 0, len(resources))
	for _, r := range resources {
		items = append(items, r.MCPFormat())
	}
	return h.paginatedResult(msg.ID, "resources", items, cursorFrom(msg.Params))
}

func (h *Handler) handleTemplatesList(msg *Message) *Response {
	templates := h.templates.All()
	items := make([]map[string]interface{}, 0, len(templates))
	for _, t := range templates {
		items = append(items, t.MCPFormat())
	}
	return h.paginatedResult(msg.ID, "resourceTemplates", items, cursorFrom(msg.Params))
}

func (h *Handler) handlePromptsList(msg *Message) *Response {
	prompts := h.prompts.All()
	items := make([]map[string]interface{}, 0, len(prompts))
	for _, p := range prompts {
		items = append(items, p.MCPFormat())
	}
	return h.paginatedResult(msg.ID, "prompts", items, cursorFrom(msg.Params))
}

func (h *Handler) handleToolsCall(ctx context.Context, msg *Message, session *Session) *Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
		Meta      *CallMeta       `json:"_meta"`
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return errorResponseFor(msg.ID, invalidParamsf("Invalid tools/call params: %s", err.Error()))
		}
	}

	arguments := map[string]interface{}{}
	if len(params.Arguments) > 0 && string(params.Arguments) != "null" {
		if err := json.Unmarshal(params.Arguments, &arguments); err != nil {
			return errorResponseFor(msg.ID, invalidParamsf("arguments must be an object"))
		}
	}
	if len(arguments) > h.maxArgKeys {
		return errorResponseFor(msg.ID,
			invalidParamsf("Too many argument keys (%d, max %d)", len(arguments), h.maxArgKeys))
	}

	tool, ok := h.tools.Get(params.Name)
	if !ok {
		return errorResponseFor(msg.ID, formatUnknownToolError(params.Name, h.tools.Keys()))
	}

	if tool.RequiresAuth {
		authedCtx, errResp := h.authorizeToolCall(ctx, msg.ID, tool, arguments)
		if errResp != nil {
			return errResp
		}
		ctx = authedCtx
	}

	// Install the bidirectional helpers for the duration of the call.
	send := clientSenderFrom(ctx)
	helpers := &CallHelpers{
		handler:   h,
		send:      send,
		requestID: msg.ID,
		toolName:  params.Name,
		sampling:  send != nil && session.HasCapability("sampling"),
		elicitation: send != nil &&
			session.HasCapability("elicitation"),
		roots: send != nil && session.HasCapability("roots"),
	}
	if params.Meta != nil {
		helpers.progressToken = params.Meta.ProgressToken
	}
	ctx = context.WithValue(ctx, helpersKey, helpers)

	// Track the call so notifications/cancelled and tasks/cancel can
	// interrupt it.
	callCtx := ctx
	if msg.ID != nil {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithCancel(ctx)
		key := fmt.Sprint(msg.ID)
		h.mu.Lock()
		h.inflight[key] = cancel
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.inflight, key)
			h.mu.Unlock()
			cancel()
		}()
	}

	start := time.Now()
	result, err := tool.Call(callCtx, arguments)
	recordToolCall(params.Name, start, err != nil)

	if callCtx.Err() == context.Canceled && ctx.Err() == nil {
		h.logger.Info("tool call cancelled",
			zap.String("tool", params.Name),
			zap.Any("request_id", msg.ID),
			zap.Duration("duration", time.Since(start)))
		return NewErrorResponse(msg.ID, InternalError, "Request cancelled")
	}
	if err != nil {
		h.logger.Error("tool call failed",
			zap.String("tool", params.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return errorResponseFor(msg.ID, err)
	}

	h.logger.Debug("tool call complete",
		zap.String("tool", params.Name),
		zap.Duration("duration", time.Since(start)))
	return NewResponse(msg.ID, result)
}

// authorizeToolCall runs the OAuth gate for a tool that requires it.
// On success the external provider token and user id are injected into
// the arguments and the returned context.
func (h *Handler) authorizeToolCall(ctx context.Context, msgID interface{}, tool *ToolHandler, arguments map[string]interface{}) (context.Context, *Response) {
	token := bearerTokenFrom(ctx)
	if token == "" {
		return ctx, NewErrorResponse(msgID, InternalError,
			fmt.Sprintf("Tool '%s' requires OAuth authorization. Please authenticate first.", tool.Name))
	}
	if h.oauthGate == nil {
		return ctx, NewErrorResponse(msgID, InternalError,
			fmt.Sprintf("Tool '%s' requires OAuth but OAuth is not configured on this server.", tool.Name))
	}

	identity, err := h.oauthGate(ctx, token)
	if err != nil {
		h.logger.Error("token validation failed",
			zap.String("tool", tool.Name), zap.Error(err))
		return ctx, NewErrorResponse(msgID, InternalError, "OAuth validation failed")
	}
	if identity == nil || identity.ExternalAccessToken == "" {
		return ctx, NewErrorResponse(msgID, InternalError,
			"OAuth token is valid but external provider token is missing.")
	}

	arguments[paramExternalAccessToken] = identity.ExternalAccessToken
	ctx = context.WithValue(ctx, externalTokenKey, identity.ExternalAccessToken)
	if identity.UserID != "" {
		arguments[paramUserID] = identity.UserID
		ctx = context.WithValue(ctx, userIDKey, identity.UserID)
	}
	h.logger.Debug("token validated",
		zap.String("tool", tool.Name),
		zap.String("user_id", identity.UserID))
	return ctx, nil
}

func (h *Handler) handleResourcesRead(ctx context.Context, msg *Message) *Response {
	var params struct {
		URI string `json:"uri"`
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return errorResponseFor(msg.ID, invalidParamsf("Invalid resources/read params: %s", err.Error()))
		}
	}

	if res, ok := h.resources.Get(params.URI); ok {
		contents, err := res.Read(ctx)
		if err != nil {
			return errorResponseFor(msg.ID, err)
		}
		return NewResponse(msg.ID, map[string]interface{}{
			"contents": []*ResourceContents{contents},
		})
	}

	// No exact match: try templates. The most specific (longest)
	// matching template wins.
	var (
		best         *ResourceTemplateHandler
		bestBindings map[string]string
	)
	for _, tpl := range h.templates.All() {
		bindings, ok := tpl.Match(params.URI)
		if !ok {
			continue
		}
		if best == nil || len(tpl.URITemplate) > len(best.URITemplate) {
			best = tpl
			bestBindings = bindings
		}
	}
	if best == nil {
		return NewErrorResponse(msg.ID, ResourceNotFound,
			fmt.Sprintf("Resource not found: %s", params.URI))
	}

	contents, err := best.Read(ctx, params.URI, bestBindings)
	if err != nil {
		return errorResponseFor(msg.ID, err)
	}
	return NewResponse(msg.ID, map[string]interface{}{
		"contents": []*ResourceContents{contents},
	})
}

func (h *Handler) handleSubscribe(msg *Message, sessionID string, subscribe bool) *Response {
	var params struct {
		URI string `json:"uri"`
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return errorResponseFor(msg.ID, invalidParamsf("Invalid subscription params: %s", err.Error()))
		}
	}
	if params.URI == "" {
		return errorResponseFor(msg.ID, invalidParamsf("Missing resource URI"))
	}
	if subscribe {
		h.sessions.Subscribe(sessionID, params.URI)
	} else {
		h.sessions.Unsubscribe(sessionID, params.URI)
	}
	return NewResponse(msg.ID, map[string]interface{}{})
}

func (h *Handler) handlePromptsGet(ctx context.Context, msg *Message) *Response {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return errorResponseFor(msg.ID, invalidParamsf("Invalid prompts/get params: %s", err.Error()))
		}
	}

	prompt, ok := h.prompts.Get(params.Name)
	if !ok {
		return errorResponseFor(msg.ID, invalidParamsf("Unknown prompt: %s", params.Name))
	}
	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}

	messages, err := prompt.Get(ctx, params.Arguments)
	if err != nil {
		return errorResponseFor(msg.ID, err)
	}
	return NewResponse(msg.ID, map[string]interface{}{
		"description": prompt.Description,
		"messages":    messages,
	})
}

func (h *Handler) handleSetLevel(msg *Message) *Response {
	var params struct {
		Level string `json:"level"`
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return errorResponseFor(msg.ID, invalidParamsf("Invalid logging/setLevel params: %s", err.Error()))
		}
	}
	if _, ok := validLogLevels[params.Level]; !ok {
		return errorResponseFor(msg.ID, invalidParamsf(
			"Invalid log level: %s. Valid levels: debug, info, notice, warning, error, critical, alert, emergency",
			params.Level))
	}
	if h.setLogLevel != nil {
		if err := h.setLogLevel(params.Level); err != nil {
			return errorResponseFor(msg.ID, err)
		}
	}
	h.logger.Info("log level changed", zap.String("level", params.Level))
	return NewResponse(msg.ID, map[string]interface{}{})
}

func taskIDFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var params struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &params)
	return params.ID
}

func (h *Handler) handleTasksGet(msg *Message) *Response {
	record, err := h.tasks.Get(taskIDFrom(msg.Params))
	if err != nil {
		return errorResponseFor(msg.ID, err)
	}
	return NewResponse(msg.ID, record)
}

func (h *Handler) handleTasksResult(msg *Message) *Response {
	record, err := h.tasks.Result(taskIDFrom(msg.Params))
	if err != nil {
		return errorResponseFor(msg.ID, err)
	}
	return NewResponse(msg.ID, record)
}

func (h *Handler) handleTasksList(msg *Message) *Response {
	return h.paginatedResult(msg.ID, "tasks", h.tasks.List(), cursorFrom(msg.Params))
}

func (h *Handler) handleTasksCancel(msg *Message) *Response {
	record, requestID, err := h.tasks.Cancel(taskIDFrom(msg.Params))
	if err != nil {
		return errorResponseFor(msg.ID, err)
	}
	if requestID != nil {
		h.cancelInFlight(requestID)
	}
	return NewResponse(msg.ID, record)
}

// callClient sends a server-initiated request to the client through
// the transport and waits for the matching reply. At most maxPending
// requests may be outstanding at once; the next one fails immediately.
func (h *Handler) callClient(ctx context.Context, send ClientSender, msg *Message) (*Message, error) {
	if send == nil {
		return nil, NewMCPError(InternalError, "No client transport available for server-initiated requests")
	}

	key := fmt.Sprint(msg.ID)
	ch := make(chan *Message, 1)

	h.mu.Lock()
	if len(h.pending) >= h.maxPending {
		h.mu.Unlock()
		return nil, NewMCPError(InternalError,
			fmt.Sprintf("Too many pending client requests (max %d)", h.maxPending))
	}
	h.pending[key] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.pending, key)
		h.mu.Unlock()
	}()

	if err := send(ctx, msg); err != nil {
		return nil, NewMCPError(InternalError, "Failed to send request to client: "+err.Error())
	}

	timer := time.NewTimer(h.replyTimeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return nil, NewMCPError(InternalError, "Request cancelled")
	case <-timer.C:
		return nil, NewMCPError(InternalError,
			fmt.Sprintf("Timeout waiting for client response to request %s", key))
	}
}

// callNotify sends a notification to the client. No reply is awaited.
func (h *Handler) callNotify(ctx context.Context, send ClientSender, msg *Message) error {
	if send == nil {
		return NewMCPError(InternalError, "No client transport available for notifications")
	}
	return send(ctx, msg)
}

// ResolvePending routes a client reply to the helper waiting on it.
// Returns false when no request with that id is outstanding.
func (h *Handler) ResolvePending(msg *Message) bool {
	key := fmt.Sprint(msg.ID)
	h.mu.Lock()
	ch, ok := h.pending[key]
	delete(h.pending, key)
	h.mu.Unlock()
	if !ok {
		return false
	}
	ch <- msg
	return true
}
