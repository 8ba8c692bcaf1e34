package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// contextKey is the private type for request-scoped context values.
type contextKey string

const (
	clientSenderKey  contextKey = "mcp_client_sender"
	bearerTokenKey   contextKey = "mcp_bearer_token"
	userIDKey        contextKey = "mcp_user_id"
	externalTokenKey contextKey = "mcp_external_token"
	helpersKey       contextKey = "mcp_call_helpers"
)

// ClientSender delivers a server-originated JSON-RPC message to the
// client. Transports install one for the duration of a request scope:
// the HTTP transport enqueues onto the SSE stream, the stdio transport
// writes a line to stdout. Awaiting the reply is the protocol
// handler's job, not the sender's.
type ClientSender func(ctx context.Context, msg *Message) error

// WithClientSender installs the transport's send callback.
func WithClientSender(ctx context.Context, send ClientSender) context.Context {
	return context.WithValue(ctx, clientSenderKey, send)
}

func clientSenderFrom(ctx context.Context) ClientSender {
	send, _ := ctx.Value(clientSenderKey).(ClientSender)
	return send
}

// WithBearerToken attaches the bearer token extracted by the transport.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey, token)
}

func bearerTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(bearerTokenKey).(string)
	return token
}

// UserIDFromContext returns the authenticated user id set by the OAuth
// gate for the current tool call, if any.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// ExternalAccessTokenFromContext returns the upstream provider token
// set by the OAuth gate for the current tool call, if any.
func ExternalAccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(externalTokenKey).(string)
	return token
}

// CallHelpers are the bidirectional helpers visible to a tool while it
// executes. Capability-gated helpers fail when the client did not
// advertise the capability during initialize.
type CallHelpers struct {
	handler       *Handler
	send          ClientSender
	requestID     interface{}
	toolName      string
	progressToken interface{}
	sampling      bool
	elicitation   bool
	roots         bool
}

// HelpersFromContext returns the helpers installed for the current
// tool call, or nil outside one.
func HelpersFromContext(ctx context.Context) *CallHelpers {
	helpers, _ := ctx.Value(helpersKey).(*CallHelpers)
	return helpers
}

// ProgressToken returns the progress token the client supplied in
// _meta, or nil.
func (c *CallHelpers) ProgressToken() interface{} {
	return c.progressToken
}

// StartTask registers a working task bound to the current call's
// request id, for tools that keep running past their response.
func (c *CallHelpers) StartTask() string {
	return c.handler.tasks.Create(c.requestID, c.toolName)
}

// CompleteTask marks a task finished with its result.
func (c *CallHelpers) CompleteTask(taskID string, result interface{}) {
	c.handler.tasks.Update(taskID, TaskCompleted, result, nil, "")
}

// FailTask marks a task failed.
func (c *CallHelpers) FailTask(taskID string, taskErr interface{}) {
	c.handler.tasks.Update(taskID, TaskFailed, nil, taskErr, "")
}

// SendProgress emits a notifications/progress notification on the
// stream. Fire and forget; no reply is awaited.
func (c *CallHelpers) SendProgress(ctx context.Context, token interface{}, progress float64, total *float64) error {
	params := map[string]interface{}{
		"progressToken": token,
		"progress":      progress,
	}
	if total != nil {
		params["total"] = *total
	}
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	return c.handler.callNotify(ctx, c.send, &Message{
		JSONRPC: JSONRPCVersion,
		Method:  "notifications/progress",
		Params:  raw,
	})
}

// CreateMessage sends a sampling/createMessage request to the client
// and awaits its reply. Requires the sampling capability.
func (c *CallHelpers) CreateMessage(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	if !c.sampling {
		return nil, NewMCPError(InvalidRequest, "Client did not advertise the sampling capability")
	}
	return c.request(ctx, "sampling/createMessage", params)
}

// Elicit sends an elicitation/create request to the client and awaits
// its reply. Requires the elicitation capability.
func (c *CallHelpers) Elicit(ctx context.Context, message string, schema map[string]interface{}) (map[string]interface{}, error) {
	if !c.elicitation {
		return nil, NewMCPError(InvalidRequest, "Client did not advertise the elicitation capability")
	}
	params := map[string]interface{}{"message": message}
	if schema != nil {
		params["requestedSchema"] = schema
	}
	return c.request(ctx, "elicitation/create", params)
}

// ListRoots sends a roots/list request to the client and awaits its
// reply. Requires the roots capability.
func (c *CallHelpers) ListRoots(ctx context.Context) (map[string]interface{}, error) {
	if !c.roots {
		return nil, NewMCPError(InvalidRequest, "Client did not advertise the roots capability")
	}
	return c.request(ctx, "roots/list", nil)
}

func (c *CallHelpers) request(ctx context.Context, method string, params map[string]interface{}) (map[string]interface{}, error) {
	msg := &Message{
		JSONRPC: JSONRPCVersion,
		ID:      newRequestID(),
		Method:  method,
	}
	if params != nil {
		raw, err := marshalParams(params)
		if err != nil {
			return nil, err
		}
		msg.Params = raw
	}

	reply, err := c.handler.callClient(ctx, c.send, msg)
	if err != nil {
		return nil, err
	}
	if reply.Error != nil {
		return nil, NewMCPError(reply.Error.Code, reply.Error.Message)
	}
	var result map[string]interface{}
	if len(reply.Result) > 0 {
		if err := json.Unmarshal(reply.Result, &result); err != nil {
			return nil, NewMCPError(InternalError, "Malformed client response: "+err.Error())
		}
	}
	return result, nil
}

// newRequestID mints an id for a server-initiated request.
func newRequestID() string {
	return "srv-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func marshalParams(v interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
