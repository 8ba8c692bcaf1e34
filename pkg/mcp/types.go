// Package mcp implements the Model Context Protocol server core:
// JSON-RPC dispatch, session management, tool/resource/prompt
// registries, long-running tasks, and the Streamable HTTP transport.
package mcp

import (
	"encoding/json"
	"time"
)

// JSONRPCVersion is the only wire version accepted.
const JSONRPCVersion = "2.0"

// Supported MCP protocol versions, newest first.
const (
	ProtocolVersion20251125 = "2025-11-25"
	ProtocolVersion20250618 = "2025-06-18"
	ProtocolVersion20250326 = "2025-03-26"
)

// SupportedProtocolVersions lists negotiable versions, newest first.
var SupportedProtocolVersions = []string{
	ProtocolVersion20251125,
	ProtocolVersion20250618,
	ProtocolVersion20250326,
}

// JSON-RPC 2.0 error codes used on the wire.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// ResourceNotFound is the MCP code for an unknown resource URI.
	ResourceNotFound = -32002
	// URLElicitationRequired signals the client must complete an
	// authorization flow before the call can proceed.
	URLElicitationRequired = -32042
)

// Message is a JSON-RPC 2.0 envelope. A request has Method set; a
// response has Result or Error set and no Method; a notification has
// Method set and a nil ID.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

// IsNotification reports whether the message is a request without an id.
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.ID == nil
}

// IsResponse reports whether the message answers an earlier request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (m.Result != nil || m.Error != nil)
}

// Response is an outgoing JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      interface{}  `json:"id"`
	Result  interface{}  `json:"result,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail is the error member of a JSON-RPC response.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// NewResponse builds a success response for the given request id.
func NewResponse(id, result interface{}) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// NewErrorResponse builds an error response for the given request id.
func NewErrorResponse(id interface{}, code int, message string) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &ErrorDetail{Code: code, Message: message},
	}
}

// InitializeParams are the params of the initialize method.
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      map[string]interface{} `json:"clientInfo"`
}

// InitializeResult is the result of the initialize method.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
}

// ServerInfo identifies this server to clients.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities advertises what the server has registered.
type ServerCapabilities struct {
	Tools        *ToolsCapability       `json:"tools,omitempty"`
	Resources    *ResourcesCapability   `json:"resources,omitempty"`
	Prompts      *PromptsCapability     `json:"prompts,omitempty"`
	Logging      map[string]interface{} `json:"logging,omitempty"`
	Experimental map[string]interface{} `json:"experimental,omitempty"`
}

// ToolsCapability describes the tools capability.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ResourcesCapability describes the resources capability.
type ResourcesCapability struct {
	ListChanged bool `json:"listChanged"`
	Subscribe   bool `json:"subscribe"`
}

// PromptsCapability describes the prompts capability.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ToolsCallParams are the params of the tools/call method.
type ToolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	Meta      *CallMeta              `json:"_meta,omitempty"`
}

// CallMeta carries request metadata such as the progress token.
type CallMeta struct {
	ProgressToken interface{} `json:"progressToken,omitempty"`
}

// Session is per-client server state created by initialize and carried
// by the Mcp-Session-Id header.
type Session struct {
	ID                 string
	ClientInfo         map[string]interface{}
	ProtocolVersion    string
	ClientCapabilities map[string]interface{}
	CreatedAt          time.Time
	LastActivity       time.Time

	// Subscriptions holds resource URIs the session subscribed to.
	Subscriptions map[string]struct{}
}

// HasCapability reports whether the client advertised the named
// capability (sampling, elicitation, roots) during initialize.
func (s *Session) HasCapability(name string) bool {
	if s == nil || s.ClientCapabilities == nil {
		return false
	}
	_, ok := s.ClientCapabilities[name]
	return ok
}

// Content is one element of a tools/call result content array.
type Content struct {
	Type        string                 `json:"type"`
	Text        string                 `json:"text,omitempty"`
	Data        string                 `json:"data,omitempty"`
	MimeType    string                 `json:"mimeType,omitempty"`
	URI         string                 `json:"uri,omitempty"`
	Name        string                 `json:"name,omitempty"`
	Resource    map[string]interface{} `json:"resource,omitempty"`
	Annotations *Annotations           `json:"annotations,omitempty"`
}

// Annotations qualify a content element for the client.
type Annotations struct {
	Audience []string `json:"audience,omitempty"`
	Priority *float64 `json:"priority,omitempty"`
}

// ResourceContents is one chunk returned by resources/read.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// PromptMessage is one message of a prompts/get result.
type PromptMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}
