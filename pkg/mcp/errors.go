package mcp

import (
	"fmt"
	"sort"
	"strings"
)

// MCPError is a protocol-level error with an optional remediation hint
// and documentation link. The wire message joins the parts with " | ".
type MCPError struct {
	Code       int
	Message    string
	Suggestion string
	DocsURL    string
}

func (e *MCPError) Error() string {
	parts := []string{e.Message}
	if e.Suggestion != "" {
		parts = append(parts, "Suggestion: "+e.Suggestion)
	}
	if e.DocsURL != "" {
		parts = append(parts, "Docs: "+e.DocsURL)
	}
	return strings.Join(parts, " | ")
}

// NewMCPError builds an MCPError with the given code and message.
func NewMCPError(code int, message string) *MCPError {
	return &MCPError{Code: code, Message: message}
}

// invalidParamsf builds an invalid-params error.
func invalidParamsf(format string, args ...interface{}) *MCPError {
	return &MCPError{Code: InvalidParams, Message: fmt.Sprintf(format, args...)}
}

// URLElicitationError signals that the client must visit a URL (for
// example to complete an authorization flow) before the call can
// succeed. Tools return it to produce a -32042 response whose data
// carries the URL.
type URLElicitationError struct {
	URL         string
	Description string
	MimeType    string
}

func (e *URLElicitationError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return "URL elicitation required: " + e.URL
}

// errorResponseFor converts any error into a JSON-RPC error response.
// MCPError keeps its code; URLElicitationError becomes -32042 with the
// URL in the error data; everything else becomes an internal error.
func errorResponseFor(id interface{}, err error) *Response {
	if elicit, ok := err.(*URLElicitationError); ok {
		data := map[string]interface{}{"url": elicit.URL}
		if elicit.Description != "" {
			data["description"] = elicit.Description
		}
		if elicit.MimeType != "" {
			data["mimeType"] = elicit.MimeType
		}
		return &Response{
			JSONRPC: JSONRPCVersion,
			ID:      id,
			Error:   &ErrorDetail{Code: URLElicitationRequired, Message: elicit.Error(), Data: data},
		}
	}
	if mcpErr, ok := err.(*MCPError); ok {
		return NewErrorResponse(id, mcpErr.Code, mcpErr.Error())
	}
	return NewErrorResponse(id, InternalError, err.Error())
}

// suggestToolName returns the closest registered name within a
// Levenshtein distance of 2, or "" when nothing is close enough.
func suggestToolName(requested string, available []string) string {
	best := ""
	bestDist := 3
	for _, name := range available {
		if d := levenshtein(requested, name); d < bestDist {
			best = name
			bestDist = d
		}
	}
	return best
}

// formatUnknownToolError builds the -32602 message for an unknown tool
// name: a fuzzy suggestion when one is close, otherwise up to ten
// registered names in sorted order.
func formatUnknownToolError(requested string, available []string) *MCPError {
	msg := fmt.Sprintf("Unknown tool: %s", requested)
	if suggestion := suggestToolName(requested, available); suggestion != "" {
		return &MCPError{
			Code:       InvalidParams,
			Message:    msg,
			Suggestion: fmt.Sprintf("Did you mean '%s'?", suggestion),
		}
	}
	if len(available) > 0 {
		names := append([]string(nil), available...)
		sort.Strings(names)
		if len(names) > 10 {
			names = names[:10]
		}
		return &MCPError{
			Code:       InvalidParams,
			Message:    msg,
			Suggestion: "Available tools: " + strings.Join(names, ", "),
		}
	}
	return &MCPError{Code: InvalidParams, Message: msg}
}

// formatMissingArgumentError builds the -32602 message for an absent
// required argument, naming the declared type or description.
func formatMissingArgumentError(toolName string, p *Parameter) *MCPError {
	detail := p.Type
	if p.Description != "" {
		detail = p.Description
	}
	return &MCPError{
		Code:    InvalidParams,
		Message: fmt.Sprintf("Missing required argument '%s' (type: %s)", p.Name, detail),
		Suggestion: fmt.Sprintf("Provide '%s' in the arguments object of the %s call",
			p.Name, toolName),
	}
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
