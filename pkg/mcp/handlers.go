package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// toolNamePattern constrains registered tool names.
var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-.]{1,128}$`)

// ToolFunc is the user-supplied implementation of a tool. Arguments
// arrive validated and coerced per the declared parameters.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ResourceFunc returns a resource's contents.
type ResourceFunc func(ctx context.Context) (interface{}, error)

// TemplateFunc returns templated-resource contents. Arguments are the
// placeholder bindings, coerced per the declared parameters.
type TemplateFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// PromptFunc returns prompt output: a string, a []PromptMessage, a
// map with a "messages" key, or a bare map treated as user content.
type PromptFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ToolHandler wraps one user tool function with its schema and
// authorization flags.
type ToolHandler struct {
	Name         string
	Description  string
	Parameters   []*Parameter
	RequiresAuth bool
	AuthScopes   []string

	fn ToolFunc

	mu          sync.Mutex
	cachedJSON  map[string]interface{}
	cachedBytes []byte
}

// NewTool creates a tool handler. The name must match
// ^[A-Za-z0-9_\-.]{1,128}$.
func NewTool(name, description string, params []*Parameter, fn ToolFunc) (*ToolHandler, error) {
	if !toolNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid tool name %q", name)
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %q has no function", name)
	}
	return &ToolHandler{Name: name, Description: description, Parameters: params, fn: fn}, nil
}

// MCPFormat returns the tool's cached MCP JSON form as served by
// tools/list. Listings are polled frequently, so the map and its
// serialized bytes are built once and reused until Invalidate.
func (t *ToolHandler) MCPFormat() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cachedJSON == nil {
		t.cachedJSON = map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": buildInputSchema(t.Parameters),
		}
	}
	return t.cachedJSON
}

// MCPFormatBytes returns the serialized form of MCPFormat.
func (t *ToolHandler) MCPFormatBytes() []byte {
	t.mu.Lock()
	cached := t.cachedBytes
	t.mu.Unlock()
	if cached != nil {
		return cached
	}
	b, _ := json.Marshal(t.MCPFormat())
	t.mu.Lock()
	t.cachedBytes = b
	t.mu.Unlock()
	return b
}

// Invalidate drops the cached MCP JSON. Call after mutating any
// attribute.
func (t *ToolHandler) Invalidate() {
	t.mu.Lock()
	t.cachedJSON = nil
	t.cachedBytes = nil
	t.mu.Unlock()
}

// Call validates arguments and invokes the tool, returning the full
// tools/call result object. A map return that already carries a
// content array alongside structuredContent or _meta is treated as
// pre-formatted and passed through verbatim; anything else goes
// through FormatContent.
func (t *ToolHandler) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	validated, err := validateArguments(t.Name, t.Parameters, args)
	if err != nil {
		return nil, err
	}
	result, err := t.fn(ctx, validated)
	if err != nil {
		if _, ok := err.(*MCPError); ok {
			return nil, err
		}
		if _, ok := err.(*URLElicitationError); ok {
			return nil, err
		}
		return nil, NewMCPError(InternalError, fmt.Sprintf("Tool execution error: %s: %s", t.Name, err.Error()))
	}
	if m, ok := result.(map[string]interface{}); ok {
		if _, hasContent := m["content"].([]interface{}); hasContent {
			_, hasStructured := m["structuredContent"]
			_, hasMeta := m["_meta"]
			if hasStructured || hasMeta {
				return m, nil
			}
		}
	}
	return map[string]interface{}{"content": FormatContent(result)}, nil
}

// FormatContent converts a tool return value into a content array.
// Strings become one text element, maps become pretty-printed JSON,
// slices are flattened elementwise, Content values pass through, and
// any other scalar is stringified.
func FormatContent(result interface{}) []Content {
	switch v := result.(type) {
	case nil:
		return []Content{{Type: "text", Text: ""}}
	case string:
		return []Content{{Type: "text", Text: v}}
	case Content:
		return []Content{v}
	case *Content:
		return []Content{*v}
	case []Content:
		return v
	case []interface{}:
		var out []Content
		for _, item := range v {
			out = append(out, FormatContent(item)...)
		}
		return out
	case map[string]interface{}:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return []Content{{Type: "text", Text: fmt.Sprint(v)}}
		}
		return []Content{{Type: "text", Text: string(b)}}
	default:
		return []Content{{Type: "text", Text: fmt.Sprint(v)}}
	}
}

// AnnotateContent attaches annotations to every element.
func AnnotateContent(content []Content, ann *Annotations) []Content {
	if ann == nil {
		return content
	}
	out := make([]Content, len(content))
	for i, c := range content {
		c.Annotations = ann
		out[i] = c
	}
	return out
}

// ResourceHandler wraps a function returning a resource's contents.
type ResourceHandler struct {
	URI         string
	Name        string
	Description string
	MimeType    string

	fn ResourceFunc
}

// NewResource creates a resource handler for a fixed URI.
func NewResource(uri, name, description, mimeType string, fn ResourceFunc) (*ResourceHandler, error) {
	if uri == "" {
		return nil, fmt.Errorf("resource URI is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("resource %q has no function", uri)
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}
	return &ResourceHandler{URI: uri, Name: name, Description: description, MimeType: mimeType, fn: fn}, nil
}

// MCPFormat returns the resource descriptor served by resources/list.
func (r *ResourceHandler) MCPFormat() map[string]interface{} {
	return map[string]interface{}{
		"uri":         r.URI,
		"name":        r.Name,
		"description": r.Description,
		"mimeType":    r.MimeType,
	}
}

// Read invokes the resource function and shapes its return as a
// single contents chunk.
func (r *ResourceHandler) Read(ctx context.Context) (*ResourceContents, error) {
	result, err := r.fn(ctx)
	if err != nil {
		return nil, NewMCPError(InternalError, fmt.Sprintf("%s: %s", r.URI, err.Error()))
	}
	return &ResourceContents{URI: r.URI, MimeType: r.MimeType, Text: stringifyResource(result)}, nil
}

func stringifyResource(result interface{}) string {
	switch v := result.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// ResourceTemplateHandler wraps a handler bound to a URI template with
// named placeholders, e.g. "file://{path}" or "db://{table}/{id}".
type ResourceTemplateHandler struct {
	URITemplate string
	Name        string
	Description string
	MimeType    string
	Parameters  []*Parameter

	fn      TemplateFunc
	pattern *regexp.Regexp
	keys    []string
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// NewResourceTemplate creates a template handler. Placeholder names
// must appear in the declared parameters (or parameters may be nil, in
// which case bindings pass through as strings).
func NewResourceTemplate(uriTemplate, name, description, mimeType string, params []*Parameter, fn TemplateFunc) (*ResourceTemplateHandler, error) {
	if fn == nil {
		return nil, fmt.Errorf("resource template %q has no function", uriTemplate)
	}
	matches := placeholderPattern.FindAllStringSubmatch(uriTemplate, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("resource template %q has no placeholders", uriTemplate)
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}

	keys := make([]string, 0, len(matches))
	pattern := "^" + regexp.QuoteMeta(uriTemplate) + "$"
	for _, m := range matches {
		keys = append(keys, m[1])
		pattern = strings.Replace(pattern, regexp.QuoteMeta("{"+m[1]+"}"), `([^/]+)`, 1)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("resource template %q: %w", uriTemplate, err)
	}

	return &ResourceTemplateHandler{
		URITemplate: uriTemplate,
		Name:        name,
		Description: description,
		MimeType:    mimeType,
		Parameters:  params,
		fn:          fn,
		pattern:     re,
		keys:        keys,
	}, nil
}

// MCPFormat returns the descriptor served by resources/templates/list.
func (r *ResourceTemplateHandler) MCPFormat() map[string]interface{} {
	return map[string]interface{}{
		"uriTemplate": r.URITemplate,
		"name":        r.Name,
		"description": r.Description,
		"mimeType":    r.MimeType,
	}
}

// Match extracts placeholder bindings from a concrete URI. Returns
// false when the URI does not fit the template.
func (r *ResourceTemplateHandler) Match(uri string) (map[string]string, bool) {
	m := r.pattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, false
	}
	bindings := make(map[string]string, len(r.keys))
	for i, key := range r.keys {
		bindings[key] = m[i+1]
	}
	return bindings, true
}

// Read binds placeholders, coerces them per the declared parameters,
// and invokes the handler.
func (r *ResourceTemplateHandler) Read(ctx context.Context, uri string, bindings map[string]string) (*ResourceContents, error) {
	args := make(map[string]interface{}, len(bindings))
	for k, v := range bindings {
		args[k] = v
	}
	if len(r.Parameters) > 0 {
		validated, err := validateArguments(r.URITemplate, r.Parameters, args)
		if err != nil {
			return nil, err
		}
		args = validated
	}
	result, err := r.fn(ctx, args)
	if err != nil {
		return nil, NewMCPError(InternalError, fmt.Sprintf("%s: %s", r.URITemplate, err.Error()))
	}
	return &ResourceContents{URI: uri, MimeType: r.MimeType, Text: stringifyResource(result)}, nil
}

// PromptHandler wraps one user prompt function.
type PromptHandler struct {
	Name        string
	Description string
	Parameters  []*Parameter

	fn PromptFunc
}

// NewPrompt creates a prompt handler.
func NewPrompt(name, description string, params []*Parameter, fn PromptFunc) (*PromptHandler, error) {
	if name == "" {
		return nil, fmt.Errorf("prompt name is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("prompt %q has no function", name)
	}
	return &PromptHandler{Name: name, Description: description, Parameters: params, fn: fn}, nil
}

// MCPFormat returns the descriptor served by prompts/list.
func (p *PromptHandler) MCPFormat() map[string]interface{} {
	arguments := make([]map[string]interface{}, 0, len(p.Parameters))
	for _, param := range p.Parameters {
		if param.hidden() {
			continue
		}
		arguments = append(arguments, map[string]interface{}{
			"name":        param.Name,
			"description": param.Description,
			"required":    param.Required,
		})
	}
	return map[string]interface{}{
		"name":        p.Name,
		"description": p.Description,
		"arguments":   arguments,
	}
}

// Get validates arguments, invokes the prompt, and shapes the return
// into a messages array.
func (p *PromptHandler) Get(ctx context.Context, args map[string]interface{}) ([]PromptMessage, error) {
	validated, err := validateArguments(p.Name, p.Parameters, args)
	if err != nil {
		return nil, err
	}
	result, err := p.fn(ctx, validated)
	if err != nil {
		return nil, NewMCPError(InternalError, fmt.Sprintf("%s: %s", p.Name, err.Error()))
	}
	return formatPromptMessages(result), nil
}

// formatPromptMessages normalizes a prompt return value. Strings wrap
// as a single user text message; a map with "messages" is unwrapped; a
// map without a role wraps as one user message whose content is the
// map itself.
func formatPromptMessages(result interface{}) []PromptMessage {
	switch v := result.(type) {
	case string:
		return []PromptMessage{userTextMessage(v)}
	case []PromptMessage:
		return v
	case PromptMessage:
		return []PromptMessage{v}
	case []interface{}:
		out := make([]PromptMessage, 0, len(v))
		for _, item := range v {
			out = append(out, formatPromptMessages(item)...)
		}
		return out
	case map[string]interface{}:
		if raw, ok := v["messages"]; ok {
			return formatPromptMessages(raw)
		}
		if role, ok := v["role"].(string); ok {
			return []PromptMessage{{Role: role, Content: v["content"]}}
		}
		return []PromptMessage{{Role: "user", Content: v}}
	default:
		return []PromptMessage{userTextMessage(fmt.Sprint(v))}
	}
}

func userTextMessage(text string) PromptMessage {
	return PromptMessage{
		Role:    "user",
		Content: map[string]interface{}{"type": "text", "text": text},
	}
}
