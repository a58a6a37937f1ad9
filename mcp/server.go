package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/log"
)

// Registry errors.
var (
	ErrDuplicateTool     = errors.New("tool already registered")
	ErrDuplicateResource = errors.New("resource already registered")
	ErrInvalidTool       = errors.New("invalid tool registration")
	ErrInvalidResource   = errors.New("invalid resource registration")
)

// ToolHandler executes one tool call. The returned value is rendered as
// indented JSON into the text envelope; errors become error envelopes with
// the message surfaced verbatim.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Tool couples a name, a description, an argument schema, and a handler.
type Tool struct {
	Name        string
	Description string
	InputSchema InputSchema
	Handler     ToolHandler
}

// ResourceHandler serves one resource read. uri is the concrete URI that was
// requested; params carries the template bindings (empty for literal URIs).
type ResourceHandler func(ctx context.Context, uri string, params map[string]string) (any, error)

// Resource couples a URI (literal or {var} template) with a handler.
type Resource struct {
	Name        string
	URI         string
	Description string
	MIMEType    string
	Handler     ResourceHandler
}

// ToolObserver is invoked after every tools/call dispatch. The node uses it
// to feed invocation counters and latency meters.
type ToolObserver func(tool string, elapsed time.Duration, isError bool)

// Server dispatches MCP requests to registered tools and resources. All
// methods are safe for concurrent use; registration normally happens before
// a transport starts but is not required to.
type Server struct {
	info ServerInfo

	mu        sync.RWMutex
	tools     map[string]*Tool
	literals  map[string]*registeredResource
	templates []*registeredResource

	observer ToolObserver
	log      *log.Logger
}

type registeredResource struct {
	res  Resource
	tmpl *uriTemplate
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the server's logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithToolObserver installs a post-dispatch hook for tool calls.
func WithToolObserver(fn ToolObserver) Option {
	return func(s *Server) { s.observer = fn }
}

// NewServer creates an empty MCP server identifying itself with the given
// name and version during the initialize handshake.
func NewServer(name, version string, opts ...Option) *Server {
	s := &Server{
		info:     ServerInfo{Name: name, Version: version},
		tools:    make(map[string]*Tool),
		literals: make(map[string]*registeredResource),
		log:      log.Default().Module("mcp"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterTool adds a tool to the registry. Registering a name twice is an
// error so wiring mistakes surface at startup, not at call time.
func (s *Server) RegisterTool(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}
	if t.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidTool, t.Name)
	}
	if t.InputSchema.Type == "" {
		t.InputSchema.Type = "object"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
	}
	s.tools[t.Name] = &t
	return nil
}

// RegisterResource adds a resource to the registry. URIs containing {var}
// segments register as templates served by resources/templates/list; plain
// URIs register as literal resources served by resources/list. Both resolve
// through resources/read.
func (s *Server) RegisterResource(r Resource) error {
	if r.URI == "" {
		return fmt.Errorf("%w: empty uri", ErrInvalidResource)
	}
	if r.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidResource, r.URI)
	}
	tmpl, err := parseURITemplate(r.URI)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResource, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tmpl.isLiteral() {
		if _, exists := s.literals[r.URI]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateResource, r.URI)
		}
		s.literals[r.URI] = &registeredResource{res: r, tmpl: tmpl}
		return nil
	}
	for _, existing := range s.templates {
		if existing.res.URI == r.URI {
			return fmt.Errorf("%w: %s", ErrDuplicateResource, r.URI)
		}
	}
	s.templates = append(s.templates, &registeredResource{res: r, tmpl: tmpl})
	return nil
}

// ToolNames returns the registered tool names sorted alphabetically.
func (s *Server) ToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResourceCount returns how many literal resources and templates are
// registered.
func (s *Server) ResourceCount() (literals, templates int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.literals), len(s.templates)
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// HandleMessage parses one JSON-RPC message and dispatches it. The returned
// bytes are the marshaled response, or nil when the message was a
// notification. Malformed JSON yields a parse-error response with a null ID.
func (s *Server) HandleMessage(ctx context.Context, data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return marshalResponse(errorResponse(nil, ErrCodeParse, "parse error: invalid JSON"))
	}

	resp := s.dispatch(ctx, &req)
	if resp == nil {
		return nil
	}
	return marshalResponse(resp)
}

// dispatch routes a parsed request. Notifications return nil.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		s.log.Debug("notification received", "method", req.Method)
		return nil
	}
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, ErrCodeInvalidRequest, "invalid jsonrpc version")
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		return resultResponse(req.ID, s.listTools())
	case "tools/call":
		return s.handleCallTool(ctx, req)
	case "resources/list":
		return resultResponse(req.ID, s.listResources())
	case "resources/templates/list":
		return resultResponse(req.ID, s.listResourceTemplates())
	case "resources/read":
		return s.handleReadResource(ctx, req)
	default:
		return errorResponse(req.ID, ErrCodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, "invalid initialize params")
		}
	}
	s.log.Info("client initialized",
		"client", params.ClientInfo.Name,
		"clientVersion", params.ClientInfo.Version,
		"protocolVersion", params.ProtocolVersion)

	return resultResponse(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: Capabilities{
			Tools:     &ToolsCapability{},
			Resources: &ResourcesCapability{},
		},
		ServerInfo: s.info,
	})
}

func (s *Server) listTools() ListToolsResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := ListToolsResult{Tools: make([]ToolDescriptor, 0, len(s.tools))}
	for _, t := range s.tools {
		out.Tools = append(out.Tools, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	sort.Slice(out.Tools, func(i, j int) bool { return out.Tools[i].Name < out.Tools[j].Name })
	return out
}

func (s *Server) handleCallTool(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, ErrCodeInvalidParams, "invalid tools/call params")
	}
	if params.Name == "" {
		return errorResponse(req.ID, ErrCodeInvalidParams, "missing tool name")
	}

	s.mu.RLock()
	tool, ok := s.tools[params.Name]
	s.mu.RUnlock()
	if !ok {
		return errorResponse(req.ID, ErrCodeInvalidParams, "unknown tool: "+params.Name)
	}

	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	start := time.Now()
	result := s.invokeTool(ctx, tool, params.Arguments)
	elapsed := time.Since(start)

	if s.observer != nil {
		s.observer(tool.Name, elapsed, result.IsError)
	}
	s.log.Debug("tool dispatched",
		"tool", tool.Name,
		"elapsed", elapsed.String(),
		"isError", result.IsError)
	return resultResponse(req.ID, result)
}

// invokeTool validates arguments and runs the handler. Every failure mode,
// including a handler panic, lands in the error envelope so callers always
// receive a well-formed tool result.
func (s *Server) invokeTool(ctx context.Context, tool *Tool, args map[string]any) (result *CallToolResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tool handler panic", "tool", tool.Name, "panic", fmt.Sprint(r))
			result = NewErrorResult(fmt.Sprintf("%v: tool %s failed", gateway.ErrLogic, tool.Name))
		}
	}()

	if err := tool.InputSchema.Validate(args); err != nil {
		return NewErrorResult(err.Error())
	}

	value, err := tool.Handler(ctx, args)
	if err != nil {
		s.log.Warn("tool failed", "tool", tool.Name, "err", err)
		return NewErrorResult(err.Error())
	}

	res, err := NewTextResult(value)
	if err != nil {
		s.log.Error("tool result not serializable", "tool", tool.Name, "err", err)
		return NewErrorResult(fmt.Sprintf("%v: encode %s result", gateway.ErrLogic, tool.Name))
	}
	return res
}

func (s *Server) listResources() ListResourcesResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := ListResourcesResult{Resources: make([]ResourceDescriptor, 0, len(s.literals))}
	for _, rr := range s.literals {
		out.Resources = append(out.Resources, ResourceDescriptor{
			URI:         rr.res.URI,
			Name:        rr.res.Name,
			Description: rr.res.Description,
			MIMEType:    rr.res.MIMEType,
		})
	}
	sort.Slice(out.Resources, func(i, j int) bool { return out.Resources[i].URI < out.Resources[j].URI })
	return out
}

func (s *Server) listResourceTemplates() ListResourceTemplatesResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := ListResourceTemplatesResult{
		ResourceTemplates: make([]ResourceTemplateDescriptor, 0, len(s.templates)),
	}
	for _, rr := range s.templates {
		out.ResourceTemplates = append(out.ResourceTemplates, ResourceTemplateDescriptor{
			URITemplate: rr.res.URI,
			Name:        rr.res.Name,
			Description: rr.res.Description,
			MIMEType:    rr.res.MIMEType,
		})
	}
	sort.Slice(out.ResourceTemplates, func(i, j int) bool {
		return out.ResourceTemplates[i].URITemplate < out.ResourceTemplates[j].URITemplate
	})
	return out
}

func (s *Server) handleReadResource(ctx context.Context, req *Request) *Response {
	var params ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, ErrCodeInvalidParams, "invalid resources/read params")
	}
	if params.URI == "" {
		return errorResponse(req.ID, ErrCodeInvalidParams, "missing resource uri")
	}

	rr, bindings := s.resolveResource(params.URI)
	if rr == nil {
		return errorResponse(req.ID, ErrCodeResourceNotFound, "unknown resource: "+params.URI)
	}

	value, err := rr.res.Handler(ctx, params.URI, bindings)
	if err != nil {
		s.log.Warn("resource read failed", "uri", params.URI, "err", err)
		return errorResponse(req.ID, ErrCodeInternal, err.Error())
	}
	body, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResponse(req.ID, ErrCodeInternal, "encode resource result: "+err.Error())
	}

	return resultResponse(req.ID, ReadResourceResult{
		Contents: []ResourceContents{{
			URI:      params.URI,
			MIMEType: orDefault(rr.res.MIMEType, "application/json"),
			Text:     string(body),
		}},
	})
}

// resolveResource matches a concrete URI against the literal registry first,
// then against templates in registration order.
func (s *Server) resolveResource(uri string) (*registeredResource, map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rr, ok := s.literals[uri]; ok {
		return rr, map[string]string{}
	}
	for _, rr := range s.templates {
		if params, ok := rr.tmpl.match(uri); ok {
			return rr, params
		}
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", Result: result, ID: id}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", Error: &RPCError{Code: code, Message: message}, ID: id}
}

func marshalResponse(resp *Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// A response that cannot marshal is a programming error; emit a
		// minimal internal-error frame instead of dropping the request.
		fallback := fmt.Sprintf(`{"jsonrpc":"2.0","error":{"code":%d,"message":"internal marshal failure"},"id":null}`, ErrCodeInternal)
		return []byte(fallback)
	}
	return data
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
