// Package mcp implements the Model Context Protocol server surface of the
// gateway: tool and resource registries, JSON Schema argument validation,
// result and error envelopes, and the stdio and HTTP transports. Handlers
// plug in through RegisterTool and RegisterResource; the package owns the
// JSON-RPC 2.0 framing and nothing else.
package mcp

import (
	"encoding/json"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// JSON-RPC 2.0 error codes.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603

	// ErrCodeResourceNotFound is the MCP-assigned code for a read of an
	// unregistered resource URI.
	ErrCodeResourceNotFound = -32002
)

// Request is a JSON-RPC 2.0 request. MCP uses named parameters, so Params
// is a raw object rather than a positional array. A missing ID marks a
// notification; notifications never receive a response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no ID.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is
// set. ID always marshals, echoing the request ID or null on parse errors.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// ---------------------------------------------------------------------------
// Handshake
// ---------------------------------------------------------------------------

// ServerInfo names the server implementation in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo names the connecting client; read from initialize params for
// logging only.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is the client half of the handshake.
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

// InitializeResult is the server half of the handshake.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// Capabilities advertises the surfaces this server exposes.
type Capabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
}

// ToolsCapability advertises the tool surface.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability advertises the resource surface.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ---------------------------------------------------------------------------
// Tool surface
// ---------------------------------------------------------------------------

// ToolDescriptor is the tools/list entry for one registered tool.
type ToolDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"inputSchema"`
}

// ListToolsResult is the tools/list response body.
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// CallToolParams is the tools/call parameter object.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// TextContent is one text block inside a tool result.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the tool envelope: a content list plus an error flag
// that is omitted on success.
type CallToolResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// NewTextResult wraps the JSON rendering of v in a success envelope.
func NewTextResult(v any) (*CallToolResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &CallToolResult{
		Content: []TextContent{{Type: "text", Text: string(body)}},
	}, nil
}

// NewErrorResult wraps a handler error message in an error envelope.
func NewErrorResult(msg string) *CallToolResult {
	return &CallToolResult{
		Content: []TextContent{{Type: "text", Text: msg}},
		IsError: true,
	}
}

// ---------------------------------------------------------------------------
// Resource surface
// ---------------------------------------------------------------------------

// ResourceDescriptor is the resources/list entry for one literal resource.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult is the resources/list response body.
type ListResourcesResult struct {
	Resources []ResourceDescriptor `json:"resources"`
}

// ResourceTemplateDescriptor is the resources/templates/list entry for one
// parameterized resource.
type ResourceTemplateDescriptor struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
}

// ListResourceTemplatesResult is the resources/templates/list response body.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplateDescriptor `json:"resourceTemplates"`
}

// ReadResourceParams is the resources/read parameter object.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ResourceContents is one body inside a resources/read result.
type ResourceContents struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// ReadResourceResult is the resource envelope.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}
