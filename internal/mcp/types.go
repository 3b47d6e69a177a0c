// Package mcp implements the server side of the Model Context Protocol for
// the catalog tools: JSON-RPC request framing (single or batched), the fixed
// tool registry, session issuance, and the stdio/HTTP transports with an
// optional server-push channel.
package mcp

import (
	"encoding/json"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// Request is one JSON-RPC 2.0 request or notification. A nil ID marks a
// notification: it is processed but produces no response entry.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is one JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a response envelope.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newResult(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

func newError(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Error: &RPCError{Code: code, Message: message}}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// ToolSchema declares one operation of the fixed tool table.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ContentBlock is one entry of a tool result's content envelope.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the uniform tool invocation outcome. Failures are carried as
// data (IsError true), never as transport-level errors.
type CallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// textResult wraps a JSON-shaped value into the text content envelope.
func textResult(v interface{}) (*CallResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &CallResult{Content: []ContentBlock{{Type: "text", Text: string(data)}}}, nil
}

// errorResult wraps a failure message into the same envelope with the error
// flag set.
func errorResult(msg string) *CallResult {
	return &CallResult{
		Content: []ContentBlock{{Type: "text", Text: msg}},
		IsError: true,
	}
}

// initializeResult is the capability metadata returned by initialize.
type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerInfo      serverInfo   `json:"serverInfo"`
}

type capabilities struct {
	Tools struct{} `json:"tools"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// listToolsResult is the tools/list payload.
type listToolsResult struct {
	Tools []ToolSchema `json:"tools"`
}

// callParams are the tools/call parameters.
type callParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}
