package protocol

import "encoding/json"

// RPCRequest is a JSON-RPC 2.0 request sent to the client's tool executor.
type RPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	Meta    *RPCMeta       `json:"meta,omitempty"`
}

// RPCMeta carries tracing context alongside a request.
type RPCMeta struct {
	TraceID string `json:"trace_id,omitempty"`
}

// NewRPCRequest builds a JSON-RPC 2.0 request for the given client method.
func NewRPCRequest(id, method string, params map[string]any, traceID string) RPCRequest {
	req := RPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if traceID != "" {
		req.Meta = &RPCMeta{TraceID: traceID}
	}
	return req
}

// Client-side methods invoked over JSON-RPC.
const (
	MethodSearchProject  = "local/search_project"
	MethodReadFile       = "local/read_file"
	MethodListDirectory  = "local/list_directory"
	MethodGlobFind       = "local/glob_find"
	MethodWriteFile      = "local/write_file"
	MethodExecuteCommand = "local/execute_command"
)

// ResultText renders an RPC reply as the string a tool result message carries.
// A JSON string result is unquoted; anything else keeps its JSON encoding.
// A populated Error field wins over Result.
func (r *RPCResult) ResultText() string {
	if len(r.Error) > 0 && string(r.Error) != "null" {
		var e struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(r.Error, &e); err == nil && e.Message != "" {
			return "Error: " + e.Message
		}
		return "Error: " + string(r.Error)
	}
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}
