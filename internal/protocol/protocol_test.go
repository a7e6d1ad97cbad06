package protocol

import (
	"encoding/json"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     string
		wantKind Kind
		wantErr  bool
	}{
		{
			name:     "text input",
			data:     `{"type":"text_input","text":"hello"}`,
			wantKind: KindTextInput,
		},
		{
			name:     "tagged rpc result",
			data:     `{"type":"mcp_result","id":"abc","result":"ok"}`,
			wantKind: KindRPCResult,
		},
		{
			name:     "bare jsonrpc reply",
			data:     `{"jsonrpc":"2.0","id":"abc","result":"ok"}`,
			wantKind: KindRPCResult,
		},
		{
			name:     "auth sync",
			data:     `{"type":"auth_sync","token":"t","uid":"u"}`,
			wantKind: KindAuthSync,
		},
		{
			name:     "proposal decision",
			data:     `{"type":"proposal_decision","decisions":[{"proposal_id":"p1","status":"approved"}]}`,
			wantKind: KindProposalDecision,
		},
		{
			name:     "screen frames",
			data:     `{"type":"screen_frames","frames":["aGk="]}`,
			wantKind: KindScreenFrames,
		},
		{
			name:    "unknown type",
			data:    `{"type":"bogus"}`,
			wantErr: true,
		},
		{
			name:    "neither type nor id",
			data:    `{"hello":"world"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			data:    `pcm garbage`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in, err := Parse([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%s) = %v, want error", tt.data, in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%s) error: %v", tt.data, err)
			}
			if in.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", in.Kind, tt.wantKind)
			}
		})
	}
}

func TestParseBareReplyPopulatesResult(t *testing.T) {
	t.Parallel()

	in, err := Parse([]byte(`{"jsonrpc":"2.0","id":"call-1","result":"3 matches"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if in.RPCResult == nil {
		t.Fatal("RPCResult is nil")
	}
	if in.RPCResult.ID != "call-1" {
		t.Errorf("ID = %q, want call-1", in.RPCResult.ID)
	}
	if got := in.RPCResult.ResultText(); got != "3 matches" {
		t.Errorf("ResultText = %q, want %q", got, "3 matches")
	}
}

func TestResultText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result string
		errObj string
		want   string
	}{
		{name: "string result unquoted", result: `"plain text"`, want: "plain text"},
		{name: "object result kept as json", result: `{"files":["a.go"]}`, want: `{"files":["a.go"]}`},
		{name: "error with message", errObj: `{"code":-32000,"message":"no such file"}`, want: "Error: no such file"},
		{name: "error without message", errObj: `"boom"`, want: `Error: "boom"`},
		{name: "empty", want: ""},
		{name: "null result", result: `null`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &RPCResult{}
			if tt.result != "" {
				r.Result = json.RawMessage(tt.result)
			}
			if tt.errObj != "" {
				r.Error = json.RawMessage(tt.errObj)
			}
			if got := r.ResultText(); got != tt.want {
				t.Errorf("ResultText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("short", 500); got != "short" {
		t.Errorf("Truncate(short) = %q", got)
	}
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	got := Truncate(string(long), 500)
	if len(got) != 500+len("…") {
		t.Errorf("len(Truncate) = %d, want %d", len(got), 500+len("…"))
	}
}

func TestNewRPCRequest(t *testing.T) {
	t.Parallel()

	req := NewRPCRequest("id-1", MethodSearchProject, map[string]any{"query": "auth"}, "trace-9")
	if req.JSONRPC != "2.0" {
		t.Errorf("JSONRPC = %q", req.JSONRPC)
	}
	if req.Meta == nil || req.Meta.TraceID != "trace-9" {
		t.Errorf("Meta = %+v, want trace-9", req.Meta)
	}

	noTrace := NewRPCRequest("id-2", MethodReadFile, nil, "")
	if noTrace.Meta != nil {
		t.Errorf("Meta = %+v, want nil", noTrace.Meta)
	}
}
