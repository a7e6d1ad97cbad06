package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestToolCallArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		arguments string
		wantKey   string
		wantVal   any
		wantErr   bool
	}{
		{name: "object", arguments: `{"query":"auth","max_results":5}`, wantKey: "query", wantVal: "auth"},
		{name: "empty string", arguments: "", wantKey: "", wantVal: nil},
		{name: "whitespace", arguments: "  \n", wantKey: "", wantVal: nil},
		{name: "malformed", arguments: `{"query":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			args, err := ToolCall{Name: "search_codebase", Arguments: tt.arguments}.Args()
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Args: %v", err)
			}
			if tt.wantKey == "" {
				if len(args) != 0 {
					t.Errorf("args = %v, want empty", args)
				}
				return
			}
			if args[tt.wantKey] != tt.wantVal {
				t.Errorf("args[%q] = %v, want %v", tt.wantKey, args[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestFlattenParts(t *testing.T) {
	t.Parallel()

	plain := Message{Role: RoleTool, Content: "just text"}
	if got := plain.FlattenParts(); got != "just text" {
		t.Errorf("FlattenParts = %q", got)
	}

	multi := Message{
		Role: RoleTool,
		Parts: []ContentPart{
			{Type: "text", Text: "Captured 2 frames."},
			{Type: "image", ImageB64: "aGVsbG8=", MediaType: "image/png"},
		},
	}
	got := multi.FlattenParts()
	want := "Captured 2 frames.\n[screen frame attached: image/png, 8 bytes base64]"
	if got != want {
		t.Errorf("FlattenParts = %q, want %q", got, want)
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "rate limited", err: fmt.Errorf("status 429: rate limit exceeded"), want: ErrOverloaded},
		{name: "overloaded", err: fmt.Errorf("upstream overloaded"), want: ErrOverloaded},
		{name: "bad key", err: fmt.Errorf("401 authentication failed"), want: ErrAuth},
		{name: "other", err: fmt.Errorf("connection reset"), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ClassifyError(tt.err)
			if tt.want == nil {
				if !errors.Is(got, tt.err) || errors.Is(got, ErrOverloaded) || errors.Is(got, ErrAuth) {
					t.Errorf("ClassifyError = %v, want unchanged", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("ClassifyError = %v, want %v", got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("original error not wrapped")
			}
		})
	}

	if ClassifyError(nil) != nil {
		t.Error("ClassifyError(nil) != nil")
	}
}
