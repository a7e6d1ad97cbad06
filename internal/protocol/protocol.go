// Package protocol defines the wire types exchanged with the desktop client
// over the /ws/voco-stream WebSocket.
//
// Text frames carry UTF-8 JSON objects tagged by a "type" field. Binary frames
// carry raw PCM-16 LE mono 16 kHz audio in both directions. The client may also
// send bare JSON-RPC 2.0 reply objects (no "type", with "id"); Parse normalises
// those to KindRPCResult so the session demultiplexer has a single switch.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies an inbound client message after parsing.
type Kind string

const (
	KindTextInput          Kind = "text_input"
	KindRPCResult          Kind = "mcp_result"
	KindAuthSync           Kind = "auth_sync"
	KindUpdateEnv          Kind = "update_env"
	KindProposalDecision   Kind = "proposal_decision"
	KindCommandDecision    Kind = "command_decision"
	KindScreenFrames       Kind = "screen_frames"
	KindScanSecurityResult Kind = "scan_security_result"
)

// ─── Client → Server ───

// TextInput is a typed message that starts a turn without STT.
type TextInput struct {
	Type Kind   `json:"type"`
	Text string `json:"text"`
}

// RPCResult is the client's reply to an outstanding tool RPC. The same shape
// covers both the tagged "mcp_result" form and a bare JSON-RPC 2.0 reply.
type RPCResult struct {
	Type   Kind            `json:"type,omitempty"`
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// AuthSync refreshes the session's credentials mid-connection.
type AuthSync struct {
	Type             Kind   `json:"type"`
	Token            string `json:"token"`
	UID              string `json:"uid"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	VocoSessionToken string `json:"voco_session_token,omitempty"`
}

// UpdateEnv merges allow-listed keys into the process environment.
type UpdateEnv struct {
	Type Kind              `json:"type"`
	Env  map[string]string `json:"env"`
}

// Decision is one item of a proposal_decision or command_decision list.
// Output is only present on approved command decisions (captured stdout).
type Decision struct {
	ProposalID string `json:"proposal_id,omitempty"`
	CommandID  string `json:"command_id,omitempty"`
	Status     string `json:"status"`
	Output     string `json:"output,omitempty"`
}

const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// DecisionList carries the user's verdicts during a HITL wait.
type DecisionList struct {
	Type      Kind       `json:"type"`
	Decisions []Decision `json:"decisions"`
}

// ScreenFrames is the reply to a screen_capture_request.
type ScreenFrames struct {
	Type      Kind     `json:"type"`
	Frames    []string `json:"frames"`
	MediaType string   `json:"media_type,omitempty"`
}

// ScanSecurityResult is the reply to a scan_security_request.
type ScanSecurityResult struct {
	Type     Kind            `json:"type"`
	Findings json.RawMessage `json:"findings"`
}

// Inbound is a parsed client text frame. Exactly one payload field matching
// Kind is populated; Raw always holds the original bytes.
type Inbound struct {
	Kind Kind
	Raw  []byte

	TextInput    *TextInput
	RPCResult    *RPCResult
	AuthSync     *AuthSync
	UpdateEnv    *UpdateEnv
	Decisions    *DecisionList
	ScreenFrames *ScreenFrames
	ScanResult   *ScanSecurityResult
}

// Parse decodes a client text frame into an Inbound. Untyped objects carrying
// an "id" are treated as JSON-RPC replies; anything else is an error.
func Parse(data []byte) (*Inbound, error) {
	var head struct {
		Type Kind   `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("protocol: decode frame: %w", err)
	}

	in := &Inbound{Kind: head.Type, Raw: data}
	switch head.Type {
	case KindTextInput:
		in.TextInput = &TextInput{}
		return in, unmarshalInto(data, in.TextInput)
	case KindRPCResult:
		in.RPCResult = &RPCResult{}
		return in, unmarshalInto(data, in.RPCResult)
	case KindAuthSync:
		in.AuthSync = &AuthSync{}
		return in, unmarshalInto(data, in.AuthSync)
	case KindUpdateEnv:
		in.UpdateEnv = &UpdateEnv{}
		return in, unmarshalInto(data, in.UpdateEnv)
	case KindProposalDecision, KindCommandDecision:
		in.Decisions = &DecisionList{}
		return in, unmarshalInto(data, in.Decisions)
	case KindScreenFrames:
		in.ScreenFrames = &ScreenFrames{}
		return in, unmarshalInto(data, in.ScreenFrames)
	case KindScanSecurityResult:
		in.ScanResult = &ScanSecurityResult{}
		return in, unmarshalInto(data, in.ScanResult)
	case "":
		if head.ID == "" {
			return nil, fmt.Errorf("protocol: frame has neither type nor id")
		}
		in.Kind = KindRPCResult
		in.RPCResult = &RPCResult{}
		return in, unmarshalInto(data, in.RPCResult)
	default:
		return nil, fmt.Errorf("protocol: unknown message type %q", head.Type)
	}
}

func unmarshalInto(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("protocol: decode %T: %w", v, err)
	}
	return nil
}

// ─── Server → Client ───

// SessionInit is the first message sent after the WebSocket is accepted.
type SessionInit struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func NewSessionInit(sessionID string) SessionInit {
	return SessionInit{Type: "session_init", SessionID: sessionID}
}

// Transcript reports what STT heard for the current turn.
type Transcript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewTranscript(text string) Transcript {
	return Transcript{Type: "transcript", Text: text}
}

// Control carries small playback and turn lifecycle signals.
type Control struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	Text      string `json:"text,omitempty"`
	TTSActive *bool  `json:"tts_active,omitempty"`
	TurnCount int    `json:"turn_count,omitempty"`
}

const (
	ActionTurnEnded         = "turn_ended"
	ActionTTSStart          = "tts_start"
	ActionTTSEnd            = "tts_end"
	ActionHaltAudioPlayback = "halt_audio_playback"
)

func NewControl(action string) Control {
	return Control{Type: "control", Action: action}
}

// Proposal asks the user to approve a file create or edit.
type Proposal struct {
	Type        string `json:"type"`
	ProposalID  string `json:"proposal_id"`
	Action      string `json:"action"`
	FilePath    string `json:"file_path"`
	Content     string `json:"content,omitempty"`
	Diff        string `json:"diff,omitempty"`
	Description string `json:"description,omitempty"`
	ProjectRoot string `json:"project_root,omitempty"`
}

// CommandProposal asks the user to approve a shell command.
type CommandProposal struct {
	Type        string `json:"type"`
	CommandID   string `json:"command_id"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
}

// ScreenCaptureRequest asks the client for recent screen frames.
type ScreenCaptureRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ScanSecurityRequest asks the client to run a local security scan.
type ScanSecurityRequest struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	ProjectPath string `json:"project_path"`
}

// SandboxNotice tells the client a sandbox preview went live or changed.
// Type is "sandbox_live" or "sandbox_updated".
type SandboxNotice struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// LedgerUpdate mirrors reasoning progress onto the client's visual ledger.
type LedgerUpdate struct {
	Type   string `json:"type"`
	NodeID string `json:"node_id"`
	Label  string `json:"label"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

func NewLedgerUpdate(nodeID, label, status string) LedgerUpdate {
	return LedgerUpdate{Type: "ledger_update", NodeID: nodeID, Label: label, Status: status}
}

// LedgerClear wipes the client's visual ledger after a failed turn.
type LedgerClear struct {
	Type string `json:"type"`
}

func NewLedgerClear() LedgerClear {
	return LedgerClear{Type: "ledger_clear"}
}

// BackgroundJobStart announces an Instant-ACK dispatch.
type BackgroundJobStart struct {
	Type     string `json:"type"`
	JobID    string `json:"job_id"`
	ToolName string `json:"tool_name"`
}

func NewBackgroundJobStart(jobID, toolName string) BackgroundJobStart {
	return BackgroundJobStart{Type: "background_job_start", JobID: jobID, ToolName: toolName}
}

// AsyncJobUpdate reports the terminal status of a background job.
// Result is truncated to AsyncResultLimit characters before sending.
type AsyncJobUpdate struct {
	Type     string `json:"type"`
	JobID    string `json:"job_id"`
	ToolName string `json:"tool_name"`
	Status   string `json:"status"`
	Result   string `json:"result"`
}

// AsyncResultLimit bounds the result preview in an AsyncJobUpdate.
const AsyncResultLimit = 500

func NewAsyncJobUpdate(jobID, toolName, status, result string) AsyncJobUpdate {
	return AsyncJobUpdate{
		Type:     "async_job_update",
		JobID:    jobID,
		ToolName: toolName,
		Status:   status,
		Result:   Truncate(result, AsyncResultLimit),
	}
}

// Truncate limits s to max runes-as-bytes, appending an ellipsis marker when cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
