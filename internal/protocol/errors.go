package protocol

// ErrorCode classifies a turn-level failure surfaced to the client.
type ErrorCode string

const (
	ErrSTTFailed       ErrorCode = "E_STT_FAILED"
	ErrTTSFailed       ErrorCode = "E_TTS_FAILED"
	ErrRPCTimeout      ErrorCode = "E_RPC_TIMEOUT"
	ErrGraphFailed     ErrorCode = "E_GRAPH_FAILED"
	ErrAuthExpired     ErrorCode = "E_AUTH_EXPIRED"
	ErrModelOverloaded ErrorCode = "E_MODEL_OVERLOADED"
)

// ErrorEnvelope is the structured error message sent when a turn fails.
// The session stays open; Recoverable tells the client whether retrying
// the same input is worthwhile.
type ErrorEnvelope struct {
	Type        string         `json:"type"`
	Code        ErrorCode      `json:"code"`
	Message     string         `json:"message"`
	Recoverable bool           `json:"recoverable"`
	SessionID   string         `json:"session_id"`
	Details     map[string]any `json:"details,omitempty"`
}

// NewError builds an error envelope for the given session.
func NewError(code ErrorCode, message, sessionID string, recoverable bool) ErrorEnvelope {
	return ErrorEnvelope{
		Type:        "error",
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
		SessionID:   sessionID,
	}
}
