package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// Frame is one raw WebSocket frame. Binary frames carry PCM audio; text
// frames carry JSON messages.
type Frame struct {
	Binary bool
	Data   []byte
}

// Conn is the transport a Session talks to the desktop client over. It is
// satisfied by WSConn in production and by an in-memory fake in tests.
//
// SendJSON and SendBinary may be called from the session loop and from
// background job goroutines concurrently.
type Conn interface {
	// Receive blocks until the next frame arrives or the connection fails.
	Receive(ctx context.Context) (Frame, error)

	// SendJSON marshals v and sends it as a text frame.
	SendJSON(ctx context.Context, v any) error

	// SendBinary sends raw audio as a binary frame.
	SendBinary(ctx context.Context, data []byte) error

	// Ping checks connection liveness.
	Ping(ctx context.Context) error
}

// WSConn adapts a coder/websocket connection to the Conn interface, adding
// the write serialization the underlying connection requires.
type WSConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

var _ Conn = (*WSConn)(nil)

// NewWSConn wraps an accepted WebSocket connection.
func NewWSConn(c *websocket.Conn) *WSConn {
	return &WSConn{c: c}
}

// Receive reads one frame.
func (w *WSConn) Receive(ctx context.Context) (Frame, error) {
	typ, data, err := w.c.Read(ctx)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Binary: typ == websocket.MessageBinary, Data: data}, nil
}

// SendJSON sends v as a JSON text frame.
func (w *WSConn) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: marshal outbound %T: %w", v, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.Write(ctx, websocket.MessageText, data)
}

// SendBinary sends a binary audio frame.
func (w *WSConn) SendBinary(ctx context.Context, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.Write(ctx, websocket.MessageBinary, data)
}

// Ping checks liveness.
func (w *WSConn) Ping(ctx context.Context) error {
	return w.c.Ping(ctx)
}

// isNormalClose reports whether err is the client hanging up cleanly.
func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
