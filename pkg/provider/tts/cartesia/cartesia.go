// Package cartesia provides a Cartesia Sonic-backed TTS provider using the
// Cartesia streaming WebSocket API. It implements the tts.Provider interface.
package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/tts"
)

const (
	defaultEndpoint = "wss://api.cartesia.ai/tts/websocket"
	apiVersion      = "2024-06-10"
	defaultModel    = "sonic-english"
	defaultVoice    = "a0e99841-438c-4a64-b679-ae501e7d6091"
	sampleRate      = 16000
)

// Option is a functional option for configuring the Cartesia Provider.
type Option func(*Provider)

// WithModel sets the Cartesia model ID (e.g., "sonic-english", "sonic-2").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithVoice sets the Cartesia voice ID.
func WithVoice(voiceID string) Option {
	return func(p *Provider) { p.voiceID = voiceID }
}

// WithEndpoint overrides the WebSocket endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithSpeed sets the speaking speed; Cartesia accepts "slowest" … "fastest".
func WithSpeed(speed string) Option {
	return func(p *Provider) { p.speed = speed }
}

// Provider implements tts.Provider backed by the Cartesia streaming API.
type Provider struct {
	apiKey   string
	model    string
	voiceID  string
	speed    string
	endpoint string
}

// New creates a new Cartesia Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("cartesia: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		voiceID:  defaultVoice,
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ─── WebSocket message types ───

// request is the synthesis request sent once per stream.
type request struct {
	ContextID    string       `json:"context_id"`
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voiceSpec    `json:"voice"`
	OutputFormat outputFormat `json:"output_format"`
	Language     string       `json:"language"`
	Speed        string       `json:"speed,omitempty"`
}

type voiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// response covers the message variants Cartesia sends back.
type response struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"` // base64 PCM on "chunk"
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// SynthesizeStream implements tts.Provider. It opens a WebSocket, sends one
// synthesis request, and forwards decoded PCM chunks until the server reports
// done. Binary frames and base64 "chunk" JSON frames are both accepted.
func (p *Provider) SynthesizeStream(ctx context.Context, text string) (<-chan []byte, <-chan error, error) {
	if text == "" {
		return nil, nil, errors.New("cartesia: text must not be empty")
	}

	wsURL, err := p.buildURL()
	if err != nil {
		return nil, nil, fmt.Errorf("cartesia: build URL: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("cartesia: dial: %w", err)
	}

	req := request{
		ContextID:  uuid.NewString(),
		ModelID:    p.model,
		Transcript: text,
		Voice:      voiceSpec{Mode: "id", ID: p.voiceID},
		OutputFormat: outputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: sampleRate,
		},
		Language: "en",
		Speed:    p.speed,
	}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "marshal request")
		return nil, nil, fmt.Errorf("cartesia: marshal request: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, reqBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "send request")
		return nil, nil, fmt.Errorf("cartesia: send request: %w", err)
	}

	audio := make(chan []byte, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(audio)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		for {
			kind, msg, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("cartesia: read: %w", err)
				}
				return
			}

			if kind == websocket.MessageBinary {
				if !send(ctx, audio, msg) {
					return
				}
				continue
			}

			var resp response
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			switch resp.Type {
			case "chunk":
				pcm, err := base64.StdEncoding.DecodeString(resp.Data)
				if err != nil || len(pcm) == 0 {
					continue
				}
				if !send(ctx, audio, pcm) {
					return
				}
			case "done":
				return
			case "error":
				errs <- fmt.Errorf("cartesia: server error: %s", resp.Error)
				return
			}
		}
	}()

	return audio, errs, nil
}

func send(ctx context.Context, ch chan<- []byte, chunk []byte) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("api_key", p.apiKey)
	q.Set("cartesia_version", apiVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ tts.Provider = (*Provider)(nil)
