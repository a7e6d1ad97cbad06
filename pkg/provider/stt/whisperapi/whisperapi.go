// Package whisperapi provides an STT provider backed by the OpenAI Whisper
// transcription API. It implements the stt.Provider interface.
//
// Raw PCM is wrapped in a minimal WAV container before upload since the API
// refuses headerless audio.
package whisperapi

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	sampleRate    = 16000
	bitsPerSample = 16
	channels      = 1
)

// Option is a functional option for the Provider.
type Option func(*Provider)

// WithModel overrides the transcription model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithLanguage pins the transcription language (ISO-639-1).
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// Provider implements stt.Provider using the OpenAI audio transcription API.
type Provider struct {
	client   oai.Client
	model    string
	language string
	baseURL  string
}

// New constructs a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("whisperapi: apiKey must not be empty")
	}
	p := &Provider{model: string(oai.AudioModelWhisper1)}
	for _, o := range opts {
		o(p)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// TranscribeOnce implements stt.Provider.
func (p *Provider) TranscribeOnce(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wavEncode(pcm)), "turn.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("whisperapi: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// wavEncode prefixes pcm with a canonical 44-byte RIFF/WAVE header.
func wavEncode(pcm []byte) []byte {
	const headerLen = 44
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, headerLen, headerLen+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	return append(buf, pcm...)
}
