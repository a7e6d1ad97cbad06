// Package deepgram provides a Deepgram-backed STT provider using the
// pre-recorded listen API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultEndpoint   = "https://api.deepgram.com/v1/listen"
	defaultModel      = "nova-2"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	maxAttempts  = 3
	retryBackoff = time.Second
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-2", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint overrides the API endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider implements stt.Provider backed by the Deepgram pre-recorded API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
	client   *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// TranscribeOnce implements stt.Provider. Transient failures (network errors
// and 5xx responses) are retried up to 3 attempts with linear backoff; 4xx
// responses fail immediately.
func (p *Provider) TranscribeOnce(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	reqURL, err := p.buildURL()
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt-1) * retryBackoff):
			}
		}

		text, retryable, err := p.transcribe(ctx, reqURL, pcm)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", lastErr
		}
	}
	return "", fmt.Errorf("deepgram: %d attempts failed: %w", maxAttempts, lastErr)
}

func (p *Provider) transcribe(ctx context.Context, reqURL string, pcm []byte) (text string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(pcm))
	if err != nil {
		return "", false, fmt.Errorf("deepgram: new request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/raw")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("deepgram: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("deepgram: read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, body)
	case resp.StatusCode >= 400:
		return "", false, fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, body)
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return "", false, fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", false, nil
	}
	return out.Results.Channels[0].Alternatives[0].Transcript, false, nil
}

func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(defaultSampleRate))
	q.Set("channels", "1")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// response mirrors the subset of the Deepgram pre-recorded reply we consume.
type response struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}
