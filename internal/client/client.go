// Package client talks to the parley server's chat and speech endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/parley/internal/audio"
)

const (
	// DefaultBaseURL is the server the client targets when none is
	// configured.
	DefaultBaseURL = "http://localhost:5001"

	defaultTimeout = 30 * time.Second

	// maxAudioSize caps a single synthesis response.
	maxAudioSize = 32 << 20
)

// RequestError wraps a failed call to a server endpoint. Callers distinguish
// chat failures from speech failures by Endpoint.
type RequestError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Endpoint, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Client is a thin HTTP client for the chat and speech endpoints. It is safe
// for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit caps synthesis requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// New creates a client for the server at baseURL. An empty baseURL falls
// back to DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(5), 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured server address.
func (c *Client) BaseURL() string { return c.baseURL }

type chatRequest struct {
	Message string `json:"message"`
}

// Chat sends a user message and returns the assistant's reply text.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	body, resp, err := c.post(ctx, "/chat", chatRequest{Message: message})
	if err != nil {
		return "", &RequestError{Endpoint: "/chat", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RequestError{
			Endpoint:   "/chat",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server said: %s", strings.TrimSpace(string(body))),
		}
	}
	return string(body), nil
}

type ttsRequest struct {
	Text string `json:"text"`
}

// ttsEnvelope is the JSON form of a synthesis response. Servers that cannot
// stream raw audio wrap it in base64 instead.
type ttsEnvelope struct {
	Audio       string `json:"audio"`
	ContentType string `json:"content_type"`
	Error       string `json:"error"`
}

// Synthesize asks the server to speak text and returns the audio clip. The
// response is either raw audio bytes or a JSON envelope carrying base64
// audio; the Content-Type header decides which.
func (c *Client) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RequestError{Endpoint: "/tts", Err: err}
		}
	}

	body, resp, err := c.post(ctx, "/tts", ttsRequest{Text: text})
	if err != nil {
		return nil, &RequestError{Endpoint: "/tts", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{
			Endpoint:   "/tts",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server said: %s", strings.TrimSpace(string(body))),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if mediaType == "application/json" {
		var env ttsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, &RequestError{Endpoint: "/tts", Err: fmt.Errorf("failed to decode envelope: %w", err)}
		}
		if env.Error != "" {
			return nil, &RequestError{Endpoint: "/tts", Err: errors.New(env.Error)}
		}
		raw, err := base64.StdEncoding.DecodeString(env.Audio)
		if err != nil {
			return nil, &RequestError{Endpoint: "/tts", Err: fmt.Errorf("failed to decode audio payload: %w", err)}
		}
		if len(raw) == 0 {
			return nil, &RequestError{Endpoint: "/tts", Err: errors.New("envelope carried no audio")}
		}
		log.Debug("synthesized speech", "bytes", len(raw), "content_type", env.ContentType, "envelope", true)
		return audio.NewClip(raw, env.ContentType), nil
	}

	if len(body) == 0 {
		return nil, &RequestError{Endpoint: "/tts", Err: errors.New("empty audio response")}
	}
	log.Debug("synthesized speech", "bytes", len(body), "content_type", mediaType)
	return audio.NewClip(body, mediaType), nil
}

// post sends a JSON payload and reads the full response body. The *Response
// is returned with its body already consumed and closed.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, *http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp, nil
}
