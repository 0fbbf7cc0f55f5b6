package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("path = %q, want /chat", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		var req struct {
			Message string `json:"message"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("request body is not JSON: %v", err)
		}
		if req.Message != "What's new?" {
			t.Errorf("message = %q, want %q", req.Message, "What's new?")
		}
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "Not much, you?")
	}))
	defer srv.Close()

	c := New(srv.URL)
	reply, err := c.Chat(context.Background(), "What's new?")
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if reply != "Not much, you?" {
		t.Errorf("reply = %q, want %q", reply, "Not much, you?")
	}
}

func TestChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Chat(context.Background(), "hi")
	if err == nil {
		t.Fatal("Chat() returned nil error for 502")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error is %T, want *RequestError", err)
	}
	if reqErr.Endpoint != "/chat" {
		t.Errorf("Endpoint = %q, want /chat", reqErr.Endpoint)
	}
	if reqErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want %d", reqErr.StatusCode, http.StatusBadGateway)
	}
}

func TestSynthesizeRawAudio(t *testing.T) {
	payload := []byte{0x49, 0x44, 0x33, 0x04, 0x00}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts" {
			t.Errorf("path = %q, want /tts", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(payload)
	}))
	defer srv.Close()

	c := New(srv.URL, WithRateLimit(0))
	clip, err := c.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if clip.ContentType != "audio/mpeg" {
		t.Errorf("ContentType = %q, want audio/mpeg", clip.ContentType)
	}
	if string(clip.Data()) != string(payload) {
		t.Error("clip data does not match response body")
	}
}

func TestSynthesizeJSONEnvelope(t *testing.T) {
	payload := []byte("fake-pcm-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(map[string]string{
			"audio":        base64.StdEncoding.EncodeToString(payload),
			"content_type": "audio/l16",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, WithRateLimit(0))
	clip, err := c.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if clip.ContentType != "audio/l16" {
		t.Errorf("ContentType = %q, want audio/l16", clip.ContentType)
	}
	if string(clip.Data()) != string(payload) {
		t.Error("decoded clip data does not match payload")
	}
}

func TestSynthesizeEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"error": "voice not found"})
	}))
	defer srv.Close()

	c := New(srv.URL, WithRateLimit(0))
	_, err := c.Synthesize(context.Background(), "hello")
	if err == nil {
		t.Fatal("Synthesize() returned nil error for error envelope")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error is %T, want *RequestError", err)
	}
	if reqErr.Endpoint != "/tts" {
		t.Errorf("Endpoint = %q, want /tts", reqErr.Endpoint)
	}
}

func TestSynthesizeEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
	}))
	defer srv.Close()

	c := New(srv.URL, WithRateLimit(0))
	if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("Synthesize() returned nil error for empty body")
	}
}

func TestSynthesizeContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL, WithRateLimit(0))
	if _, err := c.Synthesize(ctx, "hello"); err == nil {
		t.Fatal("Synthesize() returned nil error for cancelled context")
	}
}

func TestNewDefaultsBaseURL(t *testing.T) {
	c := New("")
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), DefaultBaseURL)
	}
	c = New("http://example.test/")
	if c.BaseURL() != "http://example.test" {
		t.Errorf("BaseURL() = %q, trailing slash not trimmed", c.BaseURL())
	}
}
