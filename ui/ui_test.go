package ui

import (
	"testing"

	"github.com/dgnsrekt/parley/internal/audio"
	"github.com/dgnsrekt/parley/internal/cache"
	"github.com/dgnsrekt/parley/internal/client"
	"github.com/dgnsrekt/parley/internal/pipeline"
	"github.com/dgnsrekt/parley/internal/transcript"
)

func newTestModel() *model {
	svc := client.New("http://localhost:0")
	c := cache.New(4)
	pipe := pipeline.New(svc, noopPlayer{}, c, transcript.NewStore(), pipeline.Config{})
	return newModel(Config{PlaybackRate: 1.5, GlamourEnabled: false}, svc, pipe, c)
}

func TestNoopPlayerEndsImmediately(t *testing.T) {
	clip := audio.NewClip([]byte{1, 2}, audio.ContentTypePCM)

	ended := false
	err := noopPlayer{}.Start(clip, audio.StartOptions{OnEnded: func() { ended = true }})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !ended {
		t.Error("OnEnded not called")
	}
	noopPlayer{}.Stop() // no-op
}

func TestVisibleMessagesWithoutFilter(t *testing.T) {
	m := newTestModel()
	store := m.pipeline.Store()
	store.Append(transcript.Message{Role: transcript.RoleUser, Content: "hello"})
	store.Append(transcript.Message{Role: transcript.RoleAssistant, Content: "hi there"})

	got := m.visibleMessages()
	if len(got) != 2 {
		t.Fatalf("visibleMessages() returned %d messages, want 2", len(got))
	}
}

func TestVisibleMessagesFuzzyFilter(t *testing.T) {
	m := newTestModel()
	store := m.pipeline.Store()
	store.Append(transcript.Message{Role: transcript.RoleUser, Content: "what is the weather"})
	store.Append(transcript.Message{Role: transcript.RoleAssistant, Content: "It is sunny today."})
	store.Append(transcript.Message{Role: transcript.RoleUser, Content: "thanks"})

	m.filtering = true
	m.filter.SetValue("weather")

	got := m.visibleMessages()
	if len(got) != 1 {
		t.Fatalf("visibleMessages() returned %d messages, want 1", len(got))
	}
	if got[0].Content != "what is the weather" {
		t.Errorf("matched %q", got[0].Content)
	}
}

func TestRenderMessageRoles(t *testing.T) {
	m := newTestModel()

	user := m.renderMessage(transcript.Message{Role: transcript.RoleUser, Content: "hi"})
	if user == "" {
		t.Error("user message rendered empty")
	}

	errRender := m.renderMessage(transcript.Message{Role: transcript.RoleError, Content: "boom"})
	if errRender == "" {
		t.Error("error message rendered empty")
	}

	// With glamour disabled the assistant content passes through verbatim.
	assistant := m.renderMessage(transcript.Message{Role: transcript.RoleAssistant, Content: "plain reply"})
	if assistant == "" {
		t.Error("assistant message rendered empty")
	}
}
