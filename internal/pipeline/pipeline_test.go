package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/parley/internal/audio"
	"github.com/dgnsrekt/parley/internal/cache"
	"github.com/dgnsrekt/parley/internal/transcript"
)

// fakeService scripts chat and synthesis responses.
type fakeService struct {
	mu        sync.Mutex
	chatFn    func(message string) (string, error)
	synthFn   func(text string) (*audio.Clip, error)
	chatCalls []string
	synths    []string
}

func (s *fakeService) Chat(_ context.Context, message string) (string, error) {
	s.mu.Lock()
	s.chatCalls = append(s.chatCalls, message)
	fn := s.chatFn
	s.mu.Unlock()
	if fn != nil {
		return fn(message)
	}
	return "reply to: " + message, nil
}

func (s *fakeService) Synthesize(_ context.Context, text string) (*audio.Clip, error) {
	s.mu.Lock()
	s.synths = append(s.synths, text)
	fn := s.synthFn
	s.mu.Unlock()
	if fn != nil {
		return fn(text)
	}
	return audio.NewClip([]byte("pcm:"+text), audio.ContentTypePCM), nil
}

func (s *fakeService) chatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chatCalls)
}

func (s *fakeService) synthCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.synths)
}

// fakePlayer records starts and stops without touching any audio device.
type fakePlayer struct {
	mu      sync.Mutex
	started []*audio.Clip
	stops   int
	ended   func() // OnEnded of the most recent Start
}

func (p *fakePlayer) Start(clip *audio.Clip, opts audio.StartOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, clip)
	p.ended = opts.OnEnded
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayer) startCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.started)
}

func (p *fakePlayer) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

func (p *fakePlayer) finish() {
	p.mu.Lock()
	fn := p.ended
	p.ended = nil
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func newTestPipeline(svc *fakeService, player *fakePlayer, c *cache.AudioCache) *Pipeline {
	return New(svc, player, c, transcript.NewStore(), Config{
		TypingInterval: time.Millisecond,
		RequestTimeout: 5 * time.Second,
	})
}

// waitEvent reads events until match returns true or the deadline passes.
func waitEvent(t *testing.T, p *Pipeline, match func(Event) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-p.Events():
			if match(ev) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func waitTypingDone(t *testing.T, p *Pipeline) {
	t.Helper()
	waitEvent(t, p, func(ev Event) bool {
		te, ok := ev.(TypingEvent)
		return ok && te.Done
	})
}

func TestSubmitPresentsReply(t *testing.T) {
	svc := &fakeService{}
	player := &fakePlayer{}
	p := newTestPipeline(svc, player, cache.New(4))

	if err := p.Submit("hello"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	waitTypingDone(t, p)

	if got := player.startCount(); got != 1 {
		t.Errorf("player starts = %d, want 1", got)
	}

	msgs := p.Store().Messages()
	if len(msgs) != 2 {
		t.Fatalf("transcript has %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != transcript.RoleUser || msgs[0].Content != "hello" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != transcript.RoleAssistant || msgs[1].Content != "reply to: hello" {
		t.Errorf("second message = %+v", msgs[1])
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("state after reveal = %v, want idle", got)
	}
}

func TestSubmitEmptyInput(t *testing.T) {
	svc := &fakeService{}
	p := newTestPipeline(svc, &fakePlayer{}, nil)

	for _, in := range []string{"", "   ", "\n\t"} {
		if err := p.Submit(in); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Submit(%q) = %v, want ErrEmptyInput", in, err)
		}
	}
	if svc.chatCount() != 0 {
		t.Error("blank input reached the chat service")
	}
	if p.Store().Len() != 0 {
		t.Error("blank input touched the transcript")
	}
}

func TestStopCommandSkipsNetwork(t *testing.T) {
	svc := &fakeService{}
	player := &fakePlayer{}
	p := newTestPipeline(svc, player, nil)

	for _, in := range []string{"stop", "  STOP  ", "Stop Conversation"} {
		if err := p.Submit(in); err != nil {
			t.Fatalf("Submit(%q) error: %v", in, err)
		}
	}

	if svc.chatCount() != 0 {
		t.Errorf("stop commands reached the chat service %d times", svc.chatCount())
	}
	if svc.synthCount() != 0 {
		t.Error("stop commands reached synthesis")
	}

	msgs := p.Store().Messages()
	if len(msgs) != 6 {
		t.Fatalf("transcript has %d messages, want 6", len(msgs))
	}
	if msgs[1].Content != "Speech stopped." || msgs[1].Role != transcript.RoleAssistant {
		t.Errorf("acknowledgement = %+v", msgs[1])
	}
	// The literal input survives, not its normalized form.
	if msgs[2].Content != "  STOP  " {
		t.Errorf("user message = %q, want the raw input", msgs[2].Content)
	}
}

func TestStopCommandHaltsPlayback(t *testing.T) {
	svc := &fakeService{}
	player := &fakePlayer{}
	p := newTestPipeline(svc, player, nil)

	if err := p.Submit("tell me something long"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	waitEvent(t, p, func(ev Event) bool {
		se, ok := ev.(StateEvent)
		return ok && se.State == StatePresenting
	})

	if err := p.Submit("stop"); err != nil {
		t.Fatalf("Submit(stop) error: %v", err)
	}

	if player.stopCount() == 0 {
		t.Error("stop command did not stop the player")
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("state after stop = %v, want idle", got)
	}
	if last, ok := p.Store().Last(); !ok || last.Content != "Speech stopped." {
		t.Errorf("last message = %+v, want stop acknowledgement", last)
	}
}

func TestChatFailureAppendsErrorMessage(t *testing.T) {
	boom := errors.New("backend down")
	svc := &fakeService{chatFn: func(string) (string, error) { return "", boom }}
	p := newTestPipeline(svc, &fakePlayer{}, nil)

	if err := p.Submit("hello"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	waitEvent(t, p, func(ev Event) bool {
		td, ok := ev.(TurnDoneEvent)
		return ok && errors.Is(td.Err, boom)
	})

	msgs := p.Store().Messages()
	if len(msgs) != 2 {
		t.Fatalf("transcript has %d messages, want 2", len(msgs))
	}
	if msgs[1].Role != transcript.RoleError {
		t.Errorf("role = %v, want error", msgs[1].Role)
	}
	if msgs[1].Content != "Sorry, there was an error processing your request." {
		t.Errorf("content = %q", msgs[1].Content)
	}
	if svc.synthCount() != 0 {
		t.Error("failed chat still requested synthesis")
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestSynthesisFailureDegradesToText(t *testing.T) {
	svc := &fakeService{
		synthFn: func(string) (*audio.Clip, error) { return nil, errors.New("no voice") },
	}
	player := &fakePlayer{}
	p := newTestPipeline(svc, player, nil)

	if err := p.Submit("hello"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	waitTypingDone(t, p)

	if player.startCount() != 0 {
		t.Error("player started despite synthesis failure")
	}
	msgs := p.Store().Messages()
	if len(msgs) != 2 {
		t.Fatalf("transcript has %d messages, want 2", len(msgs))
	}
	if msgs[1].Role != transcript.RoleAssistant || msgs[1].Content != "reply to: hello" {
		t.Errorf("reply message = %+v", msgs[1])
	}
}

func TestCacheHitSkipsSynthesis(t *testing.T) {
	svc := &fakeService{chatFn: func(string) (string, error) { return "same reply", nil }}
	player := &fakePlayer{}
	p := newTestPipeline(svc, player, cache.New(4))

	if err := p.Submit("first"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	waitTypingDone(t, p)
	player.finish()

	if err := p.Submit("second"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	waitTypingDone(t, p)
	player.finish()

	if got := svc.synthCount(); got != 1 {
		t.Errorf("synthesis calls = %d, want 1 (second turn should hit cache)", got)
	}
	if got := player.startCount(); got != 2 {
		t.Errorf("player starts = %d, want 2", got)
	}
}

func TestNewSubmissionSupersedesPrior(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	svc := &fakeService{chatFn: func(msg string) (string, error) {
		if msg == "slow" {
			<-release
			return "slow reply", nil
		}
		return "fast reply", nil
	}}
	player := &fakePlayer{}
	p := newTestPipeline(svc, player, nil)

	if err := p.Submit("slow"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if err := p.Submit("fast"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	once.Do(func() { close(release) })

	waitTypingDone(t, p)
	time.Sleep(50 * time.Millisecond) // let the orphaned turn drain

	msgs := p.Store().Messages()
	for _, m := range msgs {
		if m.Content == "slow reply" {
			t.Fatal("superseded turn still reached the transcript")
		}
	}
	var replies int
	for _, m := range msgs {
		if m.Role == transcript.RoleAssistant {
			replies++
		}
	}
	if replies != 1 {
		t.Errorf("assistant replies = %d, want 1", replies)
	}
}

func TestStopWithNothingPlaying(t *testing.T) {
	p := newTestPipeline(&fakeService{}, &fakePlayer{}, nil)

	// Idempotent and state-neutral.
	p.Stop()
	p.Stop()
	if got := p.State(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	p := newTestPipeline(&fakeService{}, &fakePlayer{}, nil)
	p.Close()
	if err := p.Submit("hello"); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after Close = %v, want ErrClosed", err)
	}
}

func TestPlaybackEndReleasesCachePin(t *testing.T) {
	c := cache.New(1)
	svc := &fakeService{chatFn: func(string) (string, error) { return "pinned reply", nil }}
	player := &fakePlayer{}
	p := newTestPipeline(svc, player, c)

	if err := p.Submit("hi"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	waitTypingDone(t, p)

	clip, ok := c.Get("pinned reply")
	if !ok {
		t.Fatal("reply audio not cached")
	}

	player.finish()

	// Force an eviction; with the pin gone the clip must be released.
	c.Put("other", audio.NewClip([]byte{1}, audio.ContentTypePCM))
	if !clip.Released() {
		t.Error("clip still held after playback end and eviction")
	}
}
