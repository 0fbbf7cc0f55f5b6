// Package pipeline drives a response turn from user input to spoken,
// progressively typed output.
//
// A turn runs: dispatch the chat request, fetch or reuse the spoken audio,
// then present the reply with concurrent playback and typing. At most one
// turn presents at a time; a new submission or a stop command interrupts
// whatever is in flight.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/parley/internal/audio"
	"github.com/dgnsrekt/parley/internal/cache"
	"github.com/dgnsrekt/parley/internal/text"
	"github.com/dgnsrekt/parley/internal/transcript"
)

// DefaultPlaybackRate is the speed multiplier applied to spoken replies.
const DefaultPlaybackRate = 1.5

const defaultRequestTimeout = 60 * time.Second

// Service produces replies and speech for user messages.
type Service interface {
	Chat(ctx context.Context, message string) (string, error)
	Synthesize(ctx context.Context, text string) (*audio.Clip, error)
}

// Player plays one clip at a time. Start implicitly stops the previous
// session, and a stopped session must not fire its OnEnded callback.
type Player interface {
	Start(clip *audio.Clip, opts audio.StartOptions) error
	Stop()
}

// Config tunes presentation behavior.
type Config struct {
	// PlaybackRate speeds up or slows down spoken replies. Zero means
	// DefaultPlaybackRate.
	PlaybackRate float64

	// TypingInterval is the delay between revealed characters. Zero means
	// DefaultTypingInterval.
	TypingInterval time.Duration

	// RequestTimeout bounds one turn's network work.
	RequestTimeout time.Duration
}

func (c *Config) fill() {
	if c.PlaybackRate <= 0 {
		c.PlaybackRate = DefaultPlaybackRate
	}
	if c.TypingInterval <= 0 {
		c.TypingInterval = DefaultTypingInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
}

// activePlayback tracks who owns the clip currently feeding the player.
// Cached clips are pinned in the cache; fresh clips belong to the turn and
// are released when playback ends or is cut short.
type activePlayback struct {
	gen    uint64
	key    string
	clip   *audio.Clip
	cached bool
}

// Pipeline coordinates chat, synthesis, playback and typing for a session.
type Pipeline struct {
	service  Service
	player   Player
	cache    *cache.AudioCache
	store    *transcript.Store
	animator *Animator
	sm       *stateMachine
	cfg      Config

	events chan Event
	gen    atomic.Uint64

	mu     sync.Mutex
	active *activePlayback
	closed bool
}

// New wires a pipeline over the given service and player. Cache may be nil
// to disable audio reuse.
func New(service Service, player Player, audioCache *cache.AudioCache, store *transcript.Store, cfg Config) *Pipeline {
	cfg.fill()
	p := &Pipeline{
		service:  service,
		player:   player,
		cache:    audioCache,
		store:    store,
		animator: NewAnimator(),
		cfg:      cfg,
		events:   make(chan Event, 128),
	}
	p.sm = newStateMachine(func(s State) {
		p.emit(StateEvent{State: s})
	})
	return p
}

// Events returns the channel turn progress is delivered on. The channel is
// never closed; consumers stop reading when they shut down.
func (p *Pipeline) Events() <-chan Event { return p.events }

// State returns the current turn state.
func (p *Pipeline) State() State { return p.sm.state() }

// Store returns the session transcript.
func (p *Pipeline) Store() *transcript.Store { return p.store }

// Submit accepts raw user input and starts a turn for it. Blank input
// returns ErrEmptyInput and changes nothing. Stop commands are handled
// inline without touching the network. Any other input supersedes whatever
// turn is in flight and dispatches a chat request; Submit returns before the
// reply arrives.
func (p *Pipeline) Submit(raw string) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if strings.TrimSpace(raw) == "" {
		return ErrEmptyInput
	}

	if isStopCommand(cache.Normalize(raw)) {
		p.gen.Add(1) // orphan any turn still in flight
		p.interrupt()
		p.store.Append(transcript.Message{Role: transcript.RoleUser, Content: raw})
		p.store.Append(transcript.Message{Role: transcript.RoleAssistant, Content: stopAckText})
		p.sm.transition(StateIdle)
		p.emit(TurnDoneEvent{})
		return nil
	}

	gen := p.gen.Add(1)
	p.interrupt()
	p.sm.transition(StateDispatching)
	p.store.Append(transcript.Message{Role: transcript.RoleUser, Content: raw})

	go p.runTurn(gen, raw)
	return nil
}

// Stop cuts short the current presentation without acknowledging anything in
// the transcript.
func (p *Pipeline) Stop() {
	p.gen.Add(1)
	p.interrupt()
	p.sm.transition(StateIdle)
	p.emit(TurnDoneEvent{})
}

// Close stops any activity and rejects further submissions.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.gen.Add(1) // orphan any in-flight turn
	p.interrupt()
	p.sm.transition(StateIdle)
}

// stale reports whether a newer submission has superseded gen.
func (p *Pipeline) stale(gen uint64) bool {
	return p.gen.Load() != gen
}

// runTurn carries one submission from chat dispatch through presentation.
// Results are discarded whenever a newer submission has taken over.
func (p *Pipeline) runTurn(gen uint64, raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RequestTimeout)
	defer cancel()

	reply, err := p.service.Chat(ctx, raw)
	if p.stale(gen) {
		return
	}
	if err != nil {
		log.Error("chat request failed", "error", err)
		p.store.Append(transcript.Message{Role: transcript.RoleError, Content: chatFailureText})
		p.sm.transition(StateIdle)
		p.emit(TurnDoneEvent{Err: err})
		return
	}

	p.sm.transition(StateAwaitingAudio)

	clip, key, cached := p.acquireAudio(ctx, gen, reply)
	if p.stale(gen) {
		p.discardClip(clip, key, cached)
		return
	}

	if !p.sm.transition(StatePresenting) {
		// A stop landed between the staleness check and here.
		p.discardClip(clip, key, cached)
		p.emit(TurnDoneEvent{})
		return
	}

	if clip != nil {
		p.startPlayback(gen, clip, key, cached)
	}
	p.startTyping(gen, reply)
	p.emit(TurnDoneEvent{})
}

// acquireAudio returns the clip to speak for reply, preferring the cache.
// Synthesis failure degrades the turn to text only. The returned key and
// cached flag say how the clip must be released later.
func (p *Pipeline) acquireAudio(ctx context.Context, gen uint64, reply string) (*audio.Clip, string, bool) {
	speakable := text.Speakable(reply)
	if speakable == "" {
		return nil, "", false
	}

	if clip, ok := p.cache.Get(reply); ok {
		p.cache.Pin(reply)
		log.Debug("audio cache hit", "bytes", clip.Size())
		return clip, reply, true
	}

	clip, err := p.service.Synthesize(ctx, speakable)
	if err != nil {
		log.Warn("speech synthesis failed, presenting text only", "error", err)
		return nil, "", false
	}
	if p.stale(gen) {
		clip.Release()
		return nil, "", false
	}

	if p.cache != nil {
		p.cache.Put(reply, clip)
		p.cache.Pin(reply)
		return clip, reply, true
	}
	return clip, "", false
}

// discardClip returns an acquired clip that never reached the player.
func (p *Pipeline) discardClip(clip *audio.Clip, key string, cached bool) {
	if clip == nil {
		return
	}
	if cached {
		p.cache.Unpin(key)
		return
	}
	clip.Release()
}

// startPlayback hands a clip to the player and records ownership so stop,
// supersede, and natural end all release it exactly once.
func (p *Pipeline) startPlayback(gen uint64, clip *audio.Clip, key string, cached bool) {
	a := &activePlayback{gen: gen, key: key, clip: clip, cached: cached}

	p.mu.Lock()
	p.active = a
	p.mu.Unlock()

	err := p.player.Start(clip, audio.StartOptions{
		Rate: p.cfg.PlaybackRate,
		OnEnded: func() {
			p.releaseActive(gen)
		},
		OnError: func(err error) {
			log.Warn("playback failed", "error", err)
			p.releaseActive(gen)
		},
	})
	if err != nil {
		log.Warn("could not start playback, presenting text only", "error", err)
		p.releaseActive(gen)
	}
}

// releaseActive returns the active clip's resources if gen still owns them.
func (p *Pipeline) releaseActive(gen uint64) {
	p.mu.Lock()
	a := p.active
	if a == nil || a.gen != gen {
		p.mu.Unlock()
		return
	}
	p.active = nil
	p.mu.Unlock()

	p.release(a)
}

func (p *Pipeline) release(a *activePlayback) {
	if a.cached {
		p.cache.Unpin(a.key)
		return
	}
	a.clip.Release()
}

// startTyping reveals the reply and commits it to the transcript when the
// reveal completes. An interrupted reveal commits nothing; its partial text
// simply stops growing and the next turn replaces it.
func (p *Pipeline) startTyping(gen uint64, reply string) {
	p.animator.Reveal(reply, p.cfg.TypingInterval, func(partial string, done bool) {
		if p.stale(gen) {
			return
		}
		if done {
			// Commit before announcing so consumers that redraw on the
			// final event already see the finalized message.
			p.store.Append(transcript.Message{Role: transcript.RoleAssistant, Content: reply})
			p.sm.transition(StateIdle)
		}
		p.emit(TypingEvent{Partial: partial, Done: done})
	})
}

// interrupt stops playback and typing and releases clip ownership. It moves
// the machine to Interrupted when a turn was actually in flight.
func (p *Pipeline) interrupt() {
	p.sm.transition(StateInterrupted)
	p.player.Stop()
	p.animator.Cancel()

	p.mu.Lock()
	a := p.active
	p.active = nil
	p.mu.Unlock()

	if a != nil {
		p.release(a)
	}
}
