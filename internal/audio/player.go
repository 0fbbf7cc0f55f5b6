package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// StartOptions configures one playback session.
type StartOptions struct {
	// Rate is the playback-rate multiplier applied for the whole session.
	// Values at or below zero mean 1.0.
	Rate float64

	// OnEnded is invoked once if playback reaches the natural end of the
	// clip. It is not invoked when the session is stopped or superseded.
	OnEnded func()

	// OnError is invoked once if playback fails after starting.
	OnError func(error)
}

// ErrPlayerClosed is returned by Start after Close.
var ErrPlayerClosed = errors.New("audio player is closed")

// Player plays clips through the system audio device. It owns at most one
// active session: starting a new clip implicitly stops the current one, and
// Stop with nothing playing is a no-op.
type Player struct {
	ctx *oto.Context

	mu      sync.Mutex
	session *session
	closed  bool
}

// session is one playback lifetime, from Start to stop/end/error.
type session struct {
	player *oto.Player
	data   []byte // kept alive for the duration of playback
	stop   chan struct{}
	once   sync.Once
}

func (s *session) halt() {
	s.once.Do(func() { close(s.stop) })
}

// NewPlayer opens the audio device. The returned player is ready for Start.
func NewPlayer() (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	<-ready

	return &Player{ctx: ctx}, nil
}

// Start begins playback of a clip, stopping any active session first. The
// clip payload is decoded (and the rate applied) before any audio is heard;
// decode failures are returned synchronously and leave nothing playing.
//
// Start never releases the clip: resource ownership stays with the caller,
// which knows whether the clip belongs to the cache or to this turn.
func (p *Player) Start(clip *Clip, opts StartOptions) error {
	data := clip.Data()
	if len(data) == 0 {
		return errors.New("clip has no audio data")
	}

	rate := opts.Rate
	if rate <= 0 {
		rate = 1.0
	}

	// Normalize the payload to playable PCM outside the lock; transcoding
	// shells out to ffmpeg and can take a moment.
	var pcm []byte
	if clip.IsPCM() {
		pcm = Resample(data, rate)
	} else {
		var err error
		pcm, err = Transcode(context.Background(), data, rate)
		if err != nil {
			return fmt.Errorf("failed to decode clip: %w", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	p.stopLocked()

	s := &session{
		player: p.ctx.NewPlayer(bytes.NewReader(pcm)),
		data:   pcm,
		stop:   make(chan struct{}),
	}
	p.session = s
	s.player.Play()

	log.Debug("playback started", "bytes", len(pcm), "rate", rate, "duration", PCMDuration(len(pcm)))

	go p.watch(s, opts)
	return nil
}

// watch polls the oto player until the clip drains, the session is stopped,
// or the device reports an error.
func (p *Player) watch(s *session, opts StartOptions) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.player.Err(); err != nil {
				p.finish(s)
				if opts.OnError != nil {
					opts.OnError(err)
				}
				return
			}
			if !s.player.IsPlaying() {
				p.finish(s)
				if opts.OnEnded != nil {
					opts.OnEnded()
				}
				return
			}
		}
	}
}

// finish tears down a naturally ended (or erroring) session if it is still
// the active one.
func (p *Player) finish(s *session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != s {
		return
	}
	s.halt()
	_ = s.player.Close()
	s.data = nil
	p.session = nil
}

// Stop halts the active session, if any. Calling Stop with nothing playing
// is a no-op.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.session == nil {
		return
	}
	s := p.session
	p.session = nil
	s.halt()
	s.player.Pause()
	_ = s.player.Close()
	s.data = nil
}

// IsPlaying reports whether a session is currently active.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil
}

// Close stops playback and marks the player unusable. The oto context has no
// close of its own; it is dropped for collection.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.closed = true
	p.ctx = nil
	return nil
}
