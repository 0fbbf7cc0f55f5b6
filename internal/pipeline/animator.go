package pipeline

import (
	"sync"
	"time"
)

// DefaultTypingInterval is the delay between revealed characters.
const DefaultTypingInterval = 30 * time.Millisecond

// Animator reveals reply text one character at a time. At most one reveal
// runs at a time: starting a new one cancels the current reveal and waits
// for its goroutine to exit, so sink callbacks never interleave.
type Animator struct {
	mu      sync.Mutex
	current *Reveal
}

// Reveal is a handle to one in-progress typing animation.
type Reveal struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Cancel stops the reveal early. The sink receives no further calls once
// Cancel returns. Cancelling a finished reveal is a no-op.
func (r *Reveal) Cancel() {
	r.once.Do(func() { close(r.stop) })
	<-r.done
}

// Done reports whether the reveal has finished or been cancelled.
func (r *Reveal) Done() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// NewAnimator creates an idle animator.
func NewAnimator() *Animator {
	return &Animator{}
}

// Reveal starts typing out text, invoking sink with each grown prefix. The
// final call passes the full text with done true; a cancelled reveal never
// makes that call. Prefixes grow by runes, not bytes.
func (a *Animator) Reveal(text string, interval time.Duration, sink func(partial string, done bool)) *Reveal {
	a.mu.Lock()
	if a.current != nil {
		a.current.Cancel()
	}
	r := &Reveal{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	a.current = r
	a.mu.Unlock()

	if interval <= 0 {
		interval = DefaultTypingInterval
	}

	go r.run(text, interval, sink)
	return r
}

// Cancel stops the active reveal, if any.
func (a *Animator) Cancel() {
	a.mu.Lock()
	r := a.current
	a.mu.Unlock()
	if r != nil {
		r.Cancel()
	}
}

func (r *Reveal) run(text string, interval time.Duration, sink func(string, bool)) {
	defer close(r.done)

	runes := []rune(text)
	if len(runes) == 0 {
		sink("", true)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 1; i <= len(runes); i++ {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			sink(string(runes[:i]), i == len(runes))
		}
	}
}
