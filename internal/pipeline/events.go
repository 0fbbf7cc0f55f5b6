package pipeline

import "github.com/charmbracelet/log"

// Event is delivered on the pipeline's event channel as a turn progresses.
type Event interface{ isEvent() }

// StateEvent announces a lifecycle state change.
type StateEvent struct {
	State State
}

// TypingEvent carries the current typed prefix of the reply being revealed.
// Done is true on the final event for a reveal.
type TypingEvent struct {
	Partial string
	Done    bool
}

// TurnDoneEvent signals that the pipeline is ready for the next submission.
// Err is nil when the turn reached presentation; otherwise it carries the
// failure. Audio may still be playing when this fires.
type TurnDoneEvent struct {
	Err error
}

func (StateEvent) isEvent()    {}
func (TypingEvent) isEvent()   {}
func (TurnDoneEvent) isEvent() {}

// emit delivers an event without blocking the turn goroutine. A full channel
// means the consumer stopped draining; dropping is preferable to wedging
// playback.
func (p *Pipeline) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		log.Debug("event channel full, dropping event", "event", ev)
	}
}
