package pipeline

import "sync"

// State represents where a response turn currently is in its lifecycle.
type State int

const (
	// StateIdle indicates no turn is in flight.
	StateIdle State = iota
	// StateDispatching indicates the chat request is on the wire.
	StateDispatching
	// StateAwaitingAudio indicates the reply arrived and speech is being
	// fetched or pulled from cache.
	StateAwaitingAudio
	// StatePresenting indicates audio and typing are running.
	StatePresenting
	// StateInterrupted indicates a stop command cut the turn short.
	StateInterrupted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingAudio:
		return "awaiting audio"
	case StatePresenting:
		return "presenting"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// stateMachine guards turn lifecycle transitions. Invalid transitions are
// refused rather than panicking so racing goroutines degrade to no-ops.
type stateMachine struct {
	mu          sync.Mutex
	current     State
	transitions map[State][]State
	onChange    func(State)
}

func newStateMachine(onChange func(State)) *stateMachine {
	return &stateMachine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:          {StateDispatching},
			StateDispatching:   {StateAwaitingAudio, StateInterrupted, StateIdle},
			StateAwaitingAudio: {StatePresenting, StateInterrupted, StateIdle},
			StatePresenting:    {StateIdle, StateInterrupted},
			StateInterrupted:   {StateIdle, StateDispatching},
		},
		onChange: onChange,
	}
}

// transition moves to the given state if the move is legal, reporting
// whether it happened.
func (sm *stateMachine) transition(to State) bool {
	sm.mu.Lock()
	if !sm.canTransitionLocked(to) {
		sm.mu.Unlock()
		return false
	}
	sm.current = to
	cb := sm.onChange
	sm.mu.Unlock()

	if cb != nil {
		cb(to)
	}
	return true
}

func (sm *stateMachine) canTransitionLocked(to State) bool {
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			return true
		}
	}
	return false
}

// state returns the current state.
func (sm *stateMachine) state() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}
