package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/parley/internal/pipeline"
)

// pipelineEventMsg wraps one pipeline event for the update loop.
type pipelineEventMsg struct {
	event pipeline.Event
}

// errMsg reports a failure from a command.
type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

// statusMessageTimeoutMsg clears a transient status message.
type statusMessageTimeoutMsg struct{}

// waitForEvent blocks on the pipeline's event channel and feeds the next
// event into the program. The update loop re-issues it after every event.
func waitForEvent(ch <-chan pipeline.Event) tea.Cmd {
	return func() tea.Msg {
		return pipelineEventMsg{event: <-ch}
	}
}
