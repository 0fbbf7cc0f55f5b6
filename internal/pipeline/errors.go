package pipeline

import "errors"

// Sentinel errors for turn submission.
var (
	// ErrEmptyInput is returned when a submission is blank after
	// trimming. Callers ignore it silently.
	ErrEmptyInput = errors.New("input is empty")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("pipeline is closed")
)

// Canned transcript lines.
const (
	// stopAckText confirms a stop command in the transcript.
	stopAckText = "Speech stopped."

	// chatFailureText stands in for a reply when the chat request fails.
	chatFailureText = "Sorry, there was an error processing your request."
)

// stopKeywords end the current presentation without touching the network.
// Matching is on the trimmed, lowercased input.
var stopKeywords = map[string]struct{}{
	"stop":              {},
	"stop conversation": {},
}

// isStopCommand reports whether normalized input is a stop command.
func isStopCommand(normalized string) bool {
	_, ok := stopKeywords[normalized]
	return ok
}
