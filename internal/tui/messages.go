package tui

import "github.com/audiolibrelab/micmagic/internal/service"

// sessionEventMsg wraps an event published by the session.
type sessionEventMsg struct {
	Event service.Event
}

// opDoneMsg reports the outcome of a session operation.
type opDoneMsg struct {
	Op     string
	Err    error
	Notice string
}

// clearNoticeMsg clears the notice line after a timeout.
type clearNoticeMsg struct {
	seq int
}
