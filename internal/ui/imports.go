package ui

import "github.com/bamsammich/aio/internal/event"

// Event is re-exported so presenters read naturally.
type Event = event.Event

// Re-export event types for convenience.
const (
	BatchSubmitted  = event.BatchSubmitted
	BatchDispatched = event.BatchDispatched
	OpFailed        = event.OpFailed
	OpSkipped       = event.OpSkipped
	BatchCompleted  = event.BatchCompleted
)
