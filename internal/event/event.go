package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	BatchSubmitted Type = iota + 1
	BatchDispatched
	OpFailed
	OpSkipped
	BatchCompleted
)

var typeNames = [...]string{
	BatchSubmitted:  "BatchSubmitted",
	BatchDispatched: "BatchDispatched",
	OpFailed:        "OpFailed",
	OpSkipped:       "OpSkipped",
	BatchCompleted:  "BatchCompleted",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is a single lifecycle notification from the dispatcher or looper.
type Event struct {
	Type      Type
	Timestamp time.Time
	Ticket    uint64
	Path      string // file involved in a failed op
	Size      int64  // ops in the batch, or bytes moved on completion
	Error     error
}

// Emit sends e on ch without blocking, stamping the time. A nil channel or a
// full buffer drops the event.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
