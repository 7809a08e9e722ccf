package downloader

import "fmt"

// EventKind identifies an Event.
type EventKind int

const (
	// EventStarted is emitted when a worker picks up a task that needs work.
	EventStarted EventKind = iota
	// EventProgress reports Downloaded of Total bytes (Total is -1 if unknown).
	EventProgress
	// EventSkipped is emitted for tasks that need no transfer; Reason says why.
	EventSkipped
	// EventRetrying is emitted before waiting for another attempt.
	EventRetrying
	// EventRestarted is emitted when partial bytes are discarded; Reason says why.
	EventRestarted
	// EventCompleted is emitted once the final file is in place.
	EventCompleted
	// EventFailed is emitted when a task gives up.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventSkipped:
		return "skipped"
	case EventRetrying:
		return "retrying"
	case EventRestarted:
		return "restarted"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a notification about one task.
type Event struct {
	Kind EventKind
	Name string

	Downloaded int64
	Total      int64

	// Attempt is the 1-based attempt that failed, for EventRetrying.
	Attempt int

	Reason string
	Err    error
}

// EventHandler receives events. HandleEvent is called from worker
// goroutines and must be safe for concurrent use.
type EventHandler interface {
	HandleEvent(Event)
}

// EventFunc adapts a function to EventHandler.
type EventFunc func(Event)

// HandleEvent calls f(ev).
func (f EventFunc) HandleEvent(ev Event) { f(ev) }

type discardEvents struct{}

func (discardEvents) HandleEvent(Event) {}
