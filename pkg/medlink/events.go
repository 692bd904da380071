package medlink

import "time"

// State represents the lifecycle state of the agent.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// StateChangeEvent describes a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// FileSyncedEvent reports one successfully forwarded file.
type FileSyncedEvent struct {
	File     string
	Messages int
}

// FileFailedEvent reports a file demoted to permanent failure.
type FileFailedEvent struct {
	File     string
	Attempts int
	Err      error
}

// ExportedEvent reports one written export batch.
type ExportedEvent struct {
	Kind  string
	Count int
}

// ActivityItem is one timestamped, human-readable event for display.
type ActivityItem struct {
	Time    time.Time
	Level   string
	Message string
	File    string
}

// EventHandler receives agent events. Calls are synchronous from the agent's
// goroutines; implementations must return quickly and must not call back into
// the Medlink instance.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnFileSynced(event FileSyncedEvent)
	OnFileFailed(event FileFailedEvent)
	OnExported(event ExportedEvent)
	OnCredentialsInvalid()
	OnActivity(item ActivityItem)
}

// BaseEventHandler provides no-op implementations of all EventHandler
// methods. Embed it to implement only the events you care about.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(event StateChangeEvent) {}
func (BaseEventHandler) OnFileSynced(event FileSyncedEvent)   {}
func (BaseEventHandler) OnFileFailed(event FileFailedEvent)   {}
func (BaseEventHandler) OnExported(event ExportedEvent)       {}
func (BaseEventHandler) OnCredentialsInvalid()                {}
func (BaseEventHandler) OnActivity(item ActivityItem)         {}
