package jobs

import "time"

type EventType string

const (
	EventSubmitting    EventType = "submitting"
	EventSubmitted     EventType = "submitted"
	EventProgress      EventType = "progress"
	EventCompleted     EventType = "completed"
	EventFailed        EventType = "failed"
	EventCancelled     EventType = "cancelled"
	EventCancelWarning EventType = "cancel_warning"
)

// Event describes one step in the life of a job.
type Event struct {
	Type         EventType `json:"type"`
	ControllerID string    `json:"controller_id"`
	GroupID      string    `json:"group_id,omitempty"`
	State        State     `json:"state"`
	Files        int       `json:"files,omitempty"`
	Seq          uint64    `json:"seq,omitempty"`
	Completed    int       `json:"completed"`
	Total        int       `json:"total"`
	Percent      float64   `json:"percent"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// Observer receives job events. Notify is called synchronously from the
// controller, so implementations should not block for long.
type Observer interface {
	Notify(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }
