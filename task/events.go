package task

import "splitmix/media"

type EventType string

const (
	EventStage     EventType = "stage"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is one entry on a task's event channel. Exactly one Completed or
// Failed event ends every stream, after which the channel is closed.
type Event struct {
	TaskID string      `json:"taskId"`
	Type   EventType   `json:"type"`
	Stage  media.Stage `json:"stage,omitempty"`
	// Progress is the stage-local event that moved Overall; nil on stage
	// boundaries.
	Progress  media.ProgressEvent `json:"progress,omitempty"`
	Overall   float64             `json:"overall"`
	Message   string              `json:"message,omitempty"`
	Artifacts *Artifacts          `json:"artifacts,omitempty"`
	Err       error               `json:"-"`
}

func (e Event) Terminal() bool { return e.Type == EventCompleted || e.Type == EventFailed }
