package models

import "encoding/json"

// Event types broadcast to realtime listeners.
const (
	EventMilestoneCreated = "milestone.created"
	EventMilestoneUpdated = "milestone.updated"
	EventMilestoneDeleted = "milestone.deleted"
	EventTaskCreated      = "task.created"
	EventTaskUpdated      = "task.updated"
	EventTaskDeleted      = "task.deleted"
	EventProjectCreated   = "project.created"
	EventProjectUpdated   = "project.updated"
	EventProjectDeleted   = "project.deleted"
	EventReminderCreated  = "reminder.created"
)

// Event is an ephemeral notification. Payload fields are flattened next to Type
// when the event is encoded.
type Event struct {
	Type    string
	Payload map[string]interface{}
}

func NewEvent(eventType string, key string, value interface{}) Event {
	return Event{Type: eventType, Payload: map[string]interface{}{key: value}}
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["type"] = e.Type
	return json.Marshal(out)
}
