package domain

// EventType names a change notification.
type EventType string

const (
	EventUserUpdated EventType = "UserUpdated"
)

// Event is the message body published to the user events queue.
type Event struct {
	EventType EventType `json:"eventType"`
	Data      any       `json:"data"`
}
