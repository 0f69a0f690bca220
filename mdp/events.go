package mdp

import "time"

// EventKind classifies a broker lifecycle Event.
type EventKind string

// Broker event kinds delivered on Broker.EventChannel.
const (
	EventBrokerBound EventKind = "broker_bound"
)

// Event is a broker lifecycle notification, delivered asynchronously on
// Broker.EventChannel so a caller can log or expose broker state changes
// without blocking the request/reply loop.
type Event struct {
	Kind      EventKind
	Message   string
	Timestamp time.Time
}

// NewBrokerEvent creates an EventBrokerBound event carrying message.
func NewBrokerEvent(message string) Event {
	return Event{Kind: EventBrokerBound, Message: message, Timestamp: time.Now()}
}
