package migration

import (
	"context"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
)

// Notification actions.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// Event describes one vertex change to announce after the unit committed.
type Event struct {
	Action        string           `json:"action"`
	NodeType      string           `json:"node-type"`
	ID            string           `json:"id"`
	Properties    graph.Properties `json:"properties"`
	Source        string           `json:"source"`
	TransactionID string           `json:"transaction-id"`
}

// Publisher delivers events once every migration transaction is closed.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}

// NotificationHelper queues events while a unit runs. The queue is only
// handed to a Publisher if the unit commits.
type NotificationHelper struct {
	source string
	runID  string
	events []Event
}

func NewNotificationHelper(source, runID string) *NotificationHelper {
	return &NotificationHelper{source: source, runID: runID}
}

// AddEvent queues an event with the vertex's current properties.
func (n *NotificationHelper) AddEvent(action string, v *graph.Vertex) {
	n.events = append(n.events, Event{
		Action:        action,
		NodeType:      v.NodeType,
		ID:            v.ID,
		Properties:    v.Properties.Clone(),
		Source:        n.source,
		TransactionID: n.runID,
	})
}

func (n *NotificationHelper) Events() []Event {
	return n.events
}

func (n *NotificationHelper) Len() int {
	return len(n.events)
}
