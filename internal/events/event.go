// Package events provides an in-memory event bus using Go channels. Every
// turn the orchestrator processes is traced onto the bus so the gateway's
// websocket feed and the event log can observe it without coupling.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

const (
	// Turn lifecycle
	EventTurnStarted   EventType = "turn.started"
	EventTurnCompleted EventType = "turn.completed"
	EventTurnDegraded  EventType = "turn.degraded"
	EventTurnAborted   EventType = "turn.aborted"

	// Persistence
	EventMessagePersisted EventType = "message.persisted"

	// Tool execution
	EventToolCall   EventType = "tool.call"
	EventToolResult EventType = "tool.result"

	// Retention
	EventRetentionPurged EventType = "retention.purged"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceOrchestrator EventSource = "orchestrator"
	SourceGateway      EventSource = "gateway"
	SourceJanitor      EventSource = "janitor"
)

// Event represents one observable occurrence in the system.
type Event struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Type           EventType      `json:"type"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         EventSource    `json:"source"`
	Payload        map[string]any `json:"payload"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, source EventSource, payload map[string]any) Event {
	return Event{
		ID:        "evt_" + uuid.New().String()[:8],
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Payload:   payload,
	}
}

// NewConversationEvent creates a new event tied to a conversation.
func NewConversationEvent(eventType EventType, source EventSource, payload map[string]any, conversationID string) Event {
	e := NewEvent(eventType, source, payload)
	e.ConversationID = conversationID
	return e
}
