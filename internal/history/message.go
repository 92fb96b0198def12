// Package history provides the append-only conversation log.
package history

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// CallRef records a dependency on an earlier call in the same plan: the
// call's task id comes from the result of the step at Step. Parked calls
// keep their refs so a confirmed replay can resolve them again.
type CallRef struct {
	Step     int    `json:"step"`
	Selector string `json:"selector,omitempty"`
}

// ToolCall records one tool invocation proposed during a turn.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Ref       *CallRef        `json:"ref,omitempty"`
}

// Tool result statuses. A pending_confirmation result parks a destructive
// call until the user confirms it on a later turn.
const (
	StatusSuccess             = "success"
	StatusFailure             = "failure"
	StatusPendingConfirmation = "pending_confirmation"
)

// ToolResult records the outcome of one tool call.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Status     string          `json:"status"`
	Kind       string          `json:"kind,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Message is one turn entry in a conversation. Messages are written once and
// never mutated; Position is assigned by the store on append.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	UserID         string       `json:"-"`
	Position       int64        `json:"position"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	ToolCalls      []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults    []ToolResult `json:"tool_results,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// ToSchemaMessage converts a history Message to an Eino schema.Message for
// model-backed intent resolution.
func (m *Message) ToSchemaMessage() *schema.Message {
	return &schema.Message{
		Role:    schema.RoleType(m.Role),
		Content: m.Content,
	}
}

// GenerateMessageID creates a unique message identifier.
func GenerateMessageID() string {
	u := uuid.New().String()
	return "msg_" + strings.ReplaceAll(u[:8], "-", "")
}

// GenerateConversationID creates a unique conversation identifier.
func GenerateConversationID() string {
	u := uuid.New().String()
	return "conv_" + strings.ReplaceAll(u[:8], "-", "")
}
