package history

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned for any storage failure. The orchestrator treats
// it as fatal for the current request.
var ErrUnavailable = errors.New("history store unavailable")

// Store defines the append-only persistence interface for conversations.
type Store interface {
	// LoadRecent returns up to limit messages for the (user, conversation)
	// pair, oldest first. When more than limit exist, the most recent window
	// is returned.
	LoadRecent(ctx context.Context, userID, conversationID string, limit int) ([]*Message, error)

	// Append persists a message, assigning its Position atomically: two
	// concurrent appends to the same conversation never share a position.
	Append(ctx context.Context, userID, conversationID string, msg *Message) error

	// PurgeIdleBefore deletes conversations whose latest message predates
	// cutoff, returning the number of messages removed.
	PurgeIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
