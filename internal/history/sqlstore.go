package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLStore is the SQLite-backed conversation log.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQLStore on an opened database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// LoadRecent returns the most recent limit messages, oldest first.
func (s *SQLStore) LoadRecent(ctx context.Context, userID, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}

	// Select the newest window, then flip it back to chronological order.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, position, role, content, tool_calls, tool_results, created_at
		 FROM (
			SELECT id, position, role, content, tool_calls, tool_results, created_at
			FROM messages
			WHERE user_id = ? AND conversation_id = ?
			ORDER BY position DESC LIMIT ?
		 ) ORDER BY position ASC`,
		userID, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: load recent: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			m                      Message
			toolCalls, toolResults sql.NullString
			created                string
		)
		if err := rows.Scan(&m.ID, &m.Position, &m.Role, &m.Content, &toolCalls, &toolResults, &created); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", ErrUnavailable, err)
		}
		m.UserID = userID
		m.ConversationID = conversationID
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("%w: decode tool calls: %v", ErrUnavailable, err)
			}
		}
		if toolResults.Valid && toolResults.String != "" {
			if err := json.Unmarshal([]byte(toolResults.String), &m.ToolResults); err != nil {
				return nil, fmt.Errorf("%w: decode tool results: %v", ErrUnavailable, err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			m.CreatedAt = ts
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load recent: %v", ErrUnavailable, err)
	}
	return msgs, nil
}

// Append persists msg with the next position in the conversation. Position
// assignment happens inside the insert itself, so two concurrent appends
// cannot observe the same tail.
func (s *SQLStore) Append(ctx context.Context, userID, conversationID string, msg *Message) error {
	if msg.ID == "" {
		msg.ID = GenerateMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.UserID = userID
	msg.ConversationID = conversationID

	var toolCalls, toolResults any
	if len(msg.ToolCalls) > 0 {
		b, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("%w: encode tool calls: %v", ErrUnavailable, err)
		}
		toolCalls = string(b)
	}
	if len(msg.ToolResults) > 0 {
		b, err := json.Marshal(msg.ToolResults)
		if err != nil {
			return fmt.Errorf("%w: encode tool results: %v", ErrUnavailable, err)
		}
		toolResults = string(b)
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (id, conversation_id, user_id, position, role, content, tool_calls, tool_results, created_at)
		 SELECT ?, ?, ?, COALESCE(MAX(position), 0) + 1, ?, ?, ?, ?, ?
		 FROM messages WHERE user_id = ? AND conversation_id = ?
		 RETURNING position`,
		msg.ID, conversationID, userID, string(msg.Role), msg.Content,
		toolCalls, toolResults, msg.CreatedAt.Format(time.RFC3339Nano),
		userID, conversationID)

	if err := row.Scan(&msg.Position); err != nil {
		return fmt.Errorf("%w: append message: %v", ErrUnavailable, err)
	}
	return nil
}

// PurgeIdleBefore deletes every conversation whose newest message is older
// than cutoff, returning the number of messages removed.
func (s *SQLStore) PurgeIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE (user_id, conversation_id) IN (
			SELECT user_id, conversation_id FROM messages
			GROUP BY user_id, conversation_id
			HAVING MAX(created_at) < ?
		 )`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("%w: purge conversations: %v", ErrUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

var _ Store = (*SQLStore)(nil)
