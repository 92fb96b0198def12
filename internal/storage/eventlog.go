package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"tally/internal/events"
)

// EventLogger persists bus events to JSONL files, one per conversation.
// Events without a conversation land in _global.jsonl.
type EventLogger struct {
	dir         string
	unsubscribe func()
}

// NewEventLogger subscribes to all bus events and appends them under dir.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{dir: dir}
	el.unsubscribe = bus.Subscribe(func(e events.Event) {
		if err := el.append(e); err != nil {
			slog.Warn("event log write failed", "dir", el.dir, "error", err)
		}
	})
	return el
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

func (el *EventLogger) append(e events.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}

	name := "_global.jsonl"
	if e.ConversationID != "" {
		name = e.ConversationID + ".jsonl"
	}

	if err := os.MkdirAll(el.dir, 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(el.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}
