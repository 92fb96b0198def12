package intent

import (
	"encoding/json"
	"strings"

	"tally/internal/history"
)

// KnownTask is a task the conversation has already surfaced, reconstructed
// from persisted tool traces. The resolver only ever matches references
// against these; it never reads storage itself.
type KnownTask struct {
	ID        string
	Title     string
	Completed bool
}

// taskPayload matches the task object embedded in tool success payloads.
type taskPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Knowledge holds what the recent history reveals about the user's tasks.
type Knowledge struct {
	// Tasks are all tasks mentioned in the window, oldest mention first,
	// deduplicated by id (latest mention wins).
	Tasks []KnownTask
	// LastListing is the most recent list_tasks result, in listed order.
	LastListing []KnownTask
	// LastTouched is the single task most recently created or mutated.
	LastTouched *KnownTask
}

// BuildKnowledge scans recent assistant messages' tool traces for task data.
func BuildKnowledge(recent []*history.Message) Knowledge {
	var k Knowledge
	index := map[string]int{}

	record := func(t KnownTask) {
		if t.ID == "" {
			return
		}
		if i, ok := index[t.ID]; ok {
			k.Tasks[i] = t
			return
		}
		index[t.ID] = len(k.Tasks)
		k.Tasks = append(k.Tasks, t)
	}

	for _, msg := range recent {
		if msg.Role != history.RoleAssistant {
			continue
		}
		names := map[string]string{}
		for _, call := range msg.ToolCalls {
			names[call.ID] = call.Name
		}

		for _, res := range msg.ToolResults {
			if res.Status != history.StatusSuccess || len(res.Payload) == 0 {
				continue
			}
			switch names[res.ToolCallID] {
			case "list_tasks":
				var body struct {
					Tasks []taskPayload `json:"tasks"`
				}
				if json.Unmarshal(res.Payload, &body) != nil {
					continue
				}
				listing := make([]KnownTask, 0, len(body.Tasks))
				for _, t := range body.Tasks {
					kt := KnownTask{ID: t.ID, Title: t.Title, Completed: t.Completed}
					record(kt)
					listing = append(listing, kt)
				}
				k.LastListing = listing
			case "add_task", "complete_task", "update_task":
				var body struct {
					Task *taskPayload `json:"task"`
				}
				if json.Unmarshal(res.Payload, &body) != nil || body.Task == nil {
					continue
				}
				kt := KnownTask{ID: body.Task.ID, Title: body.Task.Title, Completed: body.Task.Completed}
				record(kt)
				k.LastTouched = &kt
			case "delete_task":
				var body struct {
					TaskID string `json:"task_id"`
				}
				if json.Unmarshal(res.Payload, &body) == nil && body.TaskID != "" {
					if i, ok := index[body.TaskID]; ok {
						k.Tasks[i].Completed = true // gone; never match it again
						k.Tasks[i].Title = ""
					}
				}
			}
		}
	}
	return k
}

// MatchTitle returns the known pending tasks whose title fuzzily matches the
// fragment (containment either way, case-insensitive).
func (k Knowledge) MatchTitle(fragment string) []KnownTask {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return nil
	}
	var out []KnownTask
	for _, t := range k.Tasks {
		if t.Title == "" {
			continue
		}
		title := strings.ToLower(t.Title)
		if strings.Contains(title, fragment) || strings.Contains(fragment, title) {
			out = append(out, t)
		}
	}
	return out
}
