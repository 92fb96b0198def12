// Package respond turns executed tool outcomes into the assistant's reply.
// Composition is deterministic: the same outcomes in the same order always
// produce the same text.
package respond

import (
	"encoding/json"
	"fmt"
	"strings"

	"tally/internal/history"
	"tally/internal/intent"
	"tally/internal/tools"
)

// Executed pairs a tool call with its outcome, in execution order.
type Executed struct {
	Call    history.ToolCall
	Outcome tools.Outcome
}

// Compose renders the reply for an execution turn. Successes and failures
// are reported in the order they ran, so partial failures stay visible next
// to the steps that did succeed.
func Compose(results []Executed) string {
	if len(results) == 0 {
		return "Nothing to do."
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, describe(r))
	}
	return strings.Join(lines, "\n")
}

// ComposeClarify renders a clarification turn.
func ComposeClarify(plan *intent.Plan) string {
	if plan.Question != "" {
		return plan.Question
	}
	return "Could you tell me a bit more about what you'd like to do?"
}

// ComposeChat renders a conversational turn with no tool involvement.
func ComposeChat(plan *intent.Plan) string {
	if plan.ReplyHint != "" {
		return plan.ReplyHint
	}
	return "I'm your task assistant. Ask me to add, list, complete, update, or delete tasks."
}

// ComposeConfirmation asks the user to confirm a destructive call before it
// runs.
func ComposeConfirmation(call history.ToolCall) string {
	var in struct {
		TaskID string `json:"task_id"`
		Title  string `json:"title"`
	}
	_ = json.Unmarshal(call.Arguments, &in)
	switch {
	case in.Title != "":
		return fmt.Sprintf("This will permanently delete %q. Should I go ahead?", in.Title)
	case in.TaskID != "":
		return fmt.Sprintf("This will permanently delete task %s. Should I go ahead?", in.TaskID)
	default:
		return "This can't be undone. Should I go ahead?"
	}
}

func describe(r Executed) string {
	if !r.Outcome.OK {
		return describeFailure(r)
	}
	switch r.Call.Name {
	case "list_tasks":
		return describeListing(r.Outcome.Payload)
	default:
		var body struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(r.Outcome.Payload, &body) == nil && body.Message != "" {
			return body.Message + "."
		}
		return "Done."
	}
}

type listedTask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Priority  string `json:"priority"`
	DueDate   string `json:"due_date"`
	Completed bool   `json:"completed"`
}

func describeListing(payload json.RawMessage) string {
	var body struct {
		TotalCount int          `json:"total_count"`
		Tasks      []listedTask `json:"tasks"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "Here are your tasks."
	}
	if len(body.Tasks) == 0 {
		return "You have no matching tasks."
	}

	var b strings.Builder
	if len(body.Tasks) == 1 {
		b.WriteString("You have 1 task:")
	} else {
		fmt.Fprintf(&b, "You have %d tasks:", len(body.Tasks))
	}
	for i, t := range body.Tasks {
		fmt.Fprintf(&b, "\n%d. %s", i+1, t.Title)
		var notes []string
		if t.Completed {
			notes = append(notes, "done")
		}
		if t.Priority != "" && t.Priority != "medium" {
			notes = append(notes, t.Priority+" priority")
		}
		if t.DueDate != "" {
			notes = append(notes, "due "+shortDate(t.DueDate))
		}
		if len(notes) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(notes, ", "))
		}
	}
	return b.String()
}

// shortDate trims an RFC 3339 timestamp down to its date part.
func shortDate(s string) string {
	if len(s) > 10 && s[10] == 'T' {
		return s[:10]
	}
	return s
}

func describeFailure(r Executed) string {
	switch r.Outcome.Kind {
	case tools.FailNotFound:
		return "I couldn't find that task. It may have been deleted already."
	case tools.FailAlreadyCompleted:
		return "That task is already marked as done."
	case tools.FailSkippedDependency:
		return "I skipped that step because an earlier one didn't succeed."
	case tools.FailStorage:
		return "I couldn't reach your task list just now, so that change didn't happen. Please try again."
	case tools.FailInvalidInput:
		if r.Outcome.Detail != "" {
			return "I couldn't do that: " + r.Outcome.Detail + "."
		}
		return "I couldn't make sense of part of that request."
	default:
		return "Something went wrong with that step."
	}
}
