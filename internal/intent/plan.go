// Package intent maps raw user utterances onto tool invocation plans. The
// resolvers here are pure: no storage access, no side effects, so they can be
// swapped (keyword rules vs. a tool-calling model) without touching the
// orchestrator.
package intent

import (
	"context"
	"encoding/json"

	"tally/internal/history"
	"tally/internal/tools"
)

// PlanKind tags the three possible resolution outcomes.
type PlanKind string

const (
	// PlanExecute proposes one or more tool invocations.
	PlanExecute PlanKind = "execute"
	// PlanClarify asks the user a question instead of executing anything.
	PlanClarify PlanKind = "clarify"
	// PlanChat answers conversationally with no tool involvement.
	PlanChat PlanKind = "chat"
)

// ResultRef points a later invocation at the output of an earlier one in the
// same plan. The orchestrator resolves the reference from the earlier
// outcome's payload before invoking.
type ResultRef struct {
	// Step is the index of the invocation whose result is referenced.
	Step int `json:"step"`
	// Selector picks a task out of the referenced payload: "first", "last",
	// or a 1-based ordinal like "2".
	Selector string `json:"selector"`
}

// ProposedInvocation is one planned tool call.
type ProposedInvocation struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
	// RequiresConfirmation marks destructive calls that need an explicit
	// confirmation turn before execution.
	RequiresConfirmation bool `json:"requires_confirmation,omitempty"`
	// Ref, when non-nil, injects a task id from an earlier step's result.
	// The invocation is skipped if that step failed.
	Ref *ResultRef `json:"ref,omitempty"`
}

// Plan is the resolver's decision for one turn.
type Plan struct {
	Kind        PlanKind             `json:"kind"`
	Invocations []ProposedInvocation `json:"invocations,omitempty"`
	Question    string               `json:"question,omitempty"`
	ReplyHint   string               `json:"reply_hint,omitempty"`
}

// Execute builds an execution plan.
func Execute(invocations ...ProposedInvocation) *Plan {
	return &Plan{Kind: PlanExecute, Invocations: invocations}
}

// Clarify builds a clarification plan.
func Clarify(question string) *Plan {
	return &Plan{Kind: PlanClarify, Question: question}
}

// Chat builds a conversational plan.
func Chat(replyHint string) *Plan {
	return &Plan{Kind: PlanChat, ReplyHint: replyHint}
}

// Resolver turns an utterance plus recent history into a Plan.
type Resolver interface {
	Resolve(ctx context.Context, utterance string, recent []*history.Message, catalog *tools.Registry) (*Plan, error)
}
