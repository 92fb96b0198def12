// Package orchestrator drives one conversational turn end to end: load
// history, resolve intent, execute tools, compose the reply, persist the
// trace. The orchestrator itself holds no conversation state; everything it
// needs to continue a conversation lives in the history store.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tally/internal/events"
	"tally/internal/history"
	"tally/internal/intent"
	"tally/internal/respond"
	"tally/internal/storage"
	"tally/internal/tools"
)

var (
	// ErrNoIdentity is returned when the request carries no user id.
	ErrNoIdentity = errors.New("user identity required")
	// ErrEmptyContent is returned when the request message is blank.
	ErrEmptyContent = errors.New("message content required")
)

// Status summarizes how a turn ended.
type Status string

const (
	// StatusCompleted means every step of the turn succeeded.
	StatusCompleted Status = "completed"
	// StatusDegraded means the turn produced a reply but at least one step
	// failed along the way.
	StatusDegraded Status = "degraded"
)

// Request is one inbound user message.
type Request struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
}

// Response is the orchestrator's answer to one request.
type Response struct {
	ConversationID   string               `json:"conversation_id"`
	MessageID        string               `json:"message_id"`
	Reply            string               `json:"reply"`
	ToolCalls        []history.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults      []history.ToolResult `json:"tool_results,omitempty"`
	Status           Status               `json:"status"`
	ProcessingTimeMs int64                `json:"processing_time_ms"`
}

// Options tune orchestrator behavior; zero values get sensible defaults.
type Options struct {
	// HistoryWindow is how many recent messages feed intent resolution.
	HistoryWindow int
	// ToolTimeout bounds each individual tool invocation.
	ToolTimeout time.Duration
	Logger      *slog.Logger
	Clock       func() time.Time
}

const (
	defaultHistoryWindow = 20
	defaultToolTimeout   = 10 * time.Second
)

// Orchestrator wires the resolver, tool registry, and history store together.
type Orchestrator struct {
	store       history.Store
	registry    *tools.Registry
	resolver    intent.Resolver
	bus         *events.Bus
	log         *slog.Logger
	window      int
	toolTimeout time.Duration
	now         func() time.Time
}

func New(store history.Store, registry *tools.Registry, resolver intent.Resolver, bus *events.Bus, opts Options) *Orchestrator {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = defaultHistoryWindow
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = defaultToolTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Orchestrator{
		store:       store,
		registry:    registry,
		resolver:    resolver,
		bus:         bus,
		log:         opts.Logger,
		window:      opts.HistoryWindow,
		toolTimeout: opts.ToolTimeout,
		now:         opts.Clock,
	}
}

// HandleTurn processes one user message and returns the assistant's reply.
// A non-nil error means the turn aborted: history could not be read, the
// user message could not be saved, or the task store went away mid-turn. An
// aborted turn persists no assistant message. Business failures inside a
// tool (not found, already completed) are recorded outcomes, not errors.
func (o *Orchestrator) HandleTurn(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ErrNoIdentity
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}

	start := o.now()
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = history.GenerateConversationID()
	}

	o.publish(events.EventTurnStarted, conversationID, map[string]any{"user_id": req.UserID})

	recent, err := o.store.LoadRecent(ctx, req.UserID, conversationID, o.window)
	if err != nil {
		o.publish(events.EventTurnAborted, conversationID, map[string]any{"reason": "history load"})
		return nil, fmt.Errorf("load history: %w", err)
	}

	userMsg := &history.Message{
		ID:        history.GenerateMessageID(),
		Role:      history.RoleUser,
		Content:   req.Content,
		CreatedAt: o.timestamp(req),
	}
	if err := o.store.Append(ctx, req.UserID, conversationID, userMsg); err != nil {
		o.publish(events.EventTurnAborted, conversationID, map[string]any{"reason": "user persist"})
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	o.publish(events.EventMessagePersisted, conversationID, map[string]any{"role": "user", "message_id": userMsg.ID})

	// Once the user's message is durable the turn runs to completion even if
	// the caller goes away.
	ctx = context.WithoutCancel(ctx)

	plan, resolveErr := o.plan(ctx, req.Content, recent)

	turn := o.run(ctx, req.UserID, conversationID, plan, resolveErr)
	if turn.err != nil {
		o.publish(events.EventTurnAborted, conversationID, map[string]any{"reason": "tool storage"})
		return nil, fmt.Errorf("execute plan: %w", turn.err)
	}

	assistant := &history.Message{
		ID:          history.GenerateMessageID(),
		Role:        history.RoleAssistant,
		Content:     turn.reply,
		ToolCalls:   turn.calls,
		ToolResults: turn.results,
		CreatedAt:   o.now(),
	}
	if err := o.store.Append(ctx, req.UserID, conversationID, assistant); err != nil {
		// The reply still reaches the user; the conversation log just has a
		// gap, which the next turn's resolver has to live with.
		o.log.Error("assistant message not persisted",
			"conversation_id", conversationID, "error", err)
		turn.status = StatusDegraded
	} else {
		o.publish(events.EventMessagePersisted, conversationID, map[string]any{"role": "assistant", "message_id": assistant.ID})
	}

	terminal := events.EventTurnCompleted
	if turn.status == StatusDegraded {
		terminal = events.EventTurnDegraded
	}
	o.publish(terminal, conversationID, map[string]any{"message_id": assistant.ID})

	return &Response{
		ConversationID:   conversationID,
		MessageID:        assistant.ID,
		Reply:            turn.reply,
		ToolCalls:        turn.calls,
		ToolResults:      turn.results,
		Status:           turn.status,
		ProcessingTimeMs: o.now().Sub(start).Milliseconds(),
	}, nil
}

// plan decides what this turn should do, honoring a pending confirmation
// from the previous turn before consulting the resolver.
func (o *Orchestrator) plan(ctx context.Context, content string, recent []*history.Message) (*intent.Plan, error) {
	if pending := pendingConfirmation(recent); len(pending) > 0 {
		switch {
		case intent.IsAffirmation(content):
			invocations := make([]intent.ProposedInvocation, len(pending))
			for i, call := range pending {
				inv := intent.ProposedInvocation{Tool: call.Name, Args: call.Arguments}
				if call.Ref != nil {
					inv.Ref = &intent.ResultRef{Step: call.Ref.Step, Selector: call.Ref.Selector}
				}
				invocations[i] = inv
			}
			return intent.Execute(invocations...), nil
		case intent.IsNegation(content):
			return intent.Chat("Okay, I've left everything as it is."), nil
		}
		// Anything else abandons the proposal and is treated as a fresh
		// request.
	}
	return o.resolver.Resolve(ctx, content, recent, o.registry)
}

// pendingConfirmation returns the parked tool calls when the immediately
// preceding message is an unconfirmed destructive proposal.
func pendingConfirmation(recent []*history.Message) []history.ToolCall {
	if len(recent) == 0 {
		return nil
	}
	last := recent[len(recent)-1]
	if last.Role != history.RoleAssistant {
		return nil
	}
	pending := map[string]bool{}
	for _, res := range last.ToolResults {
		if res.Status == history.StatusPendingConfirmation {
			pending[res.ToolCallID] = true
		}
	}
	if len(pending) == 0 {
		return nil
	}
	var calls []history.ToolCall
	for _, call := range last.ToolCalls {
		if pending[call.ID] {
			calls = append(calls, call)
		}
	}
	return calls
}

// turnResult carries the assembled assistant side of a turn. A non-nil err
// means the turn must abort with no assistant message.
type turnResult struct {
	reply   string
	calls   []history.ToolCall
	results []history.ToolResult
	status  Status
	err     error
}

func (o *Orchestrator) run(ctx context.Context, userID, conversationID string, plan *intent.Plan, resolveErr error) turnResult {
	if resolveErr != nil {
		o.log.Error("intent resolution failed", "conversation_id", conversationID, "error", resolveErr)
		return turnResult{
			reply:  "I'm having trouble understanding requests right now. Please try again in a moment.",
			status: StatusDegraded,
		}
	}

	switch plan.Kind {
	case intent.PlanClarify:
		return turnResult{reply: respond.ComposeClarify(plan), status: StatusCompleted}
	case intent.PlanChat:
		return turnResult{reply: respond.ComposeChat(plan), status: StatusCompleted}
	case intent.PlanExecute:
		if needsConfirmation(plan) {
			return o.park(plan)
		}
		return o.execute(ctx, userID, conversationID, plan)
	default:
		o.log.Error("resolver produced malformed plan", "conversation_id", conversationID, "kind", plan.Kind)
		return turnResult{reply: respond.ComposeChat(intent.Chat("")), status: StatusDegraded}
	}
}

func needsConfirmation(plan *intent.Plan) bool {
	for _, inv := range plan.Invocations {
		if inv.RequiresConfirmation {
			return true
		}
	}
	return false
}

// park records the whole plan as pending and asks the user to confirm the
// destructive step. Mixed plans are held back entirely so that a later "yes"
// replays them in their original order.
func (o *Orchestrator) park(plan *intent.Plan) turnResult {
	var (
		calls   []history.ToolCall
		results []history.ToolResult
		first   *history.ToolCall
	)
	for _, inv := range plan.Invocations {
		call := history.ToolCall{ID: newCallID(), Name: inv.Tool, Arguments: inv.Args}
		if inv.Ref != nil {
			// Keep the step reference so a later "yes" replays the chain
			// intact instead of a delete with an empty task id.
			call.Ref = &history.CallRef{Step: inv.Ref.Step, Selector: inv.Ref.Selector}
		}
		calls = append(calls, call)
		results = append(results, history.ToolResult{
			ToolCallID: call.ID,
			Status:     history.StatusPendingConfirmation,
		})
		if first == nil && inv.RequiresConfirmation {
			c := call
			first = &c
		}
	}
	return turnResult{
		reply:   respond.ComposeConfirmation(*first),
		calls:   calls,
		results: results,
		status:  StatusCompleted,
	}
}

func (o *Orchestrator) execute(ctx context.Context, userID, conversationID string, plan *intent.Plan) turnResult {
	var (
		executed []respond.Executed
		calls    []history.ToolCall
		results  []history.ToolResult
		outcomes = make([]tools.Outcome, len(plan.Invocations))
	)

	for i, inv := range plan.Invocations {
		call := history.ToolCall{ID: newCallID(), Name: inv.Tool, Arguments: inv.Args}

		outcome, resolved := o.resolveRef(inv, outcomes)
		if resolved != nil {
			call.Arguments = resolved.args
			o.publish(events.EventToolCall, conversationID, map[string]any{"tool": call.Name, "call_id": call.ID})
			callCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
			outcome = o.registry.Invoke(callCtx, call.Name, call.Arguments, userID)
			cancel()
		}
		outcomes[i] = outcome

		// A vanished task store fails the whole turn; no partial reply.
		if !outcome.OK && outcome.Kind == tools.FailStorage {
			o.publish(events.EventToolResult, conversationID, map[string]any{
				"tool": call.Name, "call_id": call.ID, "status": history.StatusFailure, "kind": string(outcome.Kind),
			})
			return turnResult{err: fmt.Errorf("tool %s: %s: %w", call.Name, outcome.Detail, storage.ErrUnavailable)}
		}

		result := history.ToolResult{
			ToolCallID: call.ID,
			Status:     history.StatusSuccess,
			Payload:    outcome.Payload,
		}
		if !outcome.OK {
			result.Status = history.StatusFailure
			result.Kind = string(outcome.Kind)
			result.Detail = outcome.Detail
			result.Payload = nil
		}

		o.publish(events.EventToolResult, conversationID, map[string]any{
			"tool": call.Name, "call_id": call.ID, "status": result.Status, "kind": result.Kind,
		})

		calls = append(calls, call)
		results = append(results, result)
		executed = append(executed, respond.Executed{Call: call, Outcome: outcome})
	}

	return turnResult{
		reply:   respond.Compose(executed),
		calls:   calls,
		results: results,
		status:  StatusCompleted,
	}
}

// resolvedArgs is the argument set after reference injection.
type resolvedArgs struct {
	args json.RawMessage
}

// resolveRef injects a task id from an earlier step's outcome. It returns
// either a failure outcome (reference unusable, tool not invoked) or the
// arguments to invoke with.
func (o *Orchestrator) resolveRef(inv intent.ProposedInvocation, outcomes []tools.Outcome) (tools.Outcome, *resolvedArgs) {
	if inv.Ref == nil {
		return tools.Outcome{}, &resolvedArgs{args: inv.Args}
	}
	ref := inv.Ref
	if ref.Step < 0 || ref.Step >= len(outcomes) {
		return tools.Failure(tools.FailInvalidInput, "reference to a step outside the plan"), nil
	}
	prev := outcomes[ref.Step]
	if !prev.OK {
		return tools.Failure(tools.FailSkippedDependency,
			fmt.Sprintf("step %d did not succeed", ref.Step+1)), nil
	}

	taskID, err := taskIDFromPayload(prev.Payload, ref.Selector)
	if err != nil {
		return tools.Failure(tools.FailInvalidInput, err.Error()), nil
	}

	var args map[string]any
	if len(inv.Args) > 0 {
		if err := json.Unmarshal(inv.Args, &args); err != nil {
			return tools.Failure(tools.FailInvalidInput, "unreadable arguments: "+err.Error()), nil
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	args["task_id"] = taskID
	raw, err := json.Marshal(args)
	if err != nil {
		return tools.Failure(tools.FailInvalidInput, "encode arguments: "+err.Error()), nil
	}
	return tools.Outcome{}, &resolvedArgs{args: raw}
}

// taskIDFromPayload picks a task id out of an add_task or list_tasks payload.
func taskIDFromPayload(payload json.RawMessage, selector string) (string, error) {
	var body struct {
		Task *struct {
			ID string `json:"id"`
		} `json:"task"`
		Tasks []struct {
			ID string `json:"id"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", fmt.Errorf("unreadable step result: %v", err)
	}

	if body.Task != nil {
		return body.Task.ID, nil
	}

	n := len(body.Tasks)
	if n == 0 {
		return "", errors.New("the referenced step returned no tasks")
	}
	switch selector {
	case "first":
		return body.Tasks[0].ID, nil
	case "last":
		return body.Tasks[n-1].ID, nil
	case "only", "":
		if n != 1 {
			return "", fmt.Errorf("the referenced step returned %d tasks, so the reference is ambiguous", n)
		}
		return body.Tasks[0].ID, nil
	default:
		var idx int
		if _, err := fmt.Sscanf(selector, "%d", &idx); err != nil || idx < 1 || idx > n {
			return "", fmt.Errorf("no task at position %s", selector)
		}
		return body.Tasks[idx-1].ID, nil
	}
}

func (o *Orchestrator) timestamp(req Request) time.Time {
	if !req.Timestamp.IsZero() {
		return req.Timestamp
	}
	return o.now()
}

func (o *Orchestrator) publish(t events.EventType, conversationID string, payload map[string]any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.NewConversationEvent(t, events.SourceOrchestrator, payload, conversationID))
}

func newCallID() string {
	return "call_" + uuid.New().String()[:8]
}
