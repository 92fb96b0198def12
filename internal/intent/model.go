package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"tally/internal/history"
	"tally/internal/models"
	"tally/internal/tools"
)

const resolverPrompt = `You are a todo assistant. The user manages tasks through you.
Call the provided tools to carry out the user's request. If a request is
ambiguous or refers to a task you cannot identify from the conversation,
reply with a short clarifying question instead of calling a tool.
When the user is just chatting, reply conversationally without tools.
Always reply in the user's language.`

// ModelResolver delegates plan construction to a tool-calling chat model.
// The model proposes tool calls; it never executes them, so resolution
// stays side-effect free either way.
type ModelResolver struct {
	base        model.ToolCallingChatModel
	destructive map[string]bool
}

var _ Resolver = (*ModelResolver)(nil)

func NewModelResolver(chatModel model.ToolCallingChatModel) *ModelResolver {
	return &ModelResolver{base: chatModel, destructive: map[string]bool{}}
}

func (r *ModelResolver) Resolve(ctx context.Context, utterance string, recent []*history.Message, catalog *tools.Registry) (*Plan, error) {
	bound, err := r.base.WithTools(catalog.ToolInfos())
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}
	for _, name := range catalog.Names() {
		r.destructive[name] = catalog.Spec(name).Destructive
	}

	messages := make([]*schema.Message, 0, len(recent)+2)
	messages = append(messages, schema.SystemMessage(resolverPrompt))
	for _, msg := range recent {
		messages = append(messages, msg.ToSchemaMessage())
	}
	messages = append(messages, schema.UserMessage(utterance))

	out, err := bound.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", models.HandleError(err))
	}

	if len(out.ToolCalls) == 0 {
		text := strings.TrimSpace(out.Content)
		if strings.HasSuffix(text, "?") {
			return Clarify(text), nil
		}
		return Chat(text), nil
	}

	invocations := make([]ProposedInvocation, 0, len(out.ToolCalls))
	for _, call := range out.ToolCalls {
		invocations = append(invocations, ProposedInvocation{
			Tool:                 call.Function.Name,
			Args:                 json.RawMessage(call.Function.Arguments),
			RequiresConfirmation: r.destructive[call.Function.Name],
		})
	}
	plan := Execute(invocations...)
	plan.ReplyHint = strings.TrimSpace(out.Content)
	return plan, nil
}
