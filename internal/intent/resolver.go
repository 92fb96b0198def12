package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tally/internal/history"
	"tally/internal/tools"
)

// RuleResolver maps utterances to plans with the keyword classifier and
// entity extractors. It needs no model and no network, which keeps the
// default deployment deterministic.
type RuleResolver struct {
	now func() time.Time
}

var _ Resolver = (*RuleResolver)(nil)

func NewRuleResolver() *RuleResolver { return &RuleResolver{now: time.Now} }

var clauseSplitRe = regexp.MustCompile(`(?i)\s*(?:[,;]\s*)?(?:and\s+)?then\s+|\s*(?:[,;]\s*)?after\s+that,?\s+`)

var (
	taskIDRe  = regexp.MustCompile(`\btask_[0-9a-f]{8}\b`)
	pronounRe = regexp.MustCompile(`(?i)\b(?:it|that one|this one|that task|this task)\b`)
	ordinalRe = regexp.MustCompile(`(?i)\bthe\s+(first|second|third|fourth|fifth|last|\d+(?:st|nd|rd|th))\s+(?:one|task)\b`)

	affirmRe = regexp.MustCompile(`(?i)^\s*(?:yes|yep|yeah|yah|sure|ok|okay|confirm(?:ed)?|do it|go ahead|please do|affirmative)\b`)
	negateRe = regexp.MustCompile(`(?i)^\s*(?:no|nope|nah|don'?t|do not|cancel|stop|never ?mind|leave it)\b`)

	renameRe     = regexp.MustCompile(`(?i)\b(?:rename|retitle)\s+(?:the\s+)?(.+?)\s+(?:task\s+)?to\s+(.+)$`)
	setFieldRe   = regexp.MustCompile(`(?i)\b(?:change|set|update)\s+(?:the\s+)?(?:priority|due date|category)\s+(?:of|for)\s+(.+?)\s+to\b`)
	uncompleteRe = regexp.MustCompile(`(?i)\b(?:reopen|uncomplete|mark\s+.*(?:not done|incomplete|undone))\b`)

	completedWordsRe = regexp.MustCompile(`(?i)\b(?:completed|finished|done)\b`)
	pendingWordsRe   = regexp.MustCompile(`(?i)\b(?:pending|open|unfinished|remaining|outstanding)\b`)
)

// IsAffirmation reports whether the utterance reads as a plain "yes".
func IsAffirmation(text string) bool {
	return affirmRe.MatchString(text) && !negateRe.MatchString(text)
}

// IsNegation reports whether the utterance reads as a refusal.
func IsNegation(text string) bool { return negateRe.MatchString(text) }

func (r *RuleResolver) Resolve(ctx context.Context, utterance string, recent []*history.Message, catalog *tools.Registry) (*Plan, error) {
	know := BuildKnowledge(recent)
	clauses := splitClauses(utterance)

	var invocations []ProposedInvocation
	for _, clause := range clauses {
		cls := Classify(clause)
		switch cls.Kind {
		case KindAdd:
			inv, question := buildAdd(cls, r.now())
			if question != "" {
				return Clarify(question), nil
			}
			invocations = append(invocations, inv)
		case KindList:
			invocations = append(invocations, buildList(clause, cls))
		case KindComplete, KindDelete, KindUpdate:
			inv, question := buildTargeted(clause, cls, know, invocations, r.now())
			if question != "" {
				return Clarify(question), nil
			}
			invocations = append(invocations, inv)
		case KindHelp:
			return Chat(helpText(catalog)), nil
		default:
			if len(invocations) > 0 {
				// Drop a trailing unintelligible clause rather than
				// discarding the plan built so far.
				continue
			}
			return Chat(""), nil
		}
	}
	if len(invocations) == 0 {
		return Chat(""), nil
	}
	return Execute(invocations...), nil
}

func splitClauses(utterance string) []string {
	parts := clauseSplitRe.Split(utterance, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, utterance)
	}
	return out
}

func buildAdd(cls Classified, now time.Time) (ProposedInvocation, string) {
	title := strings.TrimSpace(cls.Entities.Title)
	if title == "" {
		return ProposedInvocation{}, "What should the task say?"
	}
	args := map[string]any{"title": title}
	if due := NormalizeDate(cls.Entities.DueDate, now); due != "" {
		args["due_date"] = due
	}
	if cls.Entities.Priority != "" {
		args["priority"] = cls.Entities.Priority
	}
	if cls.Entities.Category != "" {
		args["category"] = cls.Entities.Category
	}
	return invocation("add_task", args, false, nil), ""
}

func buildList(clause string, cls Classified) ProposedInvocation {
	args := map[string]any{}
	switch {
	case completedWordsRe.MatchString(clause):
		args["status"] = "completed"
	case pendingWordsRe.MatchString(clause):
		args["status"] = "pending"
	}
	if cls.Entities.Priority != "" {
		args["priority"] = cls.Entities.Priority
	}
	if cls.Entities.Category != "" {
		args["category"] = cls.Entities.Category
	}
	return invocation("list_tasks", args, false, nil)
}

// buildTargeted resolves complete/delete/update clauses, which all need a
// concrete task id or a reference to an earlier step in the same plan.
func buildTargeted(clause string, cls Classified, know Knowledge, prior []ProposedInvocation, now time.Time) (ProposedInvocation, string) {
	tool := map[Kind]string{
		KindComplete: "complete_task",
		KindDelete:   "delete_task",
		KindUpdate:   "update_task",
	}[cls.Kind]
	destructive := cls.Kind == KindDelete

	args := map[string]any{}
	if cls.Kind == KindUpdate {
		fields, question := updateFields(clause, cls, now)
		if question != "" {
			return ProposedInvocation{}, question
		}
		for k, v := range fields {
			args[k] = v
		}
	}

	// Explicit id wins outright.
	if id := taskIDRe.FindString(clause); id != "" {
		args["task_id"] = id
		return invocation(tool, args, destructive, nil), ""
	}

	// Ordinal or pronoun referring to a step earlier in this same plan.
	if ref, ok := planReference(clause, prior); ok {
		args["task_id"] = "" // filled in at execution time
		return invocation(tool, args, destructive, &ref), ""
	}

	// Otherwise match against what the conversation already knows.
	if sel, ok := ordinalSelector(clause); ok {
		listing := know.LastListing
		idx, found := selectFromListing(sel, listing)
		if !found {
			return ProposedInvocation{}, "Which task do you mean?"
		}
		args["task_id"] = listing[idx].ID
		return invocation(tool, args, destructive, nil), ""
	}
	if pronounRe.MatchString(clause) && titleFragment(clause, cls) == "" {
		if know.LastTouched != nil {
			args["task_id"] = know.LastTouched.ID
			return invocation(tool, args, destructive, nil), ""
		}
		if len(know.LastListing) == 1 {
			args["task_id"] = know.LastListing[0].ID
			return invocation(tool, args, destructive, nil), ""
		}
		return ProposedInvocation{}, "Which task do you mean?"
	}

	fragment := titleFragment(clause, cls)
	matches := know.MatchTitle(fragment)
	switch len(matches) {
	case 1:
		args["task_id"] = matches[0].ID
		return invocation(tool, args, destructive, nil), ""
	case 0:
		if fragment != "" {
			return ProposedInvocation{}, fmt.Sprintf("I don't see a task matching %q. Which task do you mean?", fragment)
		}
		return ProposedInvocation{}, "Which task do you mean?"
	default:
		titles := make([]string, len(matches))
		for i, m := range matches {
			titles[i] = m.Title
		}
		return ProposedInvocation{}, fmt.Sprintf("That matches several tasks (%s). Which one?", strings.Join(titles, ", "))
	}
}

// planReference detects "it", "that one", "the second one" pointing at an
// add_task or list_tasks step proposed earlier in the same utterance.
func planReference(clause string, prior []ProposedInvocation) (ResultRef, bool) {
	step := -1
	for i := len(prior) - 1; i >= 0; i-- {
		if prior[i].Tool == "add_task" || prior[i].Tool == "list_tasks" {
			step = i
			break
		}
	}
	if step < 0 {
		return ResultRef{}, false
	}
	if sel, ok := ordinalSelector(clause); ok && prior[step].Tool == "list_tasks" {
		return ResultRef{Step: step, Selector: sel}, true
	}
	if pronounRe.MatchString(clause) {
		return ResultRef{Step: step, Selector: "only"}, true
	}
	return ResultRef{}, false
}

func ordinalSelector(clause string) (string, bool) {
	m := ordinalRe.FindStringSubmatch(clause)
	if m == nil {
		return "", false
	}
	switch w := strings.ToLower(m[1]); w {
	case "first":
		return "first", true
	case "last":
		return "last", true
	case "second":
		return "2", true
	case "third":
		return "3", true
	case "fourth":
		return "4", true
	case "fifth":
		return "5", true
	default:
		n, err := strconv.Atoi(strings.TrimRight(w, "stndrh"))
		if err != nil || n < 1 {
			return "", false
		}
		return strconv.Itoa(n), true
	}
}

func selectFromListing(sel string, listing []KnownTask) (int, bool) {
	if len(listing) == 0 {
		return 0, false
	}
	switch sel {
	case "first", "only":
		return 0, true
	case "last":
		return len(listing) - 1, true
	default:
		n, err := strconv.Atoi(sel)
		if err != nil || n < 1 || n > len(listing) {
			return 0, false
		}
		return n - 1, true
	}
}

var (
	quotedRe       = regexp.MustCompile(`["'](.+?)["']`)
	markDoneRe     = regexp.MustCompile(`(?i)\bmark\s+(?:the\s+)?(.+?)\s+(?:task\s+)?(?:as\s+)?(?:done|complete[d]?|finished)\s*$`)
	updateTargetRe = regexp.MustCompile(`(?i)\b(?:update|change|edit|modify)\s+(?:the\s+)?(.+?)\s+task\b`)
	verbTargetRe   = regexp.MustCompile(`(?i)\b(?:complete|finish|delete|remove|cancel|check off)\s+(?:the\s+)?(.+?)\s*$`)

	fragmentTrimRe = regexp.MustCompile(`(?i)^the\s+|\s+task$|\s+(?:as\s+)?(?:done|complete[d]?|finished)$`)
)

// titleFragment pulls the task name out of a targeted clause, e.g.
// "finish the groceries task" yields "groceries".
func titleFragment(clause string, cls Classified) string {
	for _, p := range []*regexp.Regexp{renameRe, setFieldRe, quotedRe, markDoneRe, updateTargetRe, verbTargetRe} {
		if m := p.FindStringSubmatch(clause); m != nil {
			return cleanFragment(m[1])
		}
	}
	return cleanFragment(cls.Entities.Title)
}

func cleanFragment(frag string) string {
	frag = strings.TrimSpace(frag)
	for {
		next := strings.TrimSpace(fragmentTrimRe.ReplaceAllString(frag, ""))
		if next == frag {
			break
		}
		frag = next
	}
	if pronounRe.MatchString(frag) && len(strings.Fields(frag)) == 1 {
		return ""
	}
	return frag
}

// updateFields collects the fields an update clause wants changed.
func updateFields(clause string, cls Classified, now time.Time) (map[string]any, string) {
	fields := map[string]any{}
	if m := renameRe.FindStringSubmatch(clause); m != nil {
		fields["title"] = strings.TrimSpace(strings.Trim(m[2], `"'`))
	}
	if cls.Entities.Priority != "" {
		fields["priority"] = cls.Entities.Priority
	}
	if due := NormalizeDate(cls.Entities.DueDate, now); due != "" {
		fields["due_date"] = due
	}
	if cls.Entities.Category != "" {
		fields["category"] = cls.Entities.Category
	}
	if uncompleteRe.MatchString(clause) {
		fields["completed"] = false
	}
	if len(fields) == 0 {
		return nil, "What would you like to change about it?"
	}
	return fields, ""
}

func invocation(tool string, args map[string]any, destructive bool, ref *ResultRef) ProposedInvocation {
	raw, _ := json.Marshal(args)
	return ProposedInvocation{
		Tool:                 tool,
		Args:                 raw,
		RequiresConfirmation: destructive,
		Ref:                  ref,
	}
}

func helpText(catalog *tools.Registry) string {
	var b strings.Builder
	b.WriteString("I can manage your todo list. Try things like:\n")
	b.WriteString("- \"add a task to buy groceries tomorrow\"\n")
	b.WriteString("- \"show my pending tasks\"\n")
	b.WriteString("- \"mark the groceries task as done\"\n")
	b.WriteString("- \"delete the old report task\"\n")
	b.WriteString("- \"change the priority of groceries to high\"\n")
	if catalog != nil {
		b.WriteString("\nAvailable operations: ")
		b.WriteString(strings.Join(catalog.Names(), ", "))
	}
	return b.String()
}
