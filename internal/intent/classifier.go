package intent

import (
	"regexp"
	"strings"
)

// Kind enumerates the recognized utterance intents.
type Kind string

const (
	KindAdd      Kind = "add_task"
	KindList     Kind = "list_tasks"
	KindComplete Kind = "complete_task"
	KindDelete   Kind = "delete_task"
	KindUpdate   Kind = "update_task"
	KindHelp     Kind = "help"
	KindUnknown  Kind = "unknown"
)

// scoreThreshold is the minimum pattern score below which an utterance is
// treated as unclassified.
const scoreThreshold = 0.1

// classifyOrder fixes the order intents are scored in, so equal scores
// always break the same way.
var classifyOrder = []Kind{KindAdd, KindList, KindComplete, KindDelete, KindUpdate, KindHelp}

var intentPatterns = map[Kind][]*regexp.Regexp{
	KindAdd: compileAll(
		`\b(add|create|make|new)\b.*\b(task|todo|item|thing|note|reminder)\b`,
		`\b(task|todo|item|thing|note|reminder)\b.*\b(add|create|make|new)\b`,
		`\b(remind me to|need to|have to)\b`,
		`\b(make a note|write down|put (?:it )?(?:in|on) my list)\b`,
	),
	KindList: compileAll(
		`\b(show|list|view|see|display|fetch|get)\b.*\b(tasks?|todos?|items?|things|notes|reminders)\b`,
		`\b(what are|do i have|show me)\b.*\b(tasks?|todos?|items?|things|notes|reminders)\b`,
		`\b(my tasks|my todos|my list|current tasks)\b`,
	),
	KindComplete: compileAll(
		`\b(mark|complete|finish|check off|tick off)\b.*\b(task|todo|item|thing|one|it)\b`,
		`\b(task|todo|item|thing)\b.*\b(complete|finish|as done)\b`,
		`\b(is done|finished|completed)\b`,
		`\b(i'?m done with|i finished|done with)\b`,
		`\b(mark|check|tick)\b.*\b(done|off)\b`,
	),
	KindDelete: compileAll(
		`\b(delete|remove|erase|cancel|get rid of)\b.*\b(task|todo|item|thing|one|it)\b`,
		`\b(task|todo|item|thing)\b.*\b(delete|remove|erase|cancel)\b`,
	),
	KindUpdate: compileAll(
		`\b(update|change|modify|edit|adjust|revise)\b.*\b(task|todo|item|thing)\b`,
		`\b(task|todo|item|thing)\b.*\b(update|change|modify|edit|adjust)\b`,
		`\b(rename|change to|modify to|update to)\b`,
		`\b(change|set|update|adjust)\b.*\b(priority|due date|category)\b`,
	),
	KindHelp: compileAll(
		`\b(help|assistance|how to|what can you do)\b`,
		`\b(tutorial|guide|manual)\b`,
	),
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Classified is the outcome of keyword classification.
type Classified struct {
	Kind     Kind
	Score    float64
	Entities Entities
	Text     string
}

// Classify scores the utterance against every intent's pattern set and picks
// the best one. Pattern hits get double weight; plain word overlap with a
// matching pattern adds a fractional bonus.
func Classify(text string) Classified {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Classified{Kind: KindUnknown, Text: text}
	}

	var (
		best      = KindUnknown
		bestScore float64
	)
	for _, kind := range classifyOrder {
		score := scoreIntent(normalized, intentPatterns[kind])
		if score > bestScore {
			best, bestScore = kind, score
		}
	}

	if bestScore < scoreThreshold {
		best = KindUnknown
	}

	c := Classified{
		Kind:     best,
		Score:    bestScore,
		Entities: ExtractEntities(normalized),
		Text:     text,
	}
	return refine(c)
}

func scoreIntent(text string, patterns []*regexp.Regexp) float64 {
	var score float64
	words := wordSet(text)

	for _, p := range patterns {
		matches := p.FindAllString(text, -1)
		score += float64(len(matches)) * 2.0

		if len(matches) > 0 {
			for w := range wordSet(p.String()) {
				if words[w] {
					score += 0.5
				}
			}
		}
	}
	return score
}

var wordRe = regexp.MustCompile(`[a-z']+`)

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		set[w] = true
	}
	return set
}

// refine adjusts an unknown classification when extracted entities make the
// intent obvious anyway: a bare imperative with a title reads as an add.
func refine(c Classified) Classified {
	if c.Kind != KindUnknown {
		return c
	}
	if c.Entities.Title != "" {
		c.Kind = KindAdd
		c.Score = 0.8
	}
	return c
}
