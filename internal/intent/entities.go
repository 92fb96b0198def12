package intent

import (
	"regexp"
	"strings"
	"time"
)

// Entities are the task attributes pulled out of an utterance.
type Entities struct {
	Title    string
	DueDate  string // raw date expression; normalized by NormalizeDate
	Priority string
	Category string
}

var (
	titlePatterns = []*regexp.Regexp{
		// "add a task to buy milk", "create a reminder to call mom"
		regexp.MustCompile(`(?i)(?:add|create|make|new)\s+(?:a\s+)?(?:task|todo|note|item|reminder)\s+(?:to\s+|for\s+|called\s+|titled\s+)?(.+?)(?:\s+by\b|\s+on\b|\s+at\b|\s+with\b|\.|$)`),
		// "remind me to water the plants"
		regexp.MustCompile(`(?i)(?:remind me to|need to|have to)\s+(.+?)(?:\s+by\b|\s+on\b|\s+at\b|\.|$)`),
		// "add buy milk"
		regexp.MustCompile(`(?i)^(?:add|create|make)\s+(?:a\s+)?(.+?)(?:\s+by\b|\s+on\b|\s+at\b|\.|$)`),
	}

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
		regexp.MustCompile(`(?i)\b(today|tomorrow|tonight)\b`),
		regexp.MustCompile(`(?i)\b(next\s+(?:week|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`),
	}

	priorityRe = regexp.MustCompile(`(?i)\b(urgent|critical|important|high|medium|normal|low)(?:\s+priority)?\b`)
	categoryRe = regexp.MustCompile(`(?i)\b(?:in|for|under)\s+(?:the\s+)?(work|personal|shopping|health|finance|home|school)\b`)

	// Filler words stripped from the front of extracted titles.
	titleNoise = regexp.MustCompile(`^(?:a|an|the|task|todo|item|note|reminder)\s+`)
)

// ExtractEntities pulls task attributes out of a lowercased utterance.
func ExtractEntities(text string) Entities {
	var e Entities

	for _, p := range titlePatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			title := strings.TrimSpace(m[1])
			title = titleNoise.ReplaceAllString(title, "")
			// A residual keyword alone is not a title.
			if title != "" && !isTaskNoun(title) {
				e.Title = title
				break
			}
		}
	}

	for _, p := range datePatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			e.DueDate = strings.ToLower(m[1])
			break
		}
	}

	if m := priorityRe.FindStringSubmatch(text); m != nil {
		e.Priority = canonicalPriority(strings.ToLower(m[1]))
	}
	if m := categoryRe.FindStringSubmatch(text); m != nil {
		e.Category = strings.ToLower(m[1])
	}

	// Date/priority/category qualifiers do not belong in the title.
	if e.Title != "" {
		e.Title = stripQualifiers(e.Title)
	}
	return e
}

func isTaskNoun(s string) bool {
	switch s {
	case "task", "todo", "item", "note", "reminder", "thing":
		return true
	}
	return false
}

func canonicalPriority(p string) string {
	switch p {
	case "urgent", "critical", "important", "high":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}

var qualifierRe = regexp.MustCompile(`(?i)\s+(?:with\s+)?(?:urgent|critical|important|high|medium|normal|low)\s+priority$|\s+(?:today|tomorrow|tonight)$|\s+next\s+(?:week|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`)

func stripQualifiers(title string) string {
	return strings.TrimSpace(qualifierRe.ReplaceAllString(title, ""))
}

// NormalizeDate turns a raw date expression into an ISO 8601 date relative to
// now. Unrecognized expressions return the empty string.
func NormalizeDate(raw string, now time.Time) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return ""
	case "today", "tonight":
		return now.Format("2006-01-02")
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format("2006-01-02")
	case "next week":
		return now.AddDate(0, 0, 7).Format("2006-01-02")
	case "next month":
		return now.AddDate(0, 1, 0).Format("2006-01-02")
	}

	if strings.HasPrefix(raw, "next ") {
		if wd, ok := weekdays[strings.TrimPrefix(raw, "next ")]; ok {
			days := (int(wd)-int(now.Weekday())+6)%7 + 1
			return now.AddDate(0, 0, days).Format("2006-01-02")
		}
	}

	if _, err := time.Parse("2006-01-02", raw); err == nil {
		return raw
	}
	return ""
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
