package retention

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is a parsed 5-field cron expression driving purge runs.
type Schedule struct {
	raw  string
	spec cron.Schedule
}

// ParseSchedule parses a standard minute-resolution cron expression.
func ParseSchedule(expr string) (*Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	spec, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return &Schedule{raw: expr, spec: spec}, nil
}

// Next returns the next activation time after t.
func (s *Schedule) Next(t time.Time) time.Time {
	return s.spec.Next(t)
}

// Due reports whether t falls within the same minute as an activation.
func (s *Schedule) Due(t time.Time) bool {
	minute := t.Truncate(time.Minute)
	return s.spec.Next(minute.Add(-time.Minute)).Equal(minute)
}

func (s *Schedule) String() string {
	return s.raw
}
