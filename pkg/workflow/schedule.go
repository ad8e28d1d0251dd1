package workflow

import (
	"fmt"
	"time"
)

// Schedule computes trigger instants. It is either a calendar preset
// (@daily, @hourly) or a fixed interval.
type Schedule struct {
	Expr     string
	interval time.Duration
	preset   string
}

// ParseSchedule accepts "@daily", "@hourly" or a Go duration such as "6h".
func ParseSchedule(expr string) (Schedule, error) {
	switch expr {
	case "@daily", "@midnight":
		return Schedule{Expr: expr, preset: "@daily"}, nil
	case "@hourly":
		return Schedule{Expr: expr, preset: "@hourly"}, nil
	case "":
		return Schedule{}, fmt.Errorf("schedule is required")
	}
	d, err := time.ParseDuration(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("schedule %q is not @daily, @hourly or a duration: %w", expr, err)
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("schedule interval %s must be positive", d)
	}
	return Schedule{Expr: expr, interval: d}, nil
}

// Next returns the first trigger strictly after t, in t's location.
func (s Schedule) Next(t time.Time) time.Time {
	switch s.preset {
	case "@daily":
		y, m, d := t.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
	case "@hourly":
		y, m, d := t.Date()
		return time.Date(y, m, d, t.Hour()+1, 0, 0, 0, t.Location())
	}
	return t.Add(s.interval)
}
