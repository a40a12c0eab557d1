// Package window derives the current and preceding comparison windows used by
// every period-over-period metric.
package window

import (
	"fmt"
	"time"

	"backoffice-svc/models"
)

const day = 24 * time.Hour

// Window is the half-open range [Start, End). The zero Window is unbounded.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.IsZero() {
		return true
	}
	return !t.Before(w.Start) && t.Before(w.End)
}

// Days returns the calendar days covered by the window, oldest first.
func (w Window) Days() []time.Time {
	if w.IsZero() {
		return nil
	}
	var out []time.Time
	for d := w.Start; d.Before(w.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
}

// Pair is a current window with the equal-length window right before it.
type Pair struct {
	Days     int    `json:"days"`
	Current  Window `json:"current"`
	Previous Window `json:"previous"`
}

// Calculator aligns windows to calendar days in its location.
type Calculator struct {
	loc     *time.Location
	maxDays int
	now     func() time.Time
}

func NewCalculator(loc *time.Location, maxDays int) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc, maxDays: maxDays, now: time.Now}
}

// WithClock returns a copy that reads the time from now.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Calculator) Now() time.Time {
	return c.now().In(c.loc)
}

func (c *Calculator) Location() *time.Location {
	return c.loc
}

// StartOfDay truncates t to midnight in the calculator's location.
func (c *Calculator) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// Lookback returns the N calendar days ending today and the N days before them.
func (c *Calculator) Lookback(days int) (Pair, error) {
	if days <= 0 {
		return Pair{}, models.NewValidationError("days", "must be greater than 0, got %d", days)
	}
	if c.maxDays > 0 && days > c.maxDays {
		return Pair{}, models.NewValidationError("days", "must be at most %d, got %d", c.maxDays, days)
	}
	end := c.StartOfDay(c.Now()).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -days)
	return Pair{
		Days:     days,
		Current:  Window{Start: start, End: end},
		Previous: Window{Start: start.AddDate(0, 0, -days), End: start},
	}, nil
}

// DaysBetween counts whole days from since to now, never negative.
func DaysBetween(since, now time.Time) int {
	if now.Before(since) {
		return 0
	}
	return int(now.Sub(since) / day)
}
