// Package scheduling generates bookable appointment windows from working
// hours and a doctor's busy intervals.
package scheduling

import (
	"time"
)

const (
	// SlotDuration is the fixed length of every candidate appointment.
	SlotDuration = 30 * time.Minute
	// DefaultMaxCandidates bounds the scan before results are truncated.
	DefaultMaxCandidates = 10
	// DefaultMaxOffered is the number of slots offered to a patient.
	DefaultMaxOffered = 3
)

// Interval is a half-open busy window [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether [start, end) intersects the interval.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && end.After(i.Start)
}

// CandidateSlot is an offered appointment window.
type CandidateSlot struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	DisplayLabel string    `json:"displayLabel"`
}

// Generator walks a date range and emits non-conflicting slots inside
// weekday working hours. It holds no mutable state and is safe for
// concurrent use.
type Generator struct {
	openHour      int
	closeHour     int
	maxCandidates int
	maxOffered    int
	label         func(time.Time) string
}

// Option customizes a Generator.
type Option func(*Generator)

// WithWorkingHours sets the [open, close) hour window. Invalid windows are ignored.
func WithWorkingHours(open, close int) Option {
	return func(g *Generator) {
		if open >= 0 && close <= 24 && open < close {
			g.openHour = open
			g.closeHour = close
		}
	}
}

// WithLabeler sets the display label formatter.
func WithLabeler(label func(time.Time) string) Option {
	return func(g *Generator) {
		if label != nil {
			g.label = label
		}
	}
}

// WithLimits overrides the scan bound and the number of slots returned by Generate.
func WithLimits(maxCandidates, maxOffered int) Option {
	return func(g *Generator) {
		if maxCandidates > 0 {
			g.maxCandidates = maxCandidates
		}
		if maxOffered > 0 {
			g.maxOffered = maxOffered
		}
	}
}

// NewGenerator returns a generator for 09:00-18:00 weekdays.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		openHour:      9,
		closeHour:     18,
		maxCandidates: DefaultMaxCandidates,
		maxOffered:    DefaultMaxOffered,
		label:         LabelFor("en"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the first offered slots, in chronological order.
func (g *Generator) Generate(start, end time.Time, busy []Interval) []CandidateSlot {
	candidates := g.Candidates(start, end, busy)
	if len(candidates) > g.maxOffered {
		candidates = candidates[:g.maxOffered]
	}
	return candidates
}

// Candidates scans [start, end) in SlotDuration steps and returns every
// accepted slot up to the scan bound.
func (g *Generator) Candidates(start, end time.Time, busy []Interval) []CandidateSlot {
	var accepted []CandidateSlot
	cursor := start
	for cursor.Before(end) && len(accepted) < g.maxCandidates {
		if isWeekend(cursor) || cursor.Hour() >= g.closeHour {
			cursor = atHour(cursor.AddDate(0, 0, 1), g.openHour)
			continue
		}
		if cursor.Hour() < g.openHour {
			cursor = atHour(cursor, g.openHour)
			continue
		}

		slotEnd := cursor.Add(SlotDuration)
		if slotEnd.After(atHour(cursor, g.closeHour)) {
			cursor = atHour(cursor.AddDate(0, 0, 1), g.openHour)
			continue
		}
		if !conflicts(cursor, slotEnd, busy) {
			accepted = append(accepted, CandidateSlot{
				Start:        cursor,
				End:          slotEnd,
				DisplayLabel: g.label(cursor),
			})
		}
		cursor = cursor.Add(SlotDuration)
	}
	return accepted
}

// Label formats a slot start with the generator's labeler.
func (g *Generator) Label(t time.Time) string {
	return g.label(t)
}

// DefaultSlots returns three 30-minute slots two hours apart on the next
// business day after now, starting at 10:00 in now's location.
func (g *Generator) DefaultSlots(now time.Time) []CandidateSlot {
	day := now.AddDate(0, 0, 1)
	for isWeekend(day) {
		day = day.AddDate(0, 0, 1)
	}
	first := atHour(day, 10)
	slots := make([]CandidateSlot, 0, 3)
	for i := 0; i < 3; i++ {
		start := first.Add(time.Duration(i) * 2 * time.Hour)
		slots = append(slots, CandidateSlot{
			Start:        start,
			End:          start.Add(SlotDuration),
			DisplayLabel: g.label(start),
		})
	}
	return slots
}

// NextHalfHour rounds t up to the next :00 or :30 boundary.
func NextHalfHour(t time.Time) time.Time {
	if t.Minute()%30 == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t
	}
	hour := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	return hour.Add(time.Duration(t.Minute()/30+1) * 30 * time.Minute)
}

func conflicts(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}
