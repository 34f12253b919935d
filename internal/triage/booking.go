package triage

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/symptom-intake/internal/scheduling"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

const (
	FallbackNoDoctors         = "no_doctors"
	FallbackAvailabilityError = "availability_error"
	FallbackNoSlots           = "no_slots"
)

// DoctorAvailability is one doctor's scanned candidates.
type DoctorAvailability struct {
	Doctor Doctor
	Slots  []scheduling.CandidateSlot
}

// DoctorSelector picks the doctor to suggest, returning -1 for none.
type DoctorSelector func(candidates []DoctorAvailability) int

// MostAvailable suggests the doctor with the most non-conflicting
// candidates. Ties keep directory order.
func MostAvailable(candidates []DoctorAvailability) int {
	best, bestCount := -1, 0
	for i, c := range candidates {
		if len(c.Slots) > bestCount {
			best, bestCount = i, len(c.Slots)
		}
	}
	return best
}

// BookingPlanner builds the slot offer shown when questions are complete.
type BookingPlanner struct {
	availability Availability
	location     *time.Location
	searchDays   int
	selector     DoctorSelector
	logger       *logging.Logger
}

// BookingOption customizes a BookingPlanner.
type BookingOption func(*BookingPlanner)

// WithLocation sets the clinic timezone used for working hours.
func WithLocation(loc *time.Location) BookingOption {
	return func(p *BookingPlanner) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithSearchDays sets how many days ahead to scan.
func WithSearchDays(days int) BookingOption {
	return func(p *BookingPlanner) {
		if days > 0 {
			p.searchDays = days
		}
	}
}

// WithDoctorSelector replaces the doctor suggestion policy.
func WithDoctorSelector(selector DoctorSelector) BookingOption {
	return func(p *BookingPlanner) {
		if selector != nil {
			p.selector = selector
		}
	}
}

// NewBookingPlanner creates a planner. A nil availability offers slots
// against an empty calendar.
func NewBookingPlanner(availability Availability, logger *logging.Logger, opts ...BookingOption) *BookingPlanner {
	if logger == nil {
		logger = logging.Default()
	}
	p := &BookingPlanner{
		availability: availability,
		location:     time.UTC,
		searchDays:   7,
		selector:     MostAvailable,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Offer never returns an empty slot list; it substitutes the default set
// when nothing can be generated.
func (p *BookingPlanner) Offer(ctx context.Context, now time.Time, language string) BookingOffer {
	gen := scheduling.NewGenerator(scheduling.WithLabeler(scheduling.LabelFor(language)))
	start := scheduling.NextHalfHour(now.In(p.location))
	end := start.AddDate(0, 0, p.searchDays)

	offer, reason := p.scan(ctx, gen, start, end)
	if len(offer.Slots) == 0 {
		if reason == "" {
			reason = FallbackNoSlots
		}
		p.logger.Warn("booking offer using default slots", "reason", reason)
		return BookingOffer{Doctor: offer.Doctor, Slots: gen.DefaultSlots(start), FallbackReason: reason}
	}
	offer.FallbackReason = reason
	return offer
}

func (p *BookingPlanner) scan(ctx context.Context, gen *scheduling.Generator, start, end time.Time) (BookingOffer, string) {
	if p.availability == nil {
		return BookingOffer{Slots: gen.Generate(start, end, nil)}, ""
	}
	doctors, err := p.availability.Doctors(ctx)
	if err != nil {
		p.logger.Warn("doctor directory unavailable", "error", err)
		return BookingOffer{Slots: gen.Generate(start, end, nil)}, FallbackAvailabilityError
	}
	if len(doctors) == 0 {
		return BookingOffer{Slots: gen.Generate(start, end, nil)}, FallbackNoDoctors
	}

	var (
		scanned []DoctorAvailability
		failed  []Doctor
	)
	for _, d := range doctors {
		busy, err := p.availability.FreeBusy(ctx, d.ID, start, end)
		if err != nil {
			p.logger.Warn("free/busy lookup failed", "doctor_id", d.ID, "error", err)
			failed = append(failed, d)
			continue
		}
		scanned = append(scanned, DoctorAvailability{Doctor: d, Slots: gen.Candidates(start, end, busy)})
	}

	// Only when every calendar failed is an empty busy set assumed.
	if len(scanned) == 0 {
		doctor := failed[0]
		return BookingOffer{Doctor: &doctor, Slots: gen.Generate(start, end, nil)}, FallbackAvailabilityError
	}

	idx := p.selector(scanned)
	if idx < 0 || idx >= len(scanned) || len(scanned[idx].Slots) == 0 {
		return BookingOffer{}, FallbackNoSlots
	}
	chosen := scanned[idx]
	slots := chosen.Slots
	if len(slots) > scheduling.DefaultMaxOffered {
		slots = slots[:scheduling.DefaultMaxOffered]
	}
	doctor := chosen.Doctor
	return BookingOffer{Doctor: &doctor, Slots: slots}, ""
}

var (
	optionNumber = regexp.MustCompile(`\b([1-9])\b`)
	declineWords = regexp.MustCompile(`(?i)\b(no|none|neither|nope|decline|not now|later|skip)\b`)
	ordinalWords = []string{"first", "second", "third", "fourth", "fifth"}
	ordinalShort = []string{"1st", "2nd", "3rd", "4th", "5th"}
)

// parseSlotChoice resolves a booking answer to an option index.
// ok is false when the answer names no option; declined reports a refusal.
func parseSlotChoice(answer string, slots []scheduling.CandidateSlot) (idx int, ok bool, declined bool) {
	lower := strings.ToLower(strings.TrimSpace(answer))
	for i, slot := range slots {
		if label := strings.ToLower(slot.DisplayLabel); label != "" && strings.Contains(lower, label) {
			return i, true, false
		}
	}
	words := tokenSet(lower)
	for i := range slots {
		if i >= len(ordinalWords) {
			break
		}
		if _, hit := words[ordinalWords[i]]; hit || strings.Contains(lower, ordinalShort[i]) {
			return i, true, false
		}
	}
	if m := optionNumber.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 && n <= len(slots) {
			return n - 1, true, false
		}
	}
	if declineWords.MatchString(lower) {
		return -1, false, true
	}
	return -1, false, false
}
