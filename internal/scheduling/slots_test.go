package scheduling

import (
	"math/rand"
	"testing"
	"time"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.October, day, hour, minute, 0, 0, time.UTC)
}

func TestGenerateSkipsWeekendToMonday(t *testing.T) {
	g := NewGenerator()
	saturday := at(17, 10, 0)
	tuesdayNight := at(20, 20, 0)

	slots := g.Generate(saturday, tuesdayNight, nil)
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	want := []time.Time{at(19, 9, 0), at(19, 9, 30), at(19, 10, 0)}
	for i, slot := range slots {
		if !slot.Start.Equal(want[i]) {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], slot.Start)
		}
	}
	if slots[0].Start.Weekday() != time.Monday {
		t.Fatalf("expected Monday, got %s", slots[0].Start.Weekday())
	}
}

func TestGenerateRejectsBusyOverlap(t *testing.T) {
	g := NewGenerator()
	tests := []struct {
		name  string
		busy  []Interval
		first time.Time
	}{
		{
			name:  "busy first hour",
			busy:  []Interval{{Start: at(19, 9, 0), End: at(19, 10, 0)}},
			first: at(19, 10, 0),
		},
		{
			name:  "adjacent busy block does not conflict",
			busy:  []Interval{{Start: at(19, 9, 30), End: at(19, 10, 0)}},
			first: at(19, 9, 0),
		},
		{
			name:  "partial overlap rejects the slot",
			busy:  []Interval{{Start: at(19, 9, 15), End: at(19, 9, 20)}},
			first: at(19, 9, 30),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := g.Generate(at(19, 9, 0), at(20, 18, 0), tt.busy)
			if len(slots) == 0 {
				t.Fatalf("expected slots")
			}
			if !slots[0].Start.Equal(tt.first) {
				t.Fatalf("expected first slot %s, got %s", tt.first, slots[0].Start)
			}
		})
	}
}

func TestGenerateAfterHoursMovesToNextMorning(t *testing.T) {
	g := NewGenerator()
	slots := g.Generate(at(19, 18, 0), at(21, 18, 0), nil)
	if len(slots) == 0 || !slots[0].Start.Equal(at(20, 9, 0)) {
		t.Fatalf("expected Tuesday 09:00, got %+v", slots)
	}

	early := g.Generate(at(20, 6, 30), at(21, 18, 0), nil)
	if len(early) == 0 || !early[0].Start.Equal(at(20, 9, 0)) {
		t.Fatalf("expected same-day 09:00, got %+v", early)
	}
}

func TestGenerateUnalignedStartStaysInsideHours(t *testing.T) {
	g := NewGenerator()
	slots := g.Generate(at(19, 17, 45), at(21, 18, 0), nil)
	if len(slots) == 0 || !slots[0].Start.Equal(at(20, 9, 0)) {
		t.Fatalf("expected Tuesday 09:00 instead of a slot past 18:00, got %+v", slots)
	}

	late := g.Generate(at(19, 17, 15), at(21, 18, 0), nil)
	if len(late) < 2 || !late[0].Start.Equal(at(19, 17, 15)) || !late[1].Start.Equal(at(20, 9, 0)) {
		t.Fatalf("expected 17:15 then Tuesday 09:00, got %+v", late)
	}
	for _, slot := range append(slots, late...) {
		closing := time.Date(slot.Start.Year(), slot.Start.Month(), slot.Start.Day(), 18, 0, 0, 0, time.UTC)
		if slot.End.After(closing) {
			t.Fatalf("slot %s-%s runs past closing", slot.Start, slot.End)
		}
	}
}

func TestGenerateFullyBookedReturnsEmpty(t *testing.T) {
	g := NewGenerator()
	busy := []Interval{{Start: at(19, 0, 0), End: at(24, 0, 0)}}
	if slots := g.Generate(at(19, 9, 0), at(23, 18, 0), busy); len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
	if slots := g.Generate(at(20, 9, 0), at(19, 9, 0), nil); len(slots) != 0 {
		t.Fatalf("expected empty result for inverted range")
	}
}

func TestCandidatesStopAtScanBound(t *testing.T) {
	g := NewGenerator()
	candidates := g.Candidates(at(19, 9, 0), at(30, 18, 0), nil)
	if len(candidates) != DefaultMaxCandidates {
		t.Fatalf("expected %d candidates, got %d", DefaultMaxCandidates, len(candidates))
	}
	last := candidates[len(candidates)-1]
	if !last.Start.Equal(at(19, 13, 30)) {
		t.Fatalf("expected scan to stop at 13:30, got %s", last.Start)
	}
}

func TestGeneratedSlotsAreValid(t *testing.T) {
	g := NewGenerator()
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 50; run++ {
		start := at(12, 0, 0).Add(time.Duration(rng.Intn(14*24*60)) * time.Minute)
		end := start.Add(time.Duration(1+rng.Intn(10)) * 24 * time.Hour)
		var busy []Interval
		for i := 0; i < rng.Intn(12); i++ {
			bs := start.Add(time.Duration(rng.Intn(7*24*60)) * time.Minute)
			busy = append(busy, Interval{Start: bs, End: bs.Add(time.Duration(15+rng.Intn(180)) * time.Minute)})
		}

		for _, slot := range g.Generate(start, end, busy) {
			if wd := slot.Start.Weekday(); wd == time.Saturday || wd == time.Sunday {
				t.Fatalf("run %d: weekend slot %s", run, slot.Start)
			}
			if h := slot.Start.Hour(); h < 9 || h >= 18 {
				t.Fatalf("run %d: slot outside working hours %s", run, slot.Start)
			}
			if slot.End.Sub(slot.Start) != SlotDuration {
				t.Fatalf("run %d: unexpected duration %s", run, slot.End.Sub(slot.Start))
			}
			for _, b := range busy {
				if slot.Start.Before(b.End) && slot.End.After(b.Start) {
					t.Fatalf("run %d: slot %s overlaps busy %s-%s", run, slot.Start, b.Start, b.End)
				}
			}
			if slot.DisplayLabel == "" {
				t.Fatalf("run %d: missing label", run)
			}
		}
	}
}

func TestDefaultSlotsNextBusinessDay(t *testing.T) {
	g := NewGenerator()
	tests := []struct {
		name string
		now  time.Time
		day  int
	}{
		{"weekday", at(19, 15, 0), 20},
		{"friday rolls to monday", at(23, 15, 0), 26},
		{"saturday rolls to monday", at(17, 8, 0), 19},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := g.DefaultSlots(tt.now)
			if len(slots) != 3 {
				t.Fatalf("expected 3 default slots, got %d", len(slots))
			}
			for i, hour := range []int{10, 12, 14} {
				if !slots[i].Start.Equal(at(tt.day, hour, 0)) {
					t.Fatalf("slot %d: expected %s, got %s", i, at(tt.day, hour, 0), slots[i].Start)
				}
				if slots[i].End.Sub(slots[i].Start) != SlotDuration {
					t.Fatalf("slot %d: unexpected duration", i)
				}
			}
		})
	}
}

func TestNextHalfHour(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{at(19, 10, 0), at(19, 10, 0)},
		{at(19, 10, 7), at(19, 10, 30)},
		{at(19, 10, 30), at(19, 10, 30)},
		{at(19, 10, 31), at(19, 11, 0)},
		{at(19, 23, 45), at(20, 0, 0)},
		{at(19, 10, 0).Add(time.Second), at(19, 10, 30)},
	}
	for _, tt := range tests {
		if got := NextHalfHour(tt.in); !got.Equal(tt.want) {
			t.Fatalf("NextHalfHour(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLabelFor(t *testing.T) {
	slot := at(19, 14, 30)
	tests := []struct {
		lang string
		want string
	}{
		{"en", "Mon Oct 19 at 2:30 PM"},
		{"", "Mon Oct 19 at 2:30 PM"},
		{"es-MX", "lun 19 oct, 14:30"},
		{"fr", "lun. 19 oct. à 14h30"},
		{"xx", "Mon Oct 19 at 2:30 PM"},
	}
	for _, tt := range tests {
		if got := LabelFor(tt.lang)(slot); got != tt.want {
			t.Fatalf("LabelFor(%q) = %q, want %q", tt.lang, got, tt.want)
		}
	}
}
