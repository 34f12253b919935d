// Package availability serves the doctor directory and free/busy data the
// booking planner searches.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/symptom-intake/internal/scheduling"
	"github.com/wolfman30/symptom-intake/internal/triage"
)

// ErrUnknownDoctor is returned for free/busy lookups on doctors that are
// not in the directory.
var ErrUnknownDoctor = errors.New("availability: unknown doctor")

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresCalendar reads doctors and busy intervals from Postgres.
type PostgresCalendar struct {
	db querier
}

func NewPostgresCalendar(pool *pgxpool.Pool) *PostgresCalendar {
	if pool == nil {
		panic("availability: pgx pool required")
	}
	return &PostgresCalendar{db: pool}
}

func newPostgresCalendarWithQuerier(q querier) *PostgresCalendar {
	if q == nil {
		panic("availability: querier required")
	}
	return &PostgresCalendar{db: q}
}

func (c *PostgresCalendar) Doctors(ctx context.Context) ([]triage.Doctor, error) {
	rows, err := c.db.Query(ctx, `
		SELECT id, name
		FROM doctors
		WHERE active
		ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("availability: list doctors: %w", err)
	}
	defer rows.Close()

	var doctors []triage.Doctor
	for rows.Next() {
		var d triage.Doctor
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("availability: scan doctor: %w", err)
		}
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

// FreeBusy returns the busy intervals that overlap [start, end).
func (c *PostgresCalendar) FreeBusy(ctx context.Context, doctorID string, start, end time.Time) ([]scheduling.Interval, error) {
	rows, err := c.db.Query(ctx, `
		SELECT starts_at, ends_at
		FROM busy_intervals
		WHERE doctor_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at`, doctorID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("availability: free/busy for %s: %w", doctorID, err)
	}
	defer rows.Close()

	var busy []scheduling.Interval
	for rows.Next() {
		var iv scheduling.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("availability: scan interval: %w", err)
		}
		busy = append(busy, iv)
	}
	return busy, rows.Err()
}

// MemoryCalendar is an in-process calendar used in development and tests.
type MemoryCalendar struct {
	mu      sync.RWMutex
	doctors []triage.Doctor
	busy    map[string][]scheduling.Interval
}

func NewMemoryCalendar(doctors ...triage.Doctor) *MemoryCalendar {
	return &MemoryCalendar{
		doctors: append([]triage.Doctor(nil), doctors...),
		busy:    make(map[string][]scheduling.Interval),
	}
}

// DefaultDoctors seeds the development calendar.
func DefaultDoctors() []triage.Doctor {
	return []triage.Doctor{
		{ID: "dr-okafor", Name: "Dr. Okafor"},
		{ID: "dr-lindqvist", Name: "Dr. Lindqvist"},
	}
}

// AddBusy records a busy interval for a known doctor.
func (c *MemoryCalendar) AddBusy(doctorID string, start, end time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.known(doctorID) {
		return fmt.Errorf("%w: %s", ErrUnknownDoctor, doctorID)
	}
	c.busy[doctorID] = append(c.busy[doctorID], scheduling.Interval{Start: start, End: end})
	sort.Slice(c.busy[doctorID], func(i, j int) bool {
		return c.busy[doctorID][i].Start.Before(c.busy[doctorID][j].Start)
	})
	return nil
}

func (c *MemoryCalendar) Doctors(ctx context.Context) ([]triage.Doctor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]triage.Doctor(nil), c.doctors...), nil
}

func (c *MemoryCalendar) FreeBusy(ctx context.Context, doctorID string, start, end time.Time) ([]scheduling.Interval, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.known(doctorID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDoctor, doctorID)
	}
	var out []scheduling.Interval
	for _, iv := range c.busy[doctorID] {
		if iv.Overlaps(start, end) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (c *MemoryCalendar) known(doctorID string) bool {
	for _, d := range c.doctors {
		if d.ID == doctorID {
			return true
		}
	}
	return false
}
