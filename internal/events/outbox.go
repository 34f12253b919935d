package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// OutboxEntry is one undelivered event. The outbox aggregate column holds
// the intake session id.
type OutboxEntry struct {
	ID        uuid.UUID
	SessionID string
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type outboxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore writes events in the same database as the audit trail so an
// emergency is never lost between the turn and the broker.
type OutboxStore struct {
	db outboxDB
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithExec(db outboxDB) *OutboxStore {
	if db == nil {
		panic("events: exec required")
	}
	return &OutboxStore{db: db}
}

func (s *OutboxStore) Insert(ctx context.Context, sessionID, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	const query = `
		INSERT INTO outbox (id, aggregate, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.Exec(ctx, query, id, sessionID, eventType, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return id, nil
}

// FetchPending returns the oldest undelivered events first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	const query = `
		SELECT id, aggregate, event_type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkDelivered reports false when another deliverer got there first.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

type outboxSource interface {
	FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
}

// Deliverer forwards emergency events from the outbox to the broker. It
// drains once on start so an event raised just before a restart is not held
// for a full interval. Events for one session are delivered in the order
// they were raised: after a failure, the rest of that session's batch waits
// for the next tick. Events older than the stale threshold are logged at
// warn level when they finally go out.
type Deliverer struct {
	store      outboxSource
	handler    DeliveryHandler
	logger     *logging.Logger
	batchSize  int32
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Deliverer{
		handler:    handler,
		logger:     logger,
		batchSize:  25,
		interval:   2 * time.Second,
		staleAfter: time.Minute,
		now:        time.Now,
	}
	if store != nil {
		d.store = store
	}
	return d
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithStaleAfter sets the age at which a delivered emergency counts as late.
func (d *Deliverer) WithStaleAfter(age time.Duration) *Deliverer {
	if age > 0 {
		d.staleAfter = age
	}
	return d
}

// Start blocks until ctx is cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	d.drain(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) int {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("emergency outbox fetch failed", "error", err)
		return 0
	}
	held := make(map[string]bool)
	delivered := 0
	for _, entry := range entries {
		if held[entry.SessionID] {
			continue
		}
		if err := d.handler.Handle(ctx, entry); err != nil {
			held[entry.SessionID] = true
			d.logger.Error("emergency delivery failed", "error", err, "event_id", entry.ID, "session_id", entry.SessionID)
			continue
		}
		ok, err := d.store.MarkDelivered(ctx, entry.ID)
		if err != nil {
			d.logger.Error("failed to mark emergency delivered", "error", err, "event_id", entry.ID)
			continue
		}
		if !ok {
			continue
		}
		delivered++
		lag := d.now().Sub(entry.CreatedAt)
		if !entry.CreatedAt.IsZero() && lag > d.staleAfter {
			d.logger.Warn("emergency delivered late", "event_id", entry.ID, "session_id", entry.SessionID, "lag_ms", lag.Milliseconds())
		} else {
			d.logger.Debug("emergency delivered", "event_id", entry.ID, "session_id", entry.SessionID, "type", entry.Type)
		}
	}
	return delivered
}
