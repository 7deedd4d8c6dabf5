package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/labbit-23/labbit-main-sub000/internal/observability/metrics"
	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

// ErrPermanent marks a delivery failure that retrying cannot fix.
var ErrPermanent = errors.New("events: permanent delivery failure")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() []error {
	return []error{e.err, ErrPermanent}
}

// Permanent wraps err so the deliverer gives up on the entry immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// OutboxEntry is one planned side effect of a conversation turn.
type OutboxEntry struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	LabID     string
	Phone     string
	Kind      string
	Payload   json.RawMessage
	Seq       int
	Attempts  int
	CreatedAt time.Time
}

// NewEntry is an effect waiting to be written.
type NewEntry struct {
	Kind    string
	Payload any
}

// DeliveryHandler performs one outbox effect.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OutboxStore persists effects for reliable delivery.
type OutboxStore struct {
	pool  Querier
	lease time.Duration
}

// NewOutboxStore returns a store whose claims last lease; a claimed entry
// is invisible to other deliverers until it expires.
func NewOutboxStore(pool Querier, lease time.Duration) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	return &OutboxStore{pool: pool, lease: lease}
}

const entryColumns = `id, session_id, lab_id, phone, kind, payload, seq, attempts, created_at`

// InsertEffects writes a turn's effects in order within q's transaction.
// With claim set the rows are leased to the caller so it can deliver them
// inline right after commit without racing the background deliverer.
func (s *OutboxStore) InsertEffects(ctx context.Context, q Querier, sessionID uuid.UUID, labID, phone string, effects []NewEntry, claim bool) ([]OutboxEntry, error) {
	if q == nil {
		q = s.pool
	}
	var lockedFor *float64
	if claim {
		secs := s.lease.Seconds()
		lockedFor = &secs
	}
	entries := make([]OutboxEntry, 0, len(effects))
	now := time.Now().UTC()
	for i, eff := range effects {
		data, err := json.Marshal(eff.Payload)
		if err != nil {
			return nil, fmt.Errorf("events: marshal payload: %w", err)
		}
		entry := OutboxEntry{
			ID:        uuid.New(),
			SessionID: sessionID,
			LabID:     labID,
			Phone:     phone,
			Kind:      eff.Kind,
			Payload:   data,
			Seq:       i,
			CreatedAt: now,
		}
		query := `
			INSERT INTO chat_outbox (id, session_id, lab_id, phone, kind, payload, seq, created_at, locked_until)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now() + make_interval(secs => $9))
		`
		if _, err := q.Exec(ctx, query, entry.ID, sessionID, labID, phone, eff.Kind, data, i, now, lockedFor); err != nil {
			return nil, fmt.Errorf("events: insert outbox: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// FetchPending claims up to limit undelivered entries that still have
// attempts left, oldest first. An entry is only eligible once every earlier
// entry of its session is delivered or given up.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error) {
	query := `
		UPDATE chat_outbox
		SET locked_until = now() + make_interval(secs => $3)
		WHERE id IN (
			SELECT o.id FROM chat_outbox o
			WHERE o.delivered_at IS NULL
				AND o.failed_at IS NULL
				AND o.attempts < $1
				AND (o.locked_until IS NULL OR o.locked_until < now())
				AND NOT EXISTS (
					SELECT 1 FROM chat_outbox p
					WHERE p.session_id = o.session_id
						AND p.delivered_at IS NULL
						AND p.failed_at IS NULL
						AND (p.created_at, p.seq) < (o.created_at, o.seq)
				)
			ORDER BY o.created_at, o.seq
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + entryColumns
	rows, err := s.pool.Query(ctx, query, maxAttempts, limit, s.lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.LabID, &entry.Phone, &entry.Kind, &payload, &entry.Seq, &entry.Attempts, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries, nil
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE chat_outbox
		SET delivered_at = now(), locked_until = NULL
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkAttemptFailed records a failed attempt and schedules the next one
// after retryIn. It reports whether the entry ran out of attempts.
func (s *OutboxStore) MarkAttemptFailed(ctx context.Context, id uuid.UUID, cause error, retryIn time.Duration, maxAttempts int) (exhausted bool, err error) {
	query := `
		UPDATE chat_outbox
		SET attempts = attempts + 1,
			last_error = $2,
			locked_until = now() + make_interval(secs => $3),
			failed_at = CASE WHEN attempts + 1 >= $4 THEN now() ELSE NULL END
		WHERE id = $1
		RETURNING failed_at IS NOT NULL
	`
	if err := s.pool.QueryRow(ctx, query, id, errorText(cause), retryIn.Seconds(), maxAttempts).Scan(&exhausted); err != nil {
		return false, fmt.Errorf("events: mark attempt failed: %w", err)
	}
	return exhausted, nil
}

// MarkFailed gives up on an entry.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	query := `
		UPDATE chat_outbox
		SET attempts = attempts + 1,
			last_error = $2,
			failed_at = now(),
			locked_until = NULL
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, errorText(cause)); err != nil {
		return fmt.Errorf("events: mark failed: %w", err)
	}
	return nil
}

// Release drops the claim on entries so any deliverer may pick them up.
func (s *OutboxStore) Release(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE chat_outbox SET locked_until = NULL WHERE id = ANY($1) AND delivered_at IS NULL`
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("events: release: %w", err)
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type outboxBackend interface {
	FetchPending(ctx context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, cause error, retryIn time.Duration, maxAttempts int) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
	Release(ctx context.Context, ids []uuid.UUID) error
}

// Deliverer drains the outbox and invokes the handler. Entries of one
// session are delivered in order; a failure holds back the rest of that
// session's entries until the next pass.
type Deliverer struct {
	store       outboxBackend
	handler     DeliveryHandler
	logger      *logging.Logger
	metrics     *metrics.MessagingMetrics
	batchSize   int32
	interval    time.Duration
	maxAttempts int
	backoff     time.Duration
}

func NewDeliverer(store outboxBackend, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:       store,
		handler:     handler,
		logger:      logger,
		batchSize:   25,
		interval:    2 * time.Second,
		maxAttempts: 5,
		backoff:     5 * time.Second,
	}
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

func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

func (d *Deliverer) WithBackoff(base time.Duration) *Deliverer {
	if base > 0 {
		d.backoff = base
	}
	return d
}

func (d *Deliverer) WithMetrics(m *metrics.MessagingMetrics) *Deliverer {
	d.metrics = m
	return d
}

const maxPassesPerTick = 10

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Later entries of a session become eligible as earlier ones land.
			for pass := 0; pass < maxPassesPerTick && d.Drain(ctx) > 0; pass++ {
			}
		}
	}
}

// Drain runs one pass over the pending entries and returns how many were
// delivered.
func (d *Deliverer) Drain(ctx context.Context) int {
	entries, err := d.store.FetchPending(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	return d.deliver(ctx, entries)
}

// DeliverNow delivers entries the caller has just written and claimed.
// Entries held back by a failure are released to the background deliverer.
func (d *Deliverer) DeliverNow(ctx context.Context, entries []OutboxEntry) int {
	if d == nil || d.store == nil || d.handler == nil || len(entries) == 0 {
		return 0
	}
	return d.deliver(ctx, entries)
}

func (d *Deliverer) deliver(ctx context.Context, entries []OutboxEntry) int {
	blocked := map[uuid.UUID]bool{}
	var held []uuid.UUID
	delivered := 0
	for _, entry := range entries {
		if blocked[entry.SessionID] {
			held = append(held, entry.ID)
			continue
		}
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.recordFailure(ctx, entry, err)
			blocked[entry.SessionID] = true
			continue
		}
		d.metrics.ObserveOutbox(entry.Kind, "delivered")
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		} else if ok {
			delivered++
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "kind", entry.Kind)
		}
	}
	if err := d.store.Release(ctx, held); err != nil {
		d.logger.Warn("failed to release held outbox entries", "error", err, "count", len(held))
	}
	return delivered
}

func (d *Deliverer) recordFailure(ctx context.Context, entry OutboxEntry, cause error) {
	if errors.Is(cause, ErrPermanent) {
		d.metrics.ObserveOutbox(entry.Kind, "failed")
		d.logger.Error("outbox delivery failed permanently", "error", cause, "event_id", entry.ID, "kind", entry.Kind, "lab_id", entry.LabID)
		if err := d.store.MarkFailed(ctx, entry.ID, cause); err != nil {
			d.logger.Error("failed to mark outbox failed", "error", err, "event_id", entry.ID)
		}
		return
	}
	retryIn := d.backoff * time.Duration(1<<min(entry.Attempts, 6))
	exhausted, err := d.store.MarkAttemptFailed(ctx, entry.ID, cause, retryIn, d.maxAttempts)
	if err != nil {
		d.logger.Error("failed to record outbox attempt", "error", err, "event_id", entry.ID)
		return
	}
	if exhausted {
		d.metrics.ObserveOutbox(entry.Kind, "failed")
		d.logger.Error("outbox delivery gave up", "error", cause, "event_id", entry.ID, "kind", entry.Kind, "attempts", entry.Attempts+1)
		return
	}
	d.metrics.ObserveOutbox(entry.Kind, "retry")
	d.logger.Warn("outbox delivery failed, will retry", "error", cause, "event_id", entry.ID, "kind", entry.Kind, "retry_in", retryIn)
}
