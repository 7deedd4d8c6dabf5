package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by pgxpool.Pool and pgx.Tx so the same store calls
// can run inside or outside a turn's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Direction classifies a message log row.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionStatus   Direction = "status"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionInbound, DirectionOutbound, DirectionStatus:
		return true
	}
	return false
}

// LogRecord is one append-only row of the chat message log.
type LogRecord struct {
	MessageID  string
	Phone      string
	LabID      string
	Text       string
	Direction  Direction
	RawPayload []byte
}

// Store persists the chat message log in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// HasMessage reports whether messageID is already logged. It is a cheap
// short-circuit only; InsertMessage decides duplicates.
func (s *Store) HasMessage(ctx context.Context, messageID string) (bool, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, nil
	}
	var exists int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM chat_messages WHERE message_id = $1 LIMIT 1`, messageID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("messaging: check message: %w", err)
	}
	return true, nil
}

// InsertMessage appends rec to the log. inserted is false when a row with
// the same message id already exists; the unique constraint on message_id
// makes that the authoritative duplicate signal.
func (s *Store) InsertMessage(ctx context.Context, q Querier, rec LogRecord) (inserted bool, err error) {
	if q == nil {
		q = s.pool
	}
	if strings.TrimSpace(rec.MessageID) == "" {
		return false, errors.New("messaging: message id required")
	}
	if !rec.Direction.Valid() {
		return false, fmt.Errorf("messaging: invalid direction %q", rec.Direction)
	}
	raw := rawJSON(rec.RawPayload)
	tag, err := q.Exec(ctx, `
		INSERT INTO chat_messages (message_id, phone, lab_id, text, direction, raw_payload)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT (message_id) DO NOTHING
	`, rec.MessageID, rec.Phone, rec.LabID, rec.Text, string(rec.Direction), raw)
	if err != nil {
		return false, fmt.Errorf("messaging: insert message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// rawJSON keeps audit payloads valid for the jsonb column; non-JSON bodies
// are stored as a JSON string.
func rawJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return b
	}
	quoted, err := json.Marshal(string(b))
	if err != nil {
		return nil
	}
	return quoted
}
