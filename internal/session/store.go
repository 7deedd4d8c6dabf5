// Package session persists chat sessions: one open conversation per phone
// and lab, advanced one turn at a time under a row lock and a version check.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/labbit-23/labbit-main-sub000/internal/conversation"
)

var (
	// ErrStaleSession means another turn advanced the session first.
	ErrStaleSession = errors.New("session: stale version")
	ErrNotFound     = errors.New("session: not found")
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Session is one conversation with a phone number.
type Session struct {
	ID                uuid.UUID
	Phone             string
	LabID             string
	State             conversation.State
	Context           conversation.Context
	Status            conversation.Status
	Version           int64
	LastUserMessageAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Frozen reports whether automated replies are suspended for this session.
func (s *Session) Frozen() bool {
	return s != nil && s.Status == conversation.StatusHandoff
}

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

const sessionColumns = `id, phone, lab_id, current_state, context, status, version, last_user_message_at, created_at, updated_at`

// GetOrCreate returns the open (active or handoff) session for phone within
// labID, locked for the rest of q's transaction, creating one in START when
// none exists. Conversations with different labs never share a session.
func (s *Store) GetOrCreate(ctx context.Context, q Querier, phone, labID string) (*Session, error) {
	if q == nil {
		q = s.pool
	}
	phone = strings.TrimSpace(phone)
	labID = strings.TrimSpace(labID)
	if phone == "" || labID == "" {
		return nil, errors.New("session: phone and lab required")
	}
	sess, err := s.selectOpen(ctx, q, phone, labID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	row := q.QueryRow(ctx, `
		INSERT INTO chat_sessions (id, phone, lab_id, current_state, context, status, version)
		VALUES ($1, $2, $3, $4, '{}'::jsonb, $5, 0)
		ON CONFLICT (lab_id, phone) WHERE status IN ('active', 'handoff') DO NOTHING
		RETURNING `+sessionColumns,
		uuid.New(), phone, labID, string(conversation.StateStart), string(conversation.StatusActive))
	sess, err = scanSession(row)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	// A concurrent turn created it between our select and insert.
	return s.selectOpen(ctx, q, phone, labID)
}

func (s *Store) selectOpen(ctx context.Context, q Querier, phone, labID string) (*Session, error) {
	row := q.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM chat_sessions
		WHERE phone = $1 AND lab_id = $2 AND status IN ('active', 'handoff')
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, phone, labID)
	sess, err := scanSession(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	return sess, err
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess    Session
		state   string
		status  string
		rawCtx  []byte
		lastMsg *time.Time
	)
	err := row.Scan(&sess.ID, &sess.Phone, &sess.LabID, &state, &rawCtx, &status, &sess.Version, &lastMsg, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// Unknown states are kept as-is; the engine answers them with the main menu.
	sess.State, _ = conversation.ParseState(state)
	sess.Status = conversation.Status(status)
	sess.LastUserMessageAt = lastMsg
	sess.Context = conversation.Context{}
	if len(rawCtx) > 0 {
		if err := json.Unmarshal(rawCtx, &sess.Context); err != nil {
			return nil, fmt.Errorf("decode context: %w", err)
		}
	}
	return &sess, nil
}

// Update persists a transition if the session is still at version. It
// refreshes the activity timestamps and never touches status.
func (s *Store) Update(ctx context.Context, q Querier, id uuid.UUID, version int64, state conversation.State, convCtx conversation.Context) error {
	if q == nil {
		q = s.pool
	}
	if !state.Valid() {
		return fmt.Errorf("session: invalid state %q", state)
	}
	if convCtx == nil {
		convCtx = conversation.Context{}
	}
	raw, err := json.Marshal(convCtx)
	if err != nil {
		return fmt.Errorf("session: marshal context: %w", err)
	}
	tag, err := q.Exec(ctx, `
		UPDATE chat_sessions
		SET current_state = $3,
			context = $4,
			version = version + 1,
			last_user_message_at = now(),
			updated_at = now()
		WHERE id = $1 AND version = $2
	`, id, version, string(state), raw)
	if err != nil {
		return fmt.Errorf("session: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleSession
	}
	return nil
}

// HandoffToHuman freezes the session for an operator. The state is forced to
// HUMAN_HANDOVER regardless of what the engine returned.
func (s *Store) HandoffToHuman(ctx context.Context, q Querier, id uuid.UUID) error {
	if q == nil {
		q = s.pool
	}
	tag, err := q.Exec(ctx, `
		UPDATE chat_sessions
		SET status = $2,
			current_state = $3,
			version = version + 1,
			updated_at = now()
		WHERE id = $1
	`, id, string(conversation.StatusHandoff), string(conversation.StateHumanHandover))
	if err != nil {
		return fmt.Errorf("session: handoff: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Resolve closes the open session of phone within labID so the next message
// starts a fresh conversation. Operators call this from outside the bot.
func (s *Store) Resolve(ctx context.Context, labID, phone string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chat_sessions
		SET status = $3, version = version + 1, updated_at = now()
		WHERE phone = $1 AND lab_id = $2 AND status IN ('active', 'handoff')
	`, strings.TrimSpace(phone), strings.TrimSpace(labID), string(conversation.StatusCompleted))
	if err != nil {
		return fmt.Errorf("session: resolve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
