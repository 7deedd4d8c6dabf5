package lab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound means no configuration exists for the lab.
var ErrNotFound = errors.New("lab: configuration not found")

// Source loads lab configuration.
type Source interface {
	Get(ctx context.Context, labID string) (*Config, error)
	GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Config, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads lab configuration from Postgres.
type Store struct {
	db rowQuerier
}

func NewStore(db rowQuerier) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, labID string) (*Config, error) {
	labID = strings.TrimSpace(labID)
	if labID == "" {
		return nil, ErrNotFound
	}
	return s.queryOne(ctx, `SELECT id, name, messaging FROM labs WHERE id = $1`, labID)
}

// GetByPhoneNumberID finds the lab that owns a business number.
func (s *Store) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Config, error) {
	phoneNumberID = strings.TrimSpace(phoneNumberID)
	if phoneNumberID == "" {
		return nil, ErrNotFound
	}
	return s.queryOne(ctx, `SELECT id, name, messaging FROM labs WHERE messaging->>'phone_number_id' = $1 LIMIT 1`, phoneNumberID)
}

func (s *Store) queryOne(ctx context.Context, query string, arg string) (*Config, error) {
	var (
		cfg Config
		raw []byte
	)
	if err := s.db.QueryRow(ctx, query, arg).Scan(&cfg.ID, &cfg.Name, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lab: load config: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg.Messaging); err != nil {
			return nil, fmt.Errorf("lab: decode messaging config: %w", err)
		}
	}
	return &cfg, nil
}
