package lab

import (
	"context"
	"errors"
	"strings"
)

// Resolver picks the lab an inbound message belongs to: the owner of the
// receiving business number, else the deployment's default lab. The default
// only applies when the number is absent or owned by no lab; a message to
// another lab's number is never answered from the default lab's number.
type Resolver struct {
	source       Source
	defaultLabID string
}

func NewResolver(source Source, defaultLabID string) *Resolver {
	return &Resolver{source: source, defaultLabID: strings.TrimSpace(defaultLabID)}
}

// Resolve returns ErrNotFound when the addressed lab is not usable, or when
// no lab owns the number and there is no usable default.
func (r *Resolver) Resolve(ctx context.Context, recipientID string) (*Config, error) {
	if recipientID = strings.TrimSpace(recipientID); recipientID != "" {
		cfg, err := r.source.GetByPhoneNumberID(ctx, recipientID)
		switch {
		case err == nil:
			return usable(cfg)
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	if r.defaultLabID == "" {
		return nil, ErrNotFound
	}
	cfg, err := r.source.Get(ctx, r.defaultLabID)
	if err != nil {
		return nil, err
	}
	return usable(cfg)
}

func usable(cfg *Config) (*Config, error) {
	if !cfg.Usable() {
		return nil, ErrNotFound
	}
	return cfg, nil
}
