package tokenstore

import (
	"context"
	"encoding/base64"
	"errors"

	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/ports"
)

const tokenKey = "server_change_token"

// Store keeps the change feed token in the shared key-value cache.
type Store struct {
	cache ports.Cache
}

var _ ports.TokenStore = (*Store)(nil)

func New(cache ports.Cache) *Store {
	return &Store{cache: cache}
}

func (s *Store) Get(ctx context.Context) (hazard.Token, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	raw, found, err := s.cache.Get(ctx, tokenKey)
	if err != nil {
		return nil, errs.Wrap(err, "load change token")
	}
	if !found || raw == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errs.Mark(errs.Wrap(err, "decode change token"), errs.ErrEncoding)
	}
	return hazard.Token(decoded), nil
}

// Set stores token. Storing an empty token forgets the cursor.
func (s *Store) Set(ctx context.Context, token hazard.Token) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	if token.IsEmpty() {
		if err := s.cache.Delete(ctx, tokenKey); err != nil {
			return errs.Wrap(err, "clear change token")
		}
		return nil
	}

	if err := s.cache.Set(ctx, tokenKey, base64.StdEncoding.EncodeToString(token)); err != nil {
		return errs.Wrap(err, "save change token")
	}
	return nil
}
