package ports

import (
	"context"

	"hazardsync/internal/domain/hazard"
)

// TokenStore persists the change feed cursor across restarts. Get returns
// an empty token when nothing has been stored yet.
type TokenStore interface {
	Get(ctx context.Context) (hazard.Token, error)
	Set(ctx context.Context, token hazard.Token) error
}
