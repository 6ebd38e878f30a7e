package ports

import "context"

// Cache defines a generic key-value capability for usecases. Entries live
// until they are overwritten or deleted.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
