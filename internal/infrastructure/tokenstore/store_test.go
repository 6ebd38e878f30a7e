package tokenstore

import (
	"context"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/infrastructure/cache"
	"hazardsync/internal/infrastructure/persistence/sqlite/model"
)

func setupStore(t *testing.T) (*Store, *cache.SQLiteCache) {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "tokens.sqlite")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.KV{}))

	kv := cache.NewSQLiteCache(db)
	return New(kv), kv
}

func TestStoreRoundTripsBinaryToken(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())

	token := hazard.Token{0x00, 0xff, 0x10, 0x00}
	require.NoError(t, store.Set(ctx, token))

	got, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestStoreEmptyTokenClearsCursor(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, hazard.Token("abc")))
	require.NoError(t, store.Set(ctx, nil))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestStoreReportsCorruptToken(t *testing.T) {
	store, kv := setupStore(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, tokenKey, "%%%not-base64"))

	_, err := store.Get(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrEncoding)
}
