package storage_test

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"quicktext/internal/server/storage"
	"quicktext/internal/server/storage/storagetest"
)

// TestRedisStore needs a disposable Redis database; it flushes it between runs.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Store {
		st, err := storage.NewRedisStore(&redis.Options{Addr: addr, DB: 15})
		require.NoError(t, err)
		require.NoError(t, st.Client().FlushDB(context.Background()).Err())
		t.Cleanup(func() { st.Close() })
		return st
	})
}
