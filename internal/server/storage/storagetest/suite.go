// Package storagetest holds the behavioural suite every storage.Store
// backend must pass.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicktext/internal/server/storage"
)

// NewShare builds a valid share expiring in ttl (negative for already expired).
func NewShare(code string, ttl time.Duration) *storage.Share {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &storage.Share{
		Code:        code,
		Content:     "content of " + code,
		ContentType: storage.ContentText,
		MaxViews:    storage.UnlimitedViews,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// Run exercises store. newStore must return an empty store each call.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	t.Run("create then get returns an equal copy", func(t *testing.T) {
		st := newStore(t)
		share := NewShare("AB12", time.Hour)
		share.ContentType = storage.ContentCode
		share.Language = "go"
		share.PasswordHash = "$2a$04$hash"
		share.MaxViews = 3
		share.OneTimeAccess = true

		require.NoError(t, st.Create(ctx, share))

		got, err := st.Get(ctx, "AB12")
		require.NoError(t, err)
		assert.Equal(t, share.Code, got.Code)
		assert.Equal(t, share.Content, got.Content)
		assert.Equal(t, share.ContentType, got.ContentType)
		assert.Equal(t, share.Language, got.Language)
		assert.Equal(t, share.PasswordHash, got.PasswordHash)
		assert.Equal(t, share.MaxViews, got.MaxViews)
		assert.Equal(t, share.OneTimeAccess, got.OneTimeAccess)
		assert.False(t, got.IsAccessed)
		assert.Zero(t, got.Views)
		assert.True(t, share.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", share.CreatedAt, got.CreatedAt)
		assert.True(t, share.ExpiresAt.Equal(got.ExpiresAt), "expires_at %v != %v", share.ExpiresAt, got.ExpiresAt)
	})

	t.Run("create rejects a duplicate code", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, NewShare("DUPE", time.Hour)))

		err := st.Create(ctx, NewShare("DUPE", time.Hour))
		assert.ErrorIs(t, err, storage.ErrCodeCollision)
	})

	t.Run("get missing code", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Get(ctx, "NONE")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("get returns expired records", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, NewShare("OLD1", -time.Minute)))

		got, err := st.Get(ctx, "OLD1")
		require.NoError(t, err)
		assert.Equal(t, "OLD1", got.Code)
	})

	t.Run("mutating a fetched copy does not touch the store", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, NewShare("COPY", time.Hour)))

		got, err := st.Get(ctx, "COPY")
		require.NoError(t, err)
		got.Views = 42

		again, err := st.Get(ctx, "COPY")
		require.NoError(t, err)
		assert.Zero(t, again.Views)
	})

	t.Run("save persists mutable fields only", func(t *testing.T) {
		st := newStore(t)
		original := NewShare("SAVE", time.Hour)
		require.NoError(t, st.Create(ctx, original))

		got, err := st.Get(ctx, "SAVE")
		require.NoError(t, err)
		from := got.Revision()
		got.Content = "changed"
		got.Views = 2
		got.IsAccessed = true
		got.MaxViews = 99
		got.ExpiresAt = got.ExpiresAt.Add(24 * time.Hour)
		require.NoError(t, st.Save(ctx, got, from))

		saved, err := st.Get(ctx, "SAVE")
		require.NoError(t, err)
		assert.Equal(t, "changed", saved.Content)
		assert.Equal(t, 2, saved.Views)
		assert.True(t, saved.IsAccessed)
		assert.Equal(t, storage.UnlimitedViews, saved.MaxViews)
		assert.True(t, original.ExpiresAt.Equal(saved.ExpiresAt))
	})

	t.Run("save does not resurrect a deleted record", func(t *testing.T) {
		st := newStore(t)
		share := NewShare("GONE", time.Hour)
		require.NoError(t, st.Create(ctx, share))
		require.NoError(t, st.Delete(ctx, "GONE"))

		from := share.Revision()
		share.Views = 1
		assert.ErrorIs(t, st.Save(ctx, share, from), storage.ErrNotFound)

		_, err := st.Get(ctx, "GONE")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("save rejects a stale copy", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, NewShare("CAS1", time.Hour)))

		first, err := st.Get(ctx, "CAS1")
		require.NoError(t, err)
		second, err := st.Get(ctx, "CAS1")
		require.NoError(t, err)

		from := first.Revision()
		first.Views++
		first.IsAccessed = true
		require.NoError(t, st.Save(ctx, first, from))

		from = second.Revision()
		second.Views++
		second.Content = "stale"
		assert.ErrorIs(t, st.Save(ctx, second, from), storage.ErrConflict)

		stored, err := st.Get(ctx, "CAS1")
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Views)
		assert.True(t, stored.IsAccessed)
		assert.Equal(t, "content of CAS1", stored.Content)
	})

	t.Run("save with the current revision succeeds repeatedly", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, NewShare("CAS2", time.Hour)))

		for want := 1; want <= 3; want++ {
			got, err := st.Get(ctx, "CAS2")
			require.NoError(t, err)
			from := got.Revision()
			got.Views++
			require.NoError(t, st.Save(ctx, got, from))
			assert.Equal(t, want, got.Views)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, NewShare("DEL1", time.Hour)))

		assert.NoError(t, st.Delete(ctx, "DEL1"))
		assert.NoError(t, st.Delete(ctx, "DEL1"))
		assert.NoError(t, st.Delete(ctx, "NEVR"))
	})

	t.Run("code is reusable after delete", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, NewShare("REUS", time.Hour)))
		require.NoError(t, st.Delete(ctx, "REUS"))
		assert.NoError(t, st.Create(ctx, NewShare("REUS", time.Hour)))
	})

	t.Run("sweep removes only expired records", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, NewShare("EXP1", -time.Hour)))
		require.NoError(t, st.Create(ctx, NewShare("EXP2", -time.Minute)))
		require.NoError(t, st.Create(ctx, NewShare("LIVE", time.Hour)))

		removed, err := st.SweepExpired(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		_, err = st.Get(ctx, "EXP1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = st.Get(ctx, "LIVE")
		assert.NoError(t, err)

		removed, err = st.SweepExpired(ctx, time.Now())
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	t.Run("stats aggregate all records", func(t *testing.T) {
		st := newStore(t)
		code := NewShare("STA1", time.Hour)
		code.ContentType = storage.ContentCode
		require.NoError(t, st.Create(ctx, code))
		require.NoError(t, st.Create(ctx, NewShare("STA2", time.Hour)))
		require.NoError(t, st.Create(ctx, NewShare("STA3", -time.Minute)))

		code.Views = 4
		require.NoError(t, st.Save(ctx, code, storage.Revision{}))

		stats, err := st.Stats(ctx, time.Now())
		require.NoError(t, err)
		assert.EqualValues(t, 3, stats.TotalShares)
		assert.EqualValues(t, 2, stats.ActiveShares)
		assert.EqualValues(t, 4, stats.TotalViews)
		assert.EqualValues(t, 1, stats.ContentTypes[storage.ContentCode])
		assert.EqualValues(t, 2, stats.ContentTypes[storage.ContentText])
	})

	t.Run("concurrent creates of one code admit exactly one", func(t *testing.T) {
		st := newStore(t)

		const workers = 16
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			created  int
			collided int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := st.Create(ctx, NewShare("RACE", time.Hour))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created++
				case assert.ErrorIs(t, err, storage.ErrCodeCollision):
					collided++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		assert.Equal(t, workers-1, collided)
	})

	t.Run("ping", func(t *testing.T) {
		st := newStore(t)
		assert.NoError(t, st.Ping(ctx))
	})
}
