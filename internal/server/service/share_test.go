package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"quicktext/internal/server/notify"
	"quicktext/internal/server/storage"
)

// --- Test helpers ---

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T, publisher notify.Publisher) (*ShareService, *storage.MemoryStore, *clock) {
	t.Helper()
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewShareService(store, publisher, Config{BcryptCost: bcrypt.MinCost}, zap.NewNop())
	svc.now = clk.Now
	return svc, store, clk
}

func mustCreate(t *testing.T, svc *ShareService, req CreateRequest) *CreateResult {
	t.Helper()
	res, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	return res
}

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	storage.Store
	getErr  error
	saveErr error
}

func (f *failingStore) Get(ctx context.Context, code string) (*storage.Share, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.Get(ctx, code)
}

func (f *failingStore) Save(ctx context.Context, share *storage.Share, from storage.Revision) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.Save(ctx, share, from)
}

// lockstepStore holds the first two reads until both have happened, so
// two services sharing it both see the record before either writes.
type lockstepStore struct {
	storage.Store
	reads   atomic.Int32
	arrived sync.WaitGroup
}

func newLockstepStore(inner storage.Store) *lockstepStore {
	l := &lockstepStore{Store: inner}
	l.arrived.Add(2)
	return l
}

func (l *lockstepStore) Get(ctx context.Context, code string) (*storage.Share, error) {
	share, err := l.Store.Get(ctx, code)
	if l.reads.Add(1) <= 2 {
		l.arrived.Done()
		l.arrived.Wait()
	}
	return share, err
}

// --- Scenarios ---

func TestCreateAndRetrieve(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newTestService(t, nil)

	res := mustCreate(t, svc, CreateRequest{Content: "hello", Duration: "15m"})
	assert.Len(t, res.Code, codeLength)
	assert.Equal(t, clk.Now().Add(15*time.Minute), res.ExpiresAt)
	assert.Equal(t, "15m", res.Duration)
	assert.Equal(t, storage.ContentText, res.ContentType)
	assert.False(t, res.HasPassword)

	view, err := svc.Retrieve(ctx, res.Code, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", view.Content)
	assert.Equal(t, 1, view.Views, "views include the current access")

	view, err = svc.Retrieve(ctx, strings.ToLower(res.Code)+" ", "")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Views)
}

func TestRetrieve_OneTimeAccess(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	res := mustCreate(t, svc, CreateRequest{Content: "x", OneTimeAccess: true})
	assert.True(t, res.OneTimeAccess)

	view, err := svc.Retrieve(ctx, res.Code, "")
	require.NoError(t, err)
	assert.Equal(t, "x", view.Content)
	assert.True(t, view.OneTimeAccess)

	_, err = svc.Retrieve(ctx, res.Code, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, res.Code)
	assert.ErrorIs(t, err, storage.ErrNotFound, "consumed share must be deleted")
}

func TestRetrieve_MaxViews(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	res := mustCreate(t, svc, CreateRequest{Content: "x", MaxViews: 2})

	for want := 1; want <= 2; want++ {
		view, err := svc.Retrieve(ctx, res.Code, "")
		require.NoError(t, err)
		assert.Equal(t, want, view.Views)
	}

	_, err := svc.Retrieve(ctx, res.Code, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, res.Code)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRetrieve_Password(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	res := mustCreate(t, svc, CreateRequest{Content: "secret", Password: "pw123"})
	assert.True(t, res.HasPassword)

	_, err := svc.Retrieve(ctx, res.Code, "")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = svc.Retrieve(ctx, res.Code, "wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	view, err := svc.Retrieve(ctx, res.Code, "pw123")
	require.NoError(t, err)
	assert.Equal(t, "secret", view.Content)
	assert.Equal(t, 1, view.Views, "failed attempts must not count as views")
}

func TestRetrieve_Expired(t *testing.T) {
	ctx := context.Background()
	svc, store, clk := newTestService(t, nil)

	res := mustCreate(t, svc, CreateRequest{Content: "x", Duration: "5m", MaxViews: 10})

	clk.Advance(5 * time.Minute)
	_, err := svc.Retrieve(ctx, res.Code, "")
	require.NoError(t, err, "a share is live up to and including its expiry instant")

	clk.Advance(time.Millisecond)
	_, err = svc.Retrieve(ctx, res.Code, "")
	assert.ErrorIs(t, err, ErrExpired)

	_, err = store.Get(ctx, res.Code)
	assert.ErrorIs(t, err, storage.ErrNotFound, "expired share is deleted on discovery")

	_, err = svc.Retrieve(ctx, res.Code, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces content and leaves views alone", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pub := notify.NewMockPublisher(ctrl)
		svc, _, clk := newTestService(t, pub)

		res := mustCreate(t, svc, CreateRequest{Content: "v1", ContentType: "code", Language: "go"})
		_, err := svc.Retrieve(ctx, res.Code, "")
		require.NoError(t, err)

		pub.EXPECT().Publish(gomock.Any(), notify.Event{
			Code:        res.Code,
			Content:     "v2",
			ContentType: storage.ContentCode,
			Timestamp:   clk.Now(),
		}).Return(nil)

		require.NoError(t, svc.Update(ctx, res.Code, "v2"))

		view, err := svc.Retrieve(ctx, res.Code, "")
		require.NoError(t, err)
		assert.Equal(t, "v2", view.Content)
		assert.Equal(t, 2, view.Views)
		assert.Equal(t, res.ExpiresAt, view.ExpiresAt)
	})

	t.Run("publish failure does not fail the update", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pub := notify.NewMockPublisher(ctrl)
		svc, store, _ := newTestService(t, pub)

		res := mustCreate(t, svc, CreateRequest{Content: "v1"})
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		require.NoError(t, svc.Update(ctx, res.Code, "v2"))

		share, err := store.Get(ctx, res.Code)
		require.NoError(t, err)
		assert.Equal(t, "v2", share.Content)
	})

	t.Run("gate failures", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pub := notify.NewMockPublisher(ctrl) // no calls expected
		svc, store, clk := newTestService(t, pub)

		res := mustCreate(t, svc, CreateRequest{Content: "v1", Duration: "5m"})

		assert.ErrorIs(t, svc.Update(ctx, res.Code, ""), ErrInvalidInput)
		assert.ErrorIs(t, svc.Update(ctx, res.Code, strings.Repeat("a", defaultMaxContentSize+1)), ErrContentTooLarge)
		assert.ErrorIs(t, svc.Update(ctx, "ZZZZ", "v2"), ErrNotFound)
		assert.ErrorIs(t, svc.Update(ctx, "bad!", "v2"), ErrInvalidInput)

		clk.Advance(6 * time.Minute)
		assert.ErrorIs(t, svc.Update(ctx, res.Code, "v2"), ErrExpired)
		_, err := store.Get(ctx, res.Code)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

// --- Create details ---

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("validates content", func(t *testing.T) {
		svc, _, _ := newTestService(t, nil)

		_, err := svc.Create(ctx, CreateRequest{})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = svc.Create(ctx, CreateRequest{Content: strings.Repeat("a", defaultMaxContentSize+1)})
		assert.ErrorIs(t, err, ErrContentTooLarge)

		_, err = svc.Create(ctx, CreateRequest{Content: strings.Repeat("a", defaultMaxContentSize)})
		assert.NoError(t, err)
	})

	t.Run("durations", func(t *testing.T) {
		svc, _, clk := newTestService(t, nil)

		tests := []struct {
			in    string
			label string
			want  time.Duration
		}{
			{"5m", "5m", 5 * time.Minute},
			{"15m", "15m", 15 * time.Minute},
			{"30m", "30m", 30 * time.Minute},
			{"1h", "1h", time.Hour},
			{"", "15m", 15 * time.Minute},
			{"2d", "15m", 15 * time.Minute},
		}
		for _, tt := range tests {
			res := mustCreate(t, svc, CreateRequest{Content: "x", Duration: tt.in})
			assert.Equal(t, tt.label, res.Duration, "duration %q", tt.in)
			assert.Equal(t, clk.Now().Add(tt.want), res.ExpiresAt, "duration %q", tt.in)
		}
	})

	t.Run("normalizes max views and stores a hash", func(t *testing.T) {
		svc, store, _ := newTestService(t, nil)

		for _, mv := range []int{0, -5} {
			res := mustCreate(t, svc, CreateRequest{Content: "x", MaxViews: mv, Password: "pw"})
			share, err := store.Get(ctx, res.Code)
			require.NoError(t, err)
			assert.Equal(t, storage.UnlimitedViews, share.MaxViews)
			assert.NotEqual(t, "pw", share.PasswordHash)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(share.PasswordHash), []byte("pw")))
		}
	})

	t.Run("detects language for code only", func(t *testing.T) {
		svc, _, _ := newTestService(t, nil)

		res := mustCreate(t, svc, CreateRequest{Content: "def main():\n    pass", ContentType: "code"})
		assert.Equal(t, "python", res.Language)

		res = mustCreate(t, svc, CreateRequest{Content: "def main():\n    pass"})
		assert.Empty(t, res.Language)

		res = mustCreate(t, svc, CreateRequest{Content: "def main():", ContentType: "code", Language: "ruby"})
		assert.Equal(t, "ruby", res.Language)
	})

	t.Run("retries on collision", func(t *testing.T) {
		svc, _, _ := newTestService(t, nil)
		mustCreate(t, svc, CreateRequest{Content: "x"})

		var calls int
		codes := []string{"AAAA", "AAAA", "BBBB"}
		svc.newCode = func() (string, error) {
			c := codes[calls]
			calls++
			return c, nil
		}

		first := mustCreate(t, svc, CreateRequest{Content: "first"})
		assert.Equal(t, "AAAA", first.Code)

		second := mustCreate(t, svc, CreateRequest{Content: "second"})
		assert.Equal(t, "BBBB", second.Code)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after configured attempts", func(t *testing.T) {
		svc, _, _ := newTestService(t, nil)
		svc.cfg.CodeAttempts = 3

		var calls int
		svc.newCode = func() (string, error) {
			calls++
			return "AAAA", nil
		}
		mustCreate(t, svc, CreateRequest{Content: "x"})

		calls = 0
		_, err := svc.Create(ctx, CreateRequest{Content: "y"})
		assert.ErrorIs(t, err, ErrCodeGenerationExhausted)
		assert.Equal(t, 3, calls)
	})
}

// --- Properties ---

func TestRetrieve_ConcurrentOneTime(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	res := mustCreate(t, svc, CreateRequest{Content: "once", OneTimeAccess: true})

	var ok, notFound atomic.Int32
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			_, err := svc.Retrieve(ctx, res.Code, "")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrNotFound):
				notFound.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(31), notFound.Load())
	assert.Equal(t, 0, svc.locks.len(), "locks are released")
}

func TestRetrieve_ConcurrentMaxViews(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	const limit = 5
	res := mustCreate(t, svc, CreateRequest{Content: "x", MaxViews: limit})

	views := make(chan int, 20)
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			view, err := svc.Retrieve(ctx, res.Code, "")
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			views <- view.Views
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(views)

	seen := make(map[int]bool)
	for v := range views {
		assert.False(t, seen[v], "view count %d reported twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, limit)
	for v := 1; v <= limit; v++ {
		assert.True(t, seen[v], "missing view count %d", v)
	}
}

func TestRetrieve_SharedStoreAcrossInstances(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"one-time", CreateRequest{Content: "x", OneTimeAccess: true}},
		{"single view", CreateRequest{Content: "x", MaxViews: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, store, clk := newTestService(t, nil)
			res := mustCreate(t, first, tt.req)

			shared := newLockstepStore(store)
			first.store = shared
			second := NewShareService(shared, nil, Config{BcryptCost: bcrypt.MinCost}, zap.NewNop())
			second.now = clk.Now

			var ok, notFound atomic.Int32
			var g errgroup.Group
			for _, svc := range []*ShareService{first, second} {
				svc := svc
				g.Go(func() error {
					_, err := svc.Retrieve(ctx, res.Code, "")
					switch {
					case err == nil:
						ok.Add(1)
					case errors.Is(err, ErrNotFound):
						notFound.Add(1)
					default:
						return err
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			assert.Equal(t, int32(1), ok.Load())
			assert.Equal(t, int32(1), notFound.Load())

			_, err := store.Get(ctx, res.Code)
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestRetrieve_RetriesAfterConflict(t *testing.T) {
	ctx := context.Background()
	first, store, clk := newTestService(t, nil)
	res := mustCreate(t, first, CreateRequest{Content: "x", MaxViews: 3})

	shared := newLockstepStore(store)
	first.store = shared
	second := NewShareService(shared, nil, Config{BcryptCost: bcrypt.MinCost}, zap.NewNop())
	second.now = clk.Now

	views := make(chan int, 2)
	var g errgroup.Group
	for _, svc := range []*ShareService{first, second} {
		svc := svc
		g.Go(func() error {
			view, err := svc.Retrieve(ctx, res.Code, "")
			if err != nil {
				return err
			}
			views <- view.Views
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(views)

	var got []int
	for v := range views {
		got = append(got, v)
	}
	assert.ElementsMatch(t, []int{1, 2}, got)

	share, err := store.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, 2, share.Views)
}

func TestUpdate_KeepsConcurrentViews(t *testing.T) {
	ctx := context.Background()
	svc, store, clk := newTestService(t, nil)
	res := mustCreate(t, svc, CreateRequest{Content: "v1"})

	shared := newLockstepStore(store)
	svc.store = shared
	reader := NewShareService(shared, nil, Config{BcryptCost: bcrypt.MinCost}, zap.NewNop())
	reader.now = clk.Now

	var g errgroup.Group
	g.Go(func() error { return svc.Update(ctx, res.Code, "v2") })
	g.Go(func() error {
		_, err := reader.Retrieve(ctx, res.Code, "")
		return err
	})
	require.NoError(t, g.Wait())

	share, err := store.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, "v2", share.Content)
	assert.Equal(t, 1, share.Views, "the update must not overwrite a recorded view")
}

func TestRetrieve_ConflictExhausted(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)
	res := mustCreate(t, svc, CreateRequest{Content: "x"})

	svc.store = &failingStore{Store: store, saveErr: storage.ErrConflict}
	_, err := svc.Retrieve(ctx, res.Code, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.False(t, IsGateFailure(err))
}

func TestRetrieve_SaveRacesDeletion(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)
	res := mustCreate(t, svc, CreateRequest{Content: "x"})

	svc.store = &failingStore{Store: store, saveErr: storage.ErrNotFound}
	_, err := svc.Retrieve(ctx, res.Code, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetrieve_InfrastructureFailure(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)
	res := mustCreate(t, svc, CreateRequest{Content: "x"})

	svc.store = &failingStore{Store: store, getErr: errors.New("connection refused")}
	_, err := svc.Retrieve(ctx, res.Code, "")
	require.Error(t, err)
	assert.False(t, IsGateFailure(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRetrieve_InvalidCode(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	for _, code := range []string{"", "ABC", "ABCDE", "AB-D", "ÄBCD"} {
		_, err := svc.Retrieve(context.Background(), code, "")
		assert.ErrorIs(t, err, ErrInvalidInput, "code %q", code)
	}
}

func TestCheckAccess(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	res := mustCreate(t, svc, CreateRequest{Content: "x", Password: "pw", OneTimeAccess: true})

	_, err := svc.CheckAccess(ctx, res.Code, "")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	share, err := svc.CheckAccess(ctx, res.Code, "pw")
	require.NoError(t, err)
	assert.Equal(t, res.Code, share.Code)

	stored, err := store.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Views)
	assert.False(t, stored.IsAccessed)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	a := mustCreate(t, svc, CreateRequest{Content: "a"})
	mustCreate(t, svc, CreateRequest{Content: "b", ContentType: "code"})
	_, err := svc.Retrieve(ctx, a.Code, "")
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalShares)
	assert.Equal(t, int64(2), stats.ActiveShares)
	assert.Equal(t, int64(1), stats.TotalViews)
	assert.Equal(t, 0.5, stats.AverageViews())
	assert.Equal(t, int64(1), stats.ContentTypes[storage.ContentCode])

	assert.NoError(t, svc.Ping(ctx))
}

func TestIsGateFailure(t *testing.T) {
	for _, err := range gateErrors {
		assert.True(t, IsGateFailure(err))
	}
	assert.True(t, IsGateFailure(ErrInvalidInput))
	assert.False(t, IsGateFailure(errors.New("boom")))
	assert.False(t, IsGateFailure(nil))
}
