package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermowatch/internal/model"
	"thermowatch/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func seededStore(t *testing.T, n int) storage.Store {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLite(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(store.Close)

	at := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		_, err := store.InsertReading(ctx, float64(i), at.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	return store
}

func TestListPagesOfFifteen(t *testing.T) {
	svc := NewService(seededStore(t, 15), nil, 0, discard)
	ctx := context.Background()

	p1, err := svc.List(ctx, model.PageQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	p2, err := svc.List(ctx, model.PageQuery{Page: 2, PageSize: 10, AsOf: p1.AsOf})
	require.NoError(t, err)

	assert.Len(t, p1.Items, 10)
	assert.Len(t, p2.Items, 5)
	assert.Equal(t, int64(15), p1.TotalCount)
	assert.Equal(t, int64(15), p2.TotalCount)
	assert.Equal(t, 14.0, p1.Items[0].Value)
}

func TestListPagesNeverOverlapOrSkip(t *testing.T) {
	svc := NewService(seededStore(t, 23), nil, 0, discard)
	ctx := context.Background()

	full, err := svc.List(ctx, model.PageQuery{Page: 1, PageSize: 100})
	require.NoError(t, err)

	for _, size := range []int{1, 4, 7, 10, 23, 30} {
		var got []int64
		for page := 1; ; page++ {
			p, err := svc.List(ctx, model.PageQuery{Page: page, PageSize: size})
			require.NoError(t, err)
			if len(p.Items) == 0 {
				break
			}
			for _, r := range p.Items {
				got = append(got, r.ID)
			}
		}
		want := make([]int64, 0, len(full.Items))
		for _, r := range full.Items {
			want = append(want, r.ID)
		}
		assert.Equal(t, want, got, "page size %d", size)
	}
}

func TestListDefaultsAndOutOfRange(t *testing.T) {
	svc := NewService(seededStore(t, 3), nil, 0, discard)

	p, err := svc.List(context.Background(), model.PageQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, model.DefaultPageSize, p.PageSize)
	assert.Len(t, p.Items, 3)

	p, err = svc.List(context.Background(), model.PageQuery{Page: 9, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, p.Items)
	assert.Equal(t, int64(3), p.TotalCount)
}

func TestListHugePageIsEmpty(t *testing.T) {
	svc := NewService(seededStore(t, 15), nil, 0, discard)

	p, err := svc.List(context.Background(), model.PageQuery{Page: 4611686018427387905, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, p.Items)
	assert.Equal(t, int64(15), p.TotalCount)
	assert.Equal(t, 4611686018427387905, p.Page)
}

// slowRepo čeká, dokud nevyprší context.
type slowRepo struct{}

func (slowRepo) ListReadings(ctx context.Context, _ model.PageQuery) (model.ReadingPage, error) {
	<-ctx.Done()
	return model.ReadingPage{}, errors.New("interrupted")
}

func (slowRepo) LatestReading(ctx context.Context) (*model.Reading, error) {
	<-ctx.Done()
	return nil, model.StorageErr("latest reading", ctx.Err())
}

func TestListTimeoutIsRetryable(t *testing.T) {
	svc := NewService(slowRepo{}, nil, 10*time.Millisecond, discard)

	_, err := svc.List(context.Background(), model.PageQuery{})
	assert.ErrorIs(t, err, model.ErrQueryTimeout)

	_, err = svc.Latest(context.Background())
	assert.ErrorIs(t, err, model.ErrQueryTimeout)
}

type stubCache struct {
	reading *model.Reading
	err     error
}

func (c stubCache) Latest(context.Context) (*model.Reading, error) { return c.reading, c.err }

func TestLatestPrefersCache(t *testing.T) {
	store := seededStore(t, 2)
	cached := &model.Reading{ID: 42, Value: 99}

	svc := NewService(store, stubCache{reading: cached}, 0, discard)
	r, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), r.ID)

	// Prázdná nebo nedostupná cache => DB.
	for _, c := range []stubCache{{}, {err: errors.New("valkey down")}} {
		svc = NewService(store, c, 0, discard)
		r, err = svc.Latest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1.0, r.Value)
	}
}

func TestLatestEmpty(t *testing.T) {
	svc := NewService(seededStore(t, 0), nil, 0, discard)
	r, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, r)
}
