package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermowatch/internal/history"
	"thermowatch/internal/hotcache"
	"thermowatch/internal/model"
	"thermowatch/internal/storage"
)

// gatedCache zdrží zápis do cache, dokud test nepustí release.
// Simuluje pomalý proces (sensor-bridge), který commitnul, ale cache
// aktualizuje až po ostatních.
type gatedCache struct {
	LatestCache
	entered chan struct{}
	release chan struct{}
}

func newGatedCache(inner LatestCache) *gatedCache {
	return &gatedCache{LatestCache: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedCache) SetLatest(ctx context.Context, r model.Reading) (bool, error) {
	close(g.entered)
	<-g.release
	return g.LatestCache.SetLatest(ctx, r)
}

// sharedEnv jsou dvě instance služby (dva procesy) nad stejnou DB a Valkey.
type sharedEnv struct {
	store   storage.Store
	cache   *hotcache.Redis
	gate    *gatedCache
	slow    *Service
	fast    *Service
	history *history.Service
}

func newSharedEnv(t *testing.T) sharedEnv {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLite(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(store.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	cache := hotcache.NewRedis(rdb)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := newGatedCache(cache)
	return sharedEnv{
		store:   store,
		cache:   cache,
		gate:    gate,
		slow:    NewService(store, gate, nil, logger),
		fast:    NewService(store, cache, nil, logger),
		history: history.NewService(store, cache, 0, logger),
	}
}

func (e sharedEnv) recordSlow(t *testing.T, value float64) <-chan model.Reading {
	t.Helper()
	done := make(chan model.Reading, 1)
	go func() {
		r, err := e.slow.Record(context.Background(), value)
		assert.NoError(t, err)
		done <- r
	}()
	<-e.gate.entered
	return done
}

func TestLateCacheWriteAfterClearFromOtherProcess(t *testing.T) {
	env := newSharedEnv(t)
	ctx := context.Background()

	// Měření je commitnuté, zápis do cache ještě neproběhl.
	done := env.recordSlow(t, 20)

	n, err := env.fast.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	close(env.gate.release)
	<-done

	latest, err := env.history.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "cleared reading served from cache")

	cached, err := env.cache.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, cached)

	page, err := env.history.List(ctx, model.PageQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount)

	// Nové měření po smazání se do cache dostane.
	r, err := env.fast.Record(ctx, 22)
	require.NoError(t, err)
	latest, err = env.history.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, r.ID, latest.ID)
}

func TestOutOfOrderCacheWritesKeepNewest(t *testing.T) {
	env := newSharedEnv(t)
	ctx := context.Background()

	done := env.recordSlow(t, 10)

	newer, err := env.fast.Record(ctx, 30)
	require.NoError(t, err)

	close(env.gate.release)
	older := <-done
	require.Less(t, older.ID, newer.ID)

	latest, err := env.history.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newer.ID, latest.ID)
	assert.Equal(t, 30.0, latest.Value)

	fromDB, err := env.store.LatestReading(ctx)
	require.NoError(t, err)
	assert.Equal(t, fromDB.ID, latest.ID)
}
