package embedcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/repo"
	"github.com/xxxsen/ctxkit/internal/testutil"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) ModelName() string { return "test/model" }

type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	return nil, false, errors.New("db down")
}

func (brokenStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	return errors.New("db down")
}

func TestLRUCachesByTaskType(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	e := WrapLRU(inner, 8, time.Minute)

	v1, err := e.Embed(ctx, "hello", "query")
	require.NoError(t, err)
	v1[0] = 99
	v2, err := e.Embed(ctx, "hello", "query")
	require.NoError(t, err)
	require.Equal(t, float32(5), v2[0])
	require.Equal(t, 1, inner.calls)

	_, err = e.Embed(ctx, "hello", "document")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
	require.Equal(t, "test/model", e.ModelName())
}

func TestLRUDisabled(t *testing.T) {
	inner := &countingEmbedder{}
	require.Same(t, inner, WrapLRU(inner, 0, time.Minute))
}

func TestDBCache(t *testing.T) {
	ctx := context.Background()
	store := repo.NewEmbeddingCacheRepo(testutil.OpenTestDB(t))
	inner := &countingEmbedder{}

	first := WrapDB(inner, store)
	_, err := first.Embed(ctx, "select 1", "document")
	require.NoError(t, err)

	second := WrapDB(&countingEmbedder{err: errors.New("offline")}, store)
	v, err := second.Embed(ctx, "select 1", "document")
	require.NoError(t, err)
	require.Equal(t, []float32{8, 1}, v)
	require.Equal(t, 1, inner.calls)
}

func TestDBCacheStoreFailureFallsThrough(t *testing.T) {
	inner := &countingEmbedder{}
	e := WrapDB(inner, brokenStore{})
	v, err := e.Embed(context.Background(), "abc", "query")
	require.NoError(t, err)
	require.Equal(t, []float32{3, 1}, v)
	require.Equal(t, 1, inner.calls)
}
