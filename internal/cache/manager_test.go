package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/modulelabs/httpproxy/internal/stats"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	store := NewRedisStoreFromClient(client, "test-cache")
	return NewManager(store, time.Minute, stats.New(nil))
}

func TestManager_PutThenGet_RoundTrips(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	headers := map[string]string{"Accept": "text/html"}
	respHeaders := map[string]string{"Content-Type": "text/html"}
	body := []byte("<html>hello</html>")

	require.NoError(t, m.Put(ctx, "GET", "http://example.com/", headers, 200, respHeaders, body))

	entry, err := m.Get(ctx, "GET", "http://example.com/", headers, nil)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, body, entry.Body)
	require.Equal(t, 200, entry.StatusCode)
}

func TestManager_Get_MissReturnsNil(t *testing.T) {
	m := newTestManager(t)
	entry, err := m.Get(context.Background(), "GET", "http://example.com/missing", nil, nil)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestManager_NonGETNeverCachesOrLooksUp(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "POST", "http://example.com/", nil, 200, nil, []byte("x")))
	entry, err := m.Get(ctx, "POST", "http://example.com/", nil, nil)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestManager_Put_SkipsErrorResponses(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "GET", "http://example.com/broken", nil, 500, nil, []byte("boom")))
	entry, err := m.Get(ctx, "GET", "http://example.com/broken", nil, nil)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestManager_Put_HonorsNoStoreAndNoCache(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	noStore := map[string]string{"Cache-Control": "no-store"}
	require.NoError(t, m.Put(ctx, "GET", "http://example.com/a", nil, 200, noStore, []byte("x")))
	entry, err := m.Get(ctx, "GET", "http://example.com/a", nil, nil)
	require.NoError(t, err)
	require.Nil(t, entry)

	noCache := map[string]string{"Cache-Control": "private, no-cache"}
	require.NoError(t, m.Put(ctx, "GET", "http://example.com/b", nil, 200, noCache, []byte("x")))
	entry, err = m.Get(ctx, "GET", "http://example.com/b", nil, nil)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestManager_Invalidate_BySubstring(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "GET", "http://example.com/keep", nil, 200, nil, []byte("keep")))
	require.NoError(t, m.Put(ctx, "GET", "http://example.com/drop-me", nil, 200, nil, []byte("drop")))

	n, err := m.Invalidate(ctx, "drop-me")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	entry, err := m.Get(ctx, "GET", "http://example.com/keep", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, entry)

	entry, err = m.Get(ctx, "GET", "http://example.com/drop-me", nil, nil)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestManager_Invalidate_All(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "GET", "http://example.com/a", nil, 200, nil, []byte("a")))
	require.NoError(t, m.Put(ctx, "GET", "http://example.com/b", nil, 200, nil, []byte("b")))

	n, err := m.Invalidate(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
