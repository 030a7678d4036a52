package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]*Response
	err       error
}

func (f *fakeFetcher) Fetch(_ context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL.String())
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[req.URL.String()]; ok {
		return resp, nil
	}
	return &Response{Status: http.StatusOK, Body: []byte("payload"), Source: SourceNetwork}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, 0)
}

func newTestOrchestrator(t *testing.T, fetcher Fetcher, opts Options) (*Orchestrator, *RedisStore) {
	t.Helper()
	store := newTestStore(t)
	return New(store, fetcher, discardLogger(), opts), store
}

func getRequest(t *testing.T, raw string) Request {
	t.Helper()
	return Request{Method: http.MethodGet, URL: mustURL(t, raw)}
}

// A tile request that fails on network with no cache entry must come back
// as a 404 with an empty body, never as an error.
func TestTileMissOfflineReturnsPlaceholder(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("network unreachable")}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10"})

	resp := o.Fetch(context.Background(), getRequest(t, "https://app.example.com/maps/x/y.pbf"))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Empty(t, resp.Body)
	assert.Equal(t, SourceFallback, resp.Source)
}

func TestTileMissPlaceholderMode(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("network unreachable")}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10", TileFallback: FallbackPlaceholder})

	resp := o.Fetch(context.Background(), getRequest(t, "https://app.example.com/maps/x/y.pbf"))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body), "<svg")
	assert.Equal(t, SourceFallback, resp.Source)
}

// A miss-then-fill sequence issues exactly one network request; the filled
// entry then serves subsequent fetches without touching the network again.
func TestTileMissFillsCacheOnce(t *testing.T) {
	fetcher := &fakeFetcher{}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10"})
	ctx := context.Background()

	first := o.Fetch(ctx, getRequest(t, "https://app.example.com/maps/x/y.pbf"))
	assert.Equal(t, SourceNetwork, first.Source)
	assert.Equal(t, 1, fetcher.callCount())

	second := o.Fetch(ctx, getRequest(t, "https://app.example.com/maps/x/y.pbf"))
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, "payload", string(second.Body))
	assert.Equal(t, 1, fetcher.callCount())
}

// Install populates the app-shell entries that cache-only and page-fallback
// serving depend on. Afterwards the style document resolves without network
// and a failed navigation reaches the offline page.
func TestInstallSeedsStyleDocumentAndOfflinePage(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]*Response{
		"https://app.example.com/offline-map-style.json": {Status: http.StatusOK, Body: []byte(`{"layers":[]}`), Source: SourceNetwork},
		"https://app.example.com/offline":                {Status: http.StatusOK, Body: []byte("<html>offline</html>"), Source: SourceNetwork},
	}}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10"})
	ctx := context.Background()

	require.NoError(t, o.Install(ctx, "https://app.example.com/"))

	// Style document is cache-only; it must now hit without any fetch.
	fetcher.err = errors.New("network unreachable")
	style := o.Fetch(ctx, getRequest(t, "https://app.example.com/offline-map-style.json"))
	assert.Equal(t, http.StatusOK, style.Status)
	assert.Equal(t, SourceCache, style.Source)

	// A failed navigation with no exact entry lands on the offline page.
	page := o.Fetch(ctx, Request{
		Method:   http.MethodGet,
		URL:      mustURL(t, "https://app.example.com/navigation"),
		Navigate: true,
	})
	assert.Equal(t, http.StatusOK, page.Status)
	assert.Equal(t, "<html>offline</html>", string(page.Body))
}

func TestInstallFailsOnUpstreamError(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]*Response{
		"https://app.example.com/offline-map-style.json": {Status: http.StatusBadGateway, Source: SourceNetwork},
	}}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10"})

	err := o.Install(context.Background(), "https://app.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

// Cache-busting query parameters must not fragment the tile cache.
func TestTileQueryStringSharesEntry(t *testing.T) {
	fetcher := &fakeFetcher{}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10"})
	ctx := context.Background()

	o.Fetch(ctx, getRequest(t, "https://app.example.com/maps/x/y.pbf?v=1"))
	resp := o.Fetch(ctx, getRequest(t, "https://app.example.com/maps/x/y.pbf?v=2"))
	assert.Equal(t, SourceCache, resp.Source)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestStyleDocumentCacheOnly(t *testing.T) {
	fetcher := &fakeFetcher{}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10"})
	ctx := context.Background()

	// Not seeded: hard failure, the network is never consulted.
	resp := o.Fetch(ctx, getRequest(t, "https://app.example.com/offline-map-style.json"))
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Zero(t, fetcher.callCount())

	seeded := &Response{Status: http.StatusOK, Body: []byte(`{"version":8}`)}
	require.NoError(t, o.Seed(ctx, PartitionAppShell, "/offline-map-style.json", seeded))

	resp = o.Fetch(ctx, getRequest(t, "https://app.example.com/offline-map-style.json"))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, `{"version":8}`, string(resp.Body))
	assert.Zero(t, fetcher.callCount())
}

func TestStaticAssetNonOKNotCached(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]*Response{
		"https://app.example.com/static/gone.js": {Status: http.StatusGone, Body: []byte("gone")},
	}}
	o, store := newTestOrchestrator(t, fetcher, Options{Version: "v10"})
	ctx := context.Background()

	resp := o.Fetch(ctx, getRequest(t, "https://app.example.com/static/gone.js"))
	// Original status is carried, body is synthesized empty.
	assert.Equal(t, http.StatusGone, resp.Status)
	assert.Empty(t, resp.Body)

	cached, err := store.Match(ctx, PartitionStaticAssets.Versioned("v10"), "/static/gone.js")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestLocationDataNetworkFirst(t *testing.T) {
	fetcher := &fakeFetcher{}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10"})
	ctx := context.Background()

	// Online: network wins and populates the data partition.
	resp := o.Fetch(ctx, getRequest(t, "https://app.example.com/location-data/cities.json"))
	assert.Equal(t, SourceNetwork, resp.Source)

	// Offline: the cached copy serves.
	fetcher.err = errors.New("offline")
	resp = o.Fetch(ctx, getRequest(t, "https://app.example.com/location-data/cities.json"))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "payload", string(resp.Body))
	assert.Equal(t, SourceCache, resp.Source)

	// Offline with nothing cached: explicit typed 404.
	resp = o.Fetch(ctx, getRequest(t, "https://app.example.com/location-data/unseen.json"))
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Empty(t, resp.Body)
}

func TestPageFallbackChain(t *testing.T) {
	fetcher := &fakeFetcher{}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10"})
	ctx := context.Background()

	nav := Request{Method: http.MethodGet, URL: mustURL(t, "https://app.example.com/navigation"), Navigate: true}

	// Population is fire-and-forget, so the entry appears shortly after the
	// response returns.
	resp := o.Fetch(ctx, nav)
	assert.Equal(t, SourceNetwork, resp.Source)
	assert.Eventually(t, func() bool {
		cached := o.match(ctx, PartitionRoutes.Versioned("v10"), "/navigation")
		return cached != nil
	}, time.Second, 10*time.Millisecond)

	fetcher.err = errors.New("offline")
	resp = o.Fetch(ctx, nav)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, SourceCache, resp.Source)

	// Never-visited page falls back to the offline page when seeded.
	other := Request{Method: http.MethodGet, URL: mustURL(t, "https://app.example.com/somewhere"), Navigate: true}
	resp = o.Fetch(ctx, other)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)

	offlinePage := &Response{Status: http.StatusOK, Body: []byte("<html>offline</html>")}
	require.NoError(t, o.Seed(ctx, PartitionAppShell, "/offline", offlinePage))
	resp = o.Fetch(ctx, other)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "<html>offline</html>", string(resp.Body))
}

func TestGenericCallBestEffort(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("offline")}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10"})

	resp := o.Fetch(context.Background(), getRequest(t, "https://app.example.com/api/profile"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Empty(t, resp.Body)
}

func TestActivateDropsStaleGenerations(t *testing.T) {
	fetcher := &fakeFetcher{}
	o, store := newTestOrchestrator(t, fetcher, Options{Version: "v10"})
	ctx := context.Background()

	stale := &Response{Status: http.StatusOK, Body: []byte("old")}
	require.NoError(t, store.Put(ctx, PartitionVectorTiles.Versioned("v9"), "/maps/a.pbf", stale))
	require.NoError(t, store.Put(ctx, PartitionAppShell.Versioned("v9"), "/offline", stale))
	require.NoError(t, o.Seed(ctx, PartitionVectorTiles, "/maps/b.pbf", stale))

	require.NoError(t, o.Activate(ctx))

	buckets, err := store.Buckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{PartitionVectorTiles.Versioned("v10")}, buckets)

	kept, err := store.Match(ctx, PartitionVectorTiles.Versioned("v10"), "/maps/b.pbf")
	require.NoError(t, err)
	require.NotNil(t, kept)
}

func TestBypassFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("offline")}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10"})

	req := Request{Method: http.MethodPost, URL: mustURL(t, "https://app.example.com/api/orders")}
	resp := o.Fetch(context.Background(), req)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
}

// A request without a URL must still resolve to a response instead of
// panicking inside the fetcher.
func TestFetchNilURL(t *testing.T) {
	fetcher := &fakeFetcher{}
	o, _ := newTestOrchestrator(t, fetcher, Options{Version: "v10"})

	resp := o.Fetch(context.Background(), Request{Method: http.MethodGet})
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, SourceFallback, resp.Source)
	assert.Zero(t, fetcher.callCount())
}
