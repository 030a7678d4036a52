package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecomap-navigation/internal/cache"
	"ecomap-navigation/internal/config"
	"ecomap-navigation/internal/geo"
	"ecomap-navigation/internal/gis/geocoding"
	"ecomap-navigation/internal/gis/routing"
	"ecomap-navigation/internal/offline"
	"ecomap-navigation/internal/route"
	"ecomap-navigation/internal/search"
	"ecomap-navigation/internal/ws"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type upstreams struct {
	geocoding *httptest.Server
	routing   *httptest.Server
	tiles     *httptest.Server
}

func newGeocodingUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/reverse" {
			_, _ = w.Write([]byte(`{"display_name": "Lyon, France", "name": "Lyon", "type": "city", "class": "place", "lon": "4.8357", "lat": "45.7640"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"display_name": "Lyon, France", "name": "Lyon", "type": "city", "class": "place", "lon": "4.8357", "lat": "45.7640"}]`))
	}))
}

func newRoutingUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code": "Ok", "routes": [{
			"distance": 3000,
			"duration": 240,
			"geometry": {"coordinates": [[4.8357, 45.7640], [4.8357, 45.7700], [4.8420, 45.7700]]},
			"legs": []
		}]}`))
	}))
}

func newTilesUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write([]byte("tile-bytes"))
	}))
}

func newTestServer(t *testing.T, up upstreams) *Server {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := offline.NewStore(offline.NewRedisKV(client), discardLogger())
	orchestrator := cache.New(
		cache.NewRedisStore(client, 0),
		cache.NewHTTPFetcher(time.Second),
		discardLogger(),
		cache.Options{},
	)

	geocoder := geocoding.NewClient(up.geocoding.URL)
	router := routing.NewClient(up.routing.URL)
	searcher := search.NewSearcher(geocoder, store, discardLogger())

	cfg := &config.Config{TileBaseURL: up.tiles.URL}
	manager := ws.NewManager(context.Background(), discardLogger(), searcher)

	return NewServer(cfg, manager, searcher, router, store, orchestrator, discardLogger())
}

func defaultUpstreams(t *testing.T) upstreams {
	t.Helper()
	up := upstreams{
		geocoding: newGeocodingUpstream(t),
		routing:   newRoutingUpstream(t),
		tiles:     newTilesUpstream(t),
	}
	t.Cleanup(up.geocoding.Close)
	t.Cleanup(up.routing.Close)
	t.Cleanup(up.tiles.Close)
	return up
}

func TestSearchHandler(t *testing.T) {
	s := newTestServer(t, defaultUpstreams(t))

	req := httptest.NewRequest(http.MethodGet, "/search?q=Lyon", nil)
	rec := httptest.NewRecorder()
	s.searchHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []offline.LocationSuggestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Lyon", got[0].Name)
	assert.Equal(t, "City", got[0].Category)
}

func TestSearchHandlerMissingQuery(t *testing.T) {
	s := newTestServer(t, defaultUpstreams(t))

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()
	s.searchHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReverseHandler(t *testing.T) {
	s := newTestServer(t, defaultUpstreams(t))

	req := httptest.NewRequest(http.MethodGet, "/reverse?lon=4.83&lat=45.76", nil)
	rec := httptest.NewRecorder()
	s.reverseHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got offline.LocationSuggestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Lyon", got.Name)
}

func TestReverseHandlerBadCoordinates(t *testing.T) {
	s := newTestServer(t, defaultUpstreams(t))

	req := httptest.NewRequest(http.MethodGet, "/reverse?lon=east&lat=45.76", nil)
	rec := httptest.NewRecorder()
	s.reverseHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRememberHandler(t *testing.T) {
	s := newTestServer(t, defaultUpstreams(t))

	body, _ := json.Marshal(offline.LocationSuggestion{ID: "1", Name: "Lyon"})
	req := httptest.NewRequest(http.MethodPost, "/locations", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.rememberHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, s.Store.RecentSearches(), 1)
}

func TestRouteHandler(t *testing.T) {
	s := newTestServer(t, defaultUpstreams(t))

	req := httptest.NewRequest(http.MethodGet, "/route?start=Lyon&end=Marseille", nil)
	rec := httptest.NewRecorder()
	s.routeHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got offline.CachedRoute
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "3.0 km", got.Info.Distance)
	assert.Equal(t, "4 min", got.Info.Duration)
	assert.NotEmpty(t, got.Route.Segments)
	assert.NotEmpty(t, got.Steps)

	// The computed route is now reusable offline.
	_, ok := s.Store.GetRoute("Lyon", "Marseille")
	assert.True(t, ok)
}

func TestRouteHandlerOfflineFallback(t *testing.T) {
	up := defaultUpstreams(t)
	s := newTestServer(t, up)

	cached := offline.CachedRoute{
		Start: "Lyon", End: "Marseille",
		Route: route.New([]geo.Point{{Lon: 4.8, Lat: 45.7}, {Lon: 5.4, Lat: 43.3}}, 300000, 10800),
		Info:  offline.RouteInfo{Distance: "300.0 km", Duration: "180 min"},
	}
	require.NoError(t, s.Store.SaveRoute(context.Background(), cached))

	// Routing provider goes down; the cached route must still be served.
	up.routing.Close()

	req := httptest.NewRequest(http.MethodGet, "/route?start=lyon&end=MARSEILLE", nil)
	rec := httptest.NewRecorder()
	s.routeHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got offline.CachedRoute
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "300.0 km", got.Info.Distance)
}

func TestRouteHandlerUnavailableOffline(t *testing.T) {
	up := defaultUpstreams(t)
	s := newTestServer(t, up)
	up.routing.Close()

	req := httptest.NewRequest(http.MethodGet, "/route?start=Lyon&end=Marseille", nil)
	rec := httptest.NewRecorder()
	s.routeHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouteHandlerMissingParams(t *testing.T) {
	s := newTestServer(t, defaultUpstreams(t))

	req := httptest.NewRequest(http.MethodGet, "/route?start=Lyon", nil)
	rec := httptest.NewRecorder()
	s.routeHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTilesHandlerServesFromCacheWhenUpstreamDies(t *testing.T) {
	up := defaultUpstreams(t)
	s := newTestServer(t, up)

	mux := http.NewServeMux()
	mux.Handle("GET /tiles/{path...}", s.tilesHandler())

	first := httptest.NewRecorder()
	mux.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/tiles/12/2138/1447.pbf", nil))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "tile-bytes", first.Body.String())
	assert.Equal(t, "*", first.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "public, max-age=31536000, immutable", first.Header().Get("Cache-Control"))

	up.tiles.Close()

	second := httptest.NewRecorder()
	mux.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/tiles/12/2138/1447.pbf", nil))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "tile-bytes", second.Body.String())
	assert.Equal(t, "*", second.Header().Get("Access-Control-Allow-Origin"))

	// An unavailable tile comes back as a plain miss, not an immutable one.
	miss := httptest.NewRecorder()
	mux.ServeHTTP(miss, httptest.NewRequest(http.MethodGet, "/tiles/12/0/0.pbf", nil))
	require.Equal(t, http.StatusNotFound, miss.Code)
	assert.Empty(t, miss.Header().Get("Cache-Control"))
}
