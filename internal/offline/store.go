package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dhconnelly/rtreego"

	"ecomap-navigation/internal/geo"
	"ecomap-navigation/internal/route"
)

const (
	// MaxRecentSearches bounds the recent-search list.
	MaxRecentSearches = 5
	// MaxLocations bounds the cached-locations list.
	MaxLocations = 100
	// MaxRoutes bounds the cached-routes list.
	MaxRoutes = 20

	// maxSearchResults caps offline suggestion lookups.
	maxSearchResults = 8
)

const (
	keyRecentSearches = "recent-searches"
	keyLocations      = "locations"
	keyRoutes         = "routes"
)

// LocationSuggestion is one cached geocoding result.
type LocationSuggestion struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Coordinates geo.Point `json:"coordinates"`
	Category    string    `json:"category"`
}

// RouteInfo is the user-facing route summary stored with a cached route.
type RouteInfo struct {
	Distance string `json:"distance"`
	Duration string `json:"duration"`
}

// CachedRoute is a previously computed route, reusable offline.
type CachedRoute struct {
	Start string       `json:"start"`
	End   string       `json:"end"`
	Route route.Route  `json:"route"`
	Info  RouteInfo    `json:"info"`
	Steps []route.Step `json:"steps"`
}

func routeKey(start, end string) string {
	return strings.ToLower(start) + "|" + strings.ToLower(end)
}

// Store holds the bounded, persisted collections consulted when the network
// is unavailable: recent searches, cached locations and cached routes. Each
// collection keeps the most recently used entry at the head and evicts from
// the tail on overflow.
type Store struct {
	kv     KV
	logger *slog.Logger

	mu        sync.Mutex
	recent    []LocationSuggestion
	locations []LocationSuggestion
	routes    []CachedRoute
	index     *rtreego.Rtree
}

func NewStore(kv KV, logger *slog.Logger) *Store {
	return &Store{
		kv:     kv,
		logger: logger,
		index:  rtreego.NewTree(2, 2, 8),
	}
}

// Load restores all three collections from storage. Missing keys are not an
// error; the store simply starts empty.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx, keyRecentSearches, &s.recent); err != nil {
		return err
	}
	if err := s.load(ctx, keyLocations, &s.locations); err != nil {
		return err
	}
	if err := s.load(ctx, keyRoutes, &s.routes); err != nil {
		return err
	}

	s.rebuildIndex()
	s.logger.Info("offline store loaded",
		"recent", len(s.recent), "locations", len(s.locations), "routes", len(s.routes))
	return nil
}

func (s *Store) load(ctx context.Context, key string, dst any) error {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// SaveRecentSearch puts the suggestion at the head of the recent list,
// dropping any previous occurrence and evicting past the bound.
func (s *Store) SaveRecentSearch(ctx context.Context, loc LocationSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = promote(s.recent, loc, MaxRecentSearches)
	return s.persist(ctx, keyRecentSearches, s.recent)
}

// SaveLocation caches a location for offline lookup. Re-inserting an
// existing ID moves it to the head without duplicating.
func (s *Store) SaveLocation(ctx context.Context, loc LocationSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locations = promote(s.locations, loc, MaxLocations)
	s.rebuildIndex()
	return s.persist(ctx, keyLocations, s.locations)
}

func promote(list []LocationSuggestion, loc LocationSuggestion, bound int) []LocationSuggestion {
	out := make([]LocationSuggestion, 0, len(list)+1)
	out = append(out, loc)
	for _, item := range list {
		if item.ID == loc.ID {
			continue
		}
		out = append(out, item)
	}
	if len(out) > bound {
		out = out[:bound]
	}
	return out
}

// SearchLocations emulates remote search locally: case-insensitive
// substring match against name and display name.
func (s *Store) SearchLocations(query string) []LocationSuggestion {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	var matches []LocationSuggestion
	for _, loc := range s.locations {
		if strings.Contains(strings.ToLower(loc.Name), q) ||
			strings.Contains(strings.ToLower(loc.DisplayName), q) {
			matches = append(matches, loc)
			if len(matches) == maxSearchResults {
				break
			}
		}
	}
	return matches
}

// FindByName returns the cached location whose name matches exactly
// (case-insensitive).
func (s *Store) FindByName(name string) (LocationSuggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, loc := range s.locations {
		if strings.EqualFold(loc.Name, name) {
			return loc, true
		}
	}
	return LocationSuggestion{}, false
}

// RecentSearches returns a copy of the recent-search list, most recent
// first.
func (s *Store) RecentSearches() []LocationSuggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LocationSuggestion(nil), s.recent...)
}

// Locations returns a copy of the cached locations, most recent first.
func (s *Store) Locations() []LocationSuggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LocationSuggestion(nil), s.locations...)
}

// SaveRoute caches a computed route under its (start, end) pair.
func (s *Store) SaveRoute(ctx context.Context, cached CachedRoute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := routeKey(cached.Start, cached.End)
	out := make([]CachedRoute, 0, len(s.routes)+1)
	out = append(out, cached)
	for _, r := range s.routes {
		if routeKey(r.Start, r.End) == key {
			continue
		}
		out = append(out, r)
	}
	if len(out) > MaxRoutes {
		out = out[:MaxRoutes]
	}
	s.routes = out
	return s.persist(ctx, keyRoutes, s.routes)
}

// GetRoute looks up a cached route by its endpoints.
func (s *Store) GetRoute(start, end string) (CachedRoute, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := routeKey(start, end)
	for _, r := range s.routes {
		if routeKey(r.Start, r.End) == key {
			return r, true
		}
	}
	return CachedRoute{}, false
}

func (s *Store) persist(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("persisting %s: %w", key, err)
	}
	return nil
}

// indexedLocation adapts a suggestion to the spatial index.
type indexedLocation struct {
	loc      LocationSuggestion
	envelope rtreego.Rect
}

func (il *indexedLocation) Bounds() rtreego.Rect {
	return il.envelope
}

func (s *Store) rebuildIndex() {
	index := rtreego.NewTree(2, 2, 8)
	for _, loc := range s.locations {
		rect, err := rtreego.NewRect(
			rtreego.Point{loc.Coordinates.Lat, loc.Coordinates.Lon},
			[]float64{1e-9, 1e-9})
		if err != nil {
			s.logger.Warn("failed to index location", "id", loc.ID, "error", err)
			continue
		}
		index.Insert(&indexedLocation{loc: loc, envelope: rect})
	}
	s.index = index
}

// Nearest returns the cached location closest to p, used as an offline
// substitute for reverse geocoding. The spatial index narrows candidates;
// the exact distance picks the winner.
func (s *Store) Nearest(p geo.Point) (LocationSuggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.locations) == 0 {
		return LocationSuggestion{}, false
	}

	const k = 5
	candidates := s.index.NearestNeighbors(k, rtreego.Point{p.Lat, p.Lon})

	best := LocationSuggestion{}
	bestDist := -1.0
	for _, c := range candidates {
		if c == nil {
			continue
		}
		il := c.(*indexedLocation)
		d := geo.Distance(p, il.loc.Coordinates)
		if bestDist < 0 || d < bestDist {
			best = il.loc
			bestDist = d
		}
	}
	if bestDist < 0 {
		return LocationSuggestion{}, false
	}
	return best, true
}
