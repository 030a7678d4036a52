package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ecomap-navigation/internal/geo"
	"ecomap-navigation/internal/gis/geocoding"
	"ecomap-navigation/internal/offline"
)

// Geocoder is the online place lookup used when the network is reachable.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]geocoding.Place, error)
	Reverse(ctx context.Context, p geo.Point) (*geocoding.Place, error)
}

// Searcher answers place queries online first and falls back to the
// offline store when the geocoder is unreachable.
type Searcher struct {
	geocoder Geocoder
	store    *offline.Store
	logger   *slog.Logger
}

func NewSearcher(geocoder Geocoder, store *offline.Store, logger *slog.Logger) *Searcher {
	return &Searcher{
		geocoder: geocoder,
		store:    store,
		logger:   logger,
	}
}

// Search returns suggestions for the query. Online results win; on geocoder
// failure the offline store serves whatever it has cached.
func (s *Searcher) Search(ctx context.Context, query string) []offline.LocationSuggestion {
	if query == "" {
		return nil
	}

	places, err := s.geocoder.Search(ctx, query)
	if err != nil {
		s.logger.Warn("geocoder unavailable, serving offline suggestions", slog.Any("error", err))
		return s.store.SearchLocations(query)
	}

	suggestions := make([]offline.LocationSuggestion, 0, len(places))
	for _, p := range places {
		suggestions = append(suggestions, toSuggestion(p))
	}
	return suggestions
}

// Remember records a chosen suggestion in both the recent searches and the
// offline location cache.
func (s *Searcher) Remember(ctx context.Context, loc offline.LocationSuggestion) error {
	if err := s.store.SaveRecentSearch(ctx, loc); err != nil {
		return fmt.Errorf("failed to save recent search: %w", err)
	}
	if err := s.store.SaveLocation(ctx, loc); err != nil {
		return fmt.Errorf("failed to save location: %w", err)
	}
	return nil
}

// ReverseGeocode names the place at a coordinate. When the geocoder is
// unreachable it falls back to the nearest cached location.
func (s *Searcher) ReverseGeocode(ctx context.Context, p geo.Point) (offline.LocationSuggestion, error) {
	place, err := s.geocoder.Reverse(ctx, p)
	if err == nil {
		return toSuggestion(*place), nil
	}

	s.logger.Warn("reverse geocoding unavailable, trying cached locations", slog.Any("error", err))
	if loc, ok := s.store.Nearest(p); ok {
		return loc, nil
	}
	return offline.LocationSuggestion{}, fmt.Errorf("failed to reverse geocode: %w", err)
}

// FindCoordinates resolves a place name to coordinates, preferring the
// offline cache and falling back to the geocoder.
func (s *Searcher) FindCoordinates(ctx context.Context, name string) (geo.Point, error) {
	if loc, ok := s.store.FindByName(name); ok {
		return loc.Coordinates, nil
	}

	places, err := s.geocoder.Search(ctx, name)
	if err != nil {
		return geo.Point{}, fmt.Errorf("failed to geocode %q: %w", name, err)
	}
	if len(places) == 0 {
		return geo.Point{}, fmt.Errorf("no results for %q", name)
	}
	return places[0].Coordinates, nil
}

func toSuggestion(p geocoding.Place) offline.LocationSuggestion {
	return offline.LocationSuggestion{
		ID:          uuid.New().String(),
		DisplayName: p.DisplayName,
		Name:        p.Name,
		Type:        p.Type,
		Coordinates: p.Coordinates,
		Category:    p.Category,
	}
}
