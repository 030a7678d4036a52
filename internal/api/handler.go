package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/matheodrd/httphelper/handler"

	"ecomap-navigation/internal/cache"
	"ecomap-navigation/internal/geo"
	"ecomap-navigation/internal/offline"
)

func (s *Server) searchHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		query := r.URL.Query().Get("q")
		if query == "" {
			return handler.NewErrWithStatus(http.StatusBadRequest, errors.New("missing q"))
		}

		suggestions := s.Searcher.Search(r.Context(), query)
		return writeJSON(w, http.StatusOK, suggestions)
	})
}

func (s *Server) rememberHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var loc offline.LocationSuggestion
		if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
			return handler.NewErrWithStatus(http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		}
		if loc.ID == "" || loc.Name == "" {
			return handler.NewErrWithStatus(http.StatusBadRequest, errors.New("missing id or name"))
		}

		if err := s.Searcher.Remember(r.Context(), loc); err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, err)
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func (s *Server) reverseHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
		if err != nil {
			return handler.NewErrWithStatus(http.StatusBadRequest, fmt.Errorf("invalid lon: %w", err))
		}
		lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
		if err != nil {
			return handler.NewErrWithStatus(http.StatusBadRequest, fmt.Errorf("invalid lat: %w", err))
		}

		loc, err := s.Searcher.ReverseGeocode(r.Context(), geo.Point{Lon: lon, Lat: lat})
		if err != nil {
			return handler.NewErrWithStatus(http.StatusNotFound, err)
		}
		return writeJSON(w, http.StatusOK, loc)
	})
}

func (s *Server) routeHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		start := r.URL.Query().Get("start")
		end := r.URL.Query().Get("end")
		if start == "" || end == "" {
			return handler.NewErrWithStatus(http.StatusBadRequest, errors.New("missing start or end"))
		}

		cached, err := s.calculateRoute(r, start, end)
		if err != nil {
			s.logger.Warn("route calculation failed, trying offline cache",
				"start", start, "end", end, "error", err)

			offlineRoute, ok := s.Store.GetRoute(start, end)
			if !ok {
				return handler.NewErrWithStatus(http.StatusServiceUnavailable,
					errors.New("route not available offline"))
			}
			return writeJSON(w, http.StatusOK, offlineRoute)
		}

		if err := s.Store.SaveRoute(r.Context(), cached); err != nil {
			s.logger.Warn("failed to cache route", "start", start, "end", end, "error", err)
		}
		return writeJSON(w, http.StatusOK, cached)
	})
}

func (s *Server) calculateRoute(r *http.Request, start, end string) (offline.CachedRoute, error) {
	ctx := r.Context()

	startPoint, err := s.Searcher.FindCoordinates(ctx, start)
	if err != nil {
		return offline.CachedRoute{}, err
	}
	endPoint, err := s.Searcher.FindCoordinates(ctx, end)
	if err != nil {
		return offline.CachedRoute{}, err
	}

	result, err := s.Routing.CalculateRoute(ctx, startPoint, endPoint)
	if err != nil {
		return offline.CachedRoute{}, err
	}

	return offline.CachedRoute{
		Start: start,
		End:   end,
		Route: result.Route,
		Info: offline.RouteInfo{
			Distance: fmt.Sprintf("%.1f km", result.Route.Distance/1000),
			Duration: fmt.Sprintf("%d min", int(result.Route.Duration/60+0.5)),
		},
		Steps: result.Steps,
	}, nil
}

func (s *Server) tilesHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		path := r.PathValue("path")

		upstream, err := url.Parse(strings.TrimSuffix(s.Config.TileBaseURL, "/") + "/" + path)
		if err != nil {
			return handler.NewErrWithStatus(http.StatusBadRequest, fmt.Errorf("invalid tile path: %w", err))
		}
		upstream.RawQuery = r.URL.RawQuery

		resp := s.Cache.Fetch(r.Context(), cache.Request{
			Method: http.MethodGet,
			URL:    upstream,
		})

		for key, values := range resp.Header {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		if resp.OK() {
			// Tiles are immutable per coordinate and fetched cross-origin
			// by the map renderer.
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		}
		w.WriteHeader(resp.Status)
		if _, err := w.Write(resp.Body); err != nil {
			s.logger.Error(fmt.Sprintf("Error writing response: %v", err))
		}
		return nil
	})
}

func (s *Server) wsHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			return handler.NewErrWithStatus(http.StatusBadRequest, errors.New("missing session_id"))
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, fmt.Errorf("websocket accept: %w", err))
		}

		s.WebsocketManager.HandleNewConnection(sessionID, conn)
		return nil
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}
