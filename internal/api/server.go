package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"ecomap-navigation/internal/cache"
	"ecomap-navigation/internal/config"
	"ecomap-navigation/internal/gis/routing"
	"ecomap-navigation/internal/offline"
	"ecomap-navigation/internal/search"
	"ecomap-navigation/internal/ws"
)

type Server struct {
	Config           *config.Config
	WebsocketManager *ws.Manager
	Searcher         *search.Searcher
	Routing          *routing.Client
	Store            *offline.Store
	Cache            *cache.Orchestrator
	logger           *slog.Logger
}

func NewServer(
	config *config.Config,
	manager *ws.Manager,
	searcher *search.Searcher,
	routingClient *routing.Client,
	store *offline.Store,
	orchestrator *cache.Orchestrator,
	logger *slog.Logger,
) *Server {
	return &Server{
		Config:           config,
		WebsocketManager: manager,
		Searcher:         searcher,
		Routing:          routingClient,
		Store:            store,
		Cache:            orchestrator,
		logger:           logger,
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate;")
	if _, err := w.Write([]byte("API server is started.")); err != nil {
		s.logger.Error(fmt.Sprintf("Error writing response: %v", err))
	}
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /search", s.searchHandler())
	mux.Handle("GET /reverse", s.reverseHandler())
	mux.Handle("POST /locations", s.rememberHandler())
	mux.Handle("GET /route", s.routeHandler())
	mux.Handle("GET /tiles/{path...}", s.tilesHandler())
	mux.Handle("GET /navigation", s.wsHandler())

	server := &http.Server{
		Addr:    net.JoinHostPort(s.Config.APIServerHost, s.Config.APIServerPort),
		Handler: mux,
	}

	go func() {
		s.logger.Info("API server is running", "port", s.Config.APIServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server failed to listen and serve", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("API server failed to shutdown", "error", err)
		}
	}()

	wg.Wait()
	return nil
}
