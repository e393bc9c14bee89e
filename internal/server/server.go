// Package server contains the HTTP handlers and server bootstrap for the
// read/admin API.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/garnizeh/uptime-monitor/internal/config"
	"github.com/garnizeh/uptime-monitor/internal/database"
)

// statsBroadcastInterval is how often the fleet summary is pushed to
// websocket subscribers.
const statsBroadcastInterval = 10 * time.Second

// Server is the HTTP server for the monitoring API.
type Server struct {
	cfg        *config.Config
	db         *sql.DB
	hub        *Hub
	router     *http.ServeMux
	handler    http.Handler
	httpServer *http.Server
}

// New constructs a Server. Routes must be registered with RegisterRoutes
// before calling Start.
func New(cfg *config.Config, db *sql.DB) *Server {
	return &Server{
		cfg:    cfg,
		db:     db,
		hub:    newHub(),
		router: http.NewServeMux(),
	}
}

// Start runs the HTTP server and blocks until context cancellation or a
// server error. The websocket hub and the periodic stats broadcast run for
// the lifetime of the context.
func (s *Server) Start(ctx context.Context) error {
	addr := ":" + s.cfg.APIPort
	h := http.Handler(s.router)
	if s.handler != nil {
		h = s.handler
	}

	go s.hub.run(ctx)
	go s.broadcastLoop(ctx)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lc := &net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-ctx.Done():
		timeout := 30 * time.Second
		if s.cfg.ShutdownTimeout > 0 {
			timeout = s.cfg.ShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// broadcastLoop pushes a fleet summary to subscribers on a fixed cadence.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(statsBroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastStats(ctx)
		}
	}
}

func (s *Server) broadcastStats(ctx context.Context) {
	statsCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stats, err := database.NewQueries(s.db).GetFleetStats(statsCtx)
	if err != nil {
		log.Printf("server: fleet stats failed: %v", err)
		return
	}
	payload, err := json.Marshal(map[string]any{
		"type":  "fleet_stats",
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"stats": stats,
	})
	if err != nil {
		log.Printf("server: encode fleet stats failed: %v", err)
		return
	}
	s.hub.Broadcast(payload)
}
