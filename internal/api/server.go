package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SessionCounter reports how many conversations are in progress.
type SessionCounter interface {
	Len() int
}

type Server struct {
	router   *chi.Mux
	port     int
	mode     string
	sessions SessionCounter
	extra    map[string]func() any
}

// NewServer builds the HTTP surface. mode is "polling" or "webhook".
func NewServer(port int, mode string, sessions SessionCounter) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		mode:     mode,
		sessions: sessions,
		extra:    make(map[string]func() any),
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/ihbar/status", s.status)

	return s
}

// Mount attaches h to POST pattern, e.g. the Telegram webhook.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Method(http.MethodPost, pattern, h)
}

// Report adds field to the status response, computed by fn on every request.
// Call it before Run.
func (s *Server) Report(field string, fn func() any) {
	s.extra[field] = fn
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	sessions := 0
	if s.sessions != nil {
		sessions = s.sessions.Len()
	}
	out := map[string]any{
		"agent":    "ihbar",
		"mode":     s.mode,
		"sessions": sessions,
	}
	for field, fn := range s.extra {
		out[field] = fn()
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
