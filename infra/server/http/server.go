package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webitel/chat-delivery-service/config"
	"github.com/webitel/chat-delivery-service/internal/handler/lp"
	"github.com/webitel/chat-delivery-service/internal/handler/ws"
)

// NewRouter mounts the full client-facing HTTP surface:
//
//	GET /ws/rooms/{roomID}            websocket session
//	GET /api/rooms/{roomID}/messages  history fetch
//	GET /api/rooms/{roomID}/poll      long-poll fallback
//	GET /metrics                      prometheus scrape
//	GET /healthz                      liveness probe
func NewRouter(gateway *ws.Gateway, fallback *lp.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/ws/rooms/{roomID}", gateway.ServeHTTP)

	r.Route("/api/rooms/{roomID}", func(r chi.Router) {
		r.Get("/messages", fallback.History)
		r.Get("/poll", fallback.Poll)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

// Server wraps the stdlib http.Server with lifecycle-friendly start/stop.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(cfg *config.Config, router chi.Router, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start binds the listener synchronously so startup fails fast on a busy
// port, then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
