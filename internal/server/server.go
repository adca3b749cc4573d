package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/handler/health"
	"github.com/playperu/riftbound/internal/service"
	"github.com/playperu/riftbound/internal/store"
)

// Deps is everything the HTTP layer talks to. All of it is built in main.
type Deps struct {
	Scans         *service.ScanService
	Buttons       *service.ButtonService
	Registrations *service.RegistrationService
	Verifier      *service.Verifier
	Lobbies       *service.LobbyService
	Duels         *service.DuelService
	Sessions      *service.GameSessionService
	Admins        store.AdminStore
	Checks        map[string]health.Checker

	ScanBus         *bus.Bus[arcade.ScanEvent]
	ButtonBus       *bus.Bus[arcade.ButtonEvent]
	RegistrationBus *bus.Bus[service.RegistrationEvent]
	KioskBus        *bus.Bus[service.KioskEvent]

	KeepAlive         time.Duration
	ResolveCloseDelay time.Duration
	AdminSessionTTL   time.Duration
	SPADir            string
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
	cancel context.CancelFunc
}

func New(addr string, logger *slog.Logger, d Deps) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	addRoutes(r, logger, d)

	// Streams only end when their request context does, so shutdown
	// cancels the base context for every open connection.
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)

	return &Server{srv: srv, logger: logger, cancel: cancel}
}

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	defer s.cancel()
	return s.srv.Shutdown(ctx)
}

func newStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
