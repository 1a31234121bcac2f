package web

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/cjeanneret/godrive/internal/debug"
)

// shutdownGrace bounds how long open streams may delay shutdown.
const shutdownGrace = 5 * time.Second

// Server serves the dashboard and the chassis API on one address.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer wires the handlers over the embedded dashboard.
func NewServer(addr string, deps Deps) *Server {
	dashboard, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}
	return &Server{addr: addr, handlers: NewHandlers(deps, dashboard)}
}

// Mux returns the route table.
func (s *Server) Mux() http.Handler {
	h := s.handlers
	mux := http.NewServeMux()

	// routines
	mux.HandleFunc("GET /routines", h.HandleRoutines)
	mux.HandleFunc("POST /run", h.HandleRun)
	mux.HandleFunc("POST /cancel", h.HandleCancel)

	// chassis
	mux.HandleFunc("GET /state", h.HandleState)
	mux.HandleFunc("GET /tuning", h.HandleTuning)
	mux.HandleFunc("PUT /tuning", h.HandleSetTuning)

	// streams
	mux.HandleFunc("GET /status/stream", h.HandleStatusStream)
	mux.HandleFunc("GET /telemetry/ws", h.HandleTelemetryWS)

	// dashboard
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServerFS(h.staticFS)))
	mux.HandleFunc("GET /{$}", h.ServeIndex)

	return mux
}

// Run serves until ctx is done, then shuts down, giving in-flight
// requests shutdownGrace to finish.
func (s *Server) Run(ctx context.Context) error {
	s.handlers.setBase(ctx)
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web dashboard listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		debug.Info("Web dashboard shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
