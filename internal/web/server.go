// Package web serves the JSON HTTP boundary.
package web

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/jot/internal/config"
	"github.com/hpungsan/jot/internal/logger"
	"github.com/hpungsan/jot/internal/note"
	"github.com/hpungsan/jot/internal/notify"
	"github.com/hpungsan/jot/internal/ops"
)

// Capturer accepts new captures and processes them in the background.
type Capturer interface {
	SubmitText(ctx context.Context, text string) (*note.Capture, error)
	SubmitAudio(ctx context.Context, r io.Reader, filename string) (*note.Capture, error)
}

// Deps are the collaborators the handlers need.
type Deps struct {
	DB       *sql.DB
	Config   *config.Config
	Capturer Capturer
	Registry *notify.Registry
	Matcher  ops.Invalidator
	Audio    ops.AudioRemover
	Log      *logger.Logger
	Version  string
}

// Handlers contains HTTP route handlers.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	capturer Capturer
	registry *notify.Registry
	matcher  ops.Invalidator
	audio    ops.AudioRemover
	log      *logger.Logger
	version  string
}

// NewHandlers wires deps into Handlers.
func NewHandlers(deps Deps) *Handlers {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Handlers{
		db:       deps.DB,
		cfg:      deps.Config,
		capturer: deps.Capturer,
		registry: deps.Registry,
		matcher:  deps.Matcher,
		audio:    deps.Audio,
		log:      log.With("component", "web"),
		version:  deps.Version,
	}
}

// Routes returns the route table wrapped with security headers.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("POST /captures", h.HandleCapture)
	mux.HandleFunc("GET /captures/{id}", h.HandleCaptureStatus)
	mux.HandleFunc("GET /captures/{id}/events", h.HandleCaptureEvents)
	mux.HandleFunc("DELETE /captures/{id}", h.HandleCaptureDelete)
	mux.HandleFunc("GET /tasks", h.HandleTaskList)
	mux.HandleFunc("PATCH /tasks/{id}", h.HandleTaskUpdate)
	mux.HandleFunc("GET /thoughts", h.HandleThoughtList)
	mux.HandleFunc("GET /digest", h.HandleDigest)

	return securityHeaders(mux)
}

// NewServer creates and configures the HTTP server.
func NewServer(h *Handlers, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
// Open event streams are given the shutdown grace period to finish.
func Run(srv *http.Server, log *logger.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("jot listening", "addr", "http://"+srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
