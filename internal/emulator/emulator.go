// Package emulator serves an in-memory Remote Config API with the same conditional write
// semantics as the real service. Every project gets its own template on first access.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/florianilch/rconf/internal/remoteconfig"
)

// template is the stored state of one project.
type template struct {
	etag string
	body []byte
}

// Option configures an Emulator.
type Option func(*Emulator) error

// WithTemplate seeds the template of projectID.
func WithTemplate(projectID string, doc remoteconfig.Document) Option {
	return func(e *Emulator) error {
		body, err := encodeTemplate(doc)
		if err != nil {
			return fmt.Errorf("seeding template for %s: %w", projectID, err)
		}
		e.templates[projectID] = &template{etag: newETag(), body: body}
		return nil
	}
}

// Emulator is the HTTP server.
type Emulator struct {
	mux     *http.ServeMux
	server  *http.Server
	metrics *metrics

	// mu guards listener and templates
	mu        sync.Mutex
	listener  net.Listener
	templates map[string]*template
}

// Compile-time check that Emulator implements http.Handler
var _ http.Handler = (*Emulator)(nil)

// New creates an Emulator. Call Start to serve it on a TCP address, or use it directly as
// an http.Handler.
func New(opts ...Option) (*Emulator, error) {
	registry := prometheus.NewRegistry()

	e := &Emulator{
		mux:       http.NewServeMux(),
		metrics:   newMetrics(registry),
		templates: make(map[string]*template),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	logger := slog.Default()
	templatePath := "/v1/projects/{project}/remoteConfig"

	e.mux.Handle("GET "+templatePath, applyMiddlewares(http.HandlerFunc(e.getTemplate),
		Logging(logger),
		Recovery,
		requireBearer,
	))
	e.mux.Handle("PUT "+templatePath, applyMiddlewares(http.HandlerFunc(e.putTemplate),
		Logging(logger),
		Recovery,
		requireBearer,
	))
	e.mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return e, nil
}

// ServeHTTP implements http.Handler interface
func (e *Emulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (e *Emulator) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	e.mu.Lock()
	e.listener = listener
	e.mu.Unlock()

	e.server = &http.Server{
		Handler:      e,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := e.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Addr returns the address the emulator listens on, or "" before Start.
func (e *Emulator) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (e *Emulator) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}

	if err := e.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = e.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

// current returns the template of projectID, creating an empty one on first access.
// Callers must hold e.mu.
func (e *Emulator) current(projectID string) *template {
	t, ok := e.templates[projectID]
	if !ok {
		t = &template{etag: newETag(), body: []byte("{}")}
		e.templates[projectID] = t
	}
	return t
}

func newETag() string {
	return "etag-" + uuid.NewString()
}
