package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/dropwatch/pkg/config"
	"github.com/ethpandaops/dropwatch/pkg/dedup"
	"github.com/ethpandaops/dropwatch/pkg/notify"
	"github.com/ethpandaops/dropwatch/pkg/session"
	"github.com/ethpandaops/dropwatch/pkg/store"
	"github.com/ethpandaops/dropwatch/pkg/worker"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	// Addr returns the bound listen address once started.
	Addr() string
}

// SessionController is the session control surface served by the API.
type SessionController interface {
	StartSession(ctx context.Context, root string) error
	StopSession(ctx context.Context) error
	State() session.State
}

// BatchUploader runs manual uploads.
type BatchUploader interface {
	UploadBatch(ctx context.Context, paths []string, progress func(worker.BatchState)) worker.BatchState
	Tracker() *dedup.Tracker
}

// Deps are the components the API operates on.
type Deps struct {
	Sessions SessionController
	Uploads  BatchUploader
	Store    store.Store
	History  *notify.History
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.APIConfig
	deps       Deps
	httpServer *http.Server
	addr       string
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
	deps Deps,
) Server {
	return &server{
		log:  log.WithField("component", "api"),
		cfg:  cfg,
		deps: deps,
		done: make(chan struct{}),
	}
}

// Start binds the listener and serves the API in the background.
func (s *server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.addr = ln.Addr().String()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.addr).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	s.log.Info("API server stopped")

	return nil
}

func (s *server) Addr() string {
	return s.addr
}
