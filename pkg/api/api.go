package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/DCArch/tpchmark/pkg/config"
	"github.com/DCArch/tpchmark/pkg/store"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes benchmark results over a read-only HTTP API.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.APIConfig
	resultsDir string
	history    store.Store
	httpServer *http.Server
	limiters   *visitorLimiters
	wg         sync.WaitGroup
}

// NewServer creates a new API server. history may be nil when run history
// is not configured; the runs endpoint then reports it as unavailable.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
	resultsDir string,
	history store.Store,
) Server {
	return &server{
		log:        log.WithField("component", "api"),
		cfg:        cfg,
		resultsDir: resultsDir,
		history:    history,
	}
}

// Start binds the listener and serves the API until Stop is called.
func (s *server) Start(ctx context.Context) error {
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Listen).Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.limiters != nil {
		s.limiters.close()
		s.limiters = nil
	}

	s.log.Info("API server stopped")

	return nil
}
