// Package health exposes the /healthz endpoint of the relay bot: MongoDB
// reachability plus the number of open interactive actions.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"contact_relay_bot/internal/logging"
)

const (
	mongoPingTimeout  = 2 * time.Second
	readHeaderTimeout = 2 * time.Second

	statusOK       = "ok"
	statusDegraded = "degraded"
	statusError    = "error"
)

// MongoChecker reports whether the store is reachable.
type MongoChecker interface {
	Ping(ctx context.Context) error
}

// PendingCounter reports how many interactive edits and replies are open.
type PendingCounter interface {
	Len() int
}

// Server hosts the health endpoint and owns the underlying HTTP server.
type Server struct {
	server  *http.Server
	logger  *logrus.Entry
	mongo   MongoChecker
	pending PendingCounter
	started time.Time
}

type response struct {
	Status        string `json:"status"`
	Mongo         string `json:"mongo"`
	PendingEdits  int    `json:"pending_edits"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// NewServer constructs a health server that exposes GET /healthz on port.
// pending may be nil.
func NewServer(port int, mongo MongoChecker, pending PendingCounter, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:  logger,
		mongo:   mongo,
		pending: pending,
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the health server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	resp := response{
		Status:        statusOK,
		Mongo:         s.checkMongo(r.Context()),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if resp.Mongo != statusOK {
		resp.Status = statusDegraded
	}
	if s.pending != nil {
		resp.PendingEdits = s.pending.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to encode health response")
	}
}

func (s *Server) checkMongo(ctx context.Context) string {
	if s.mongo == nil {
		s.logger.WithField("event", "health_mongo_missing").Warn("mongo checker is not configured for health endpoint")
		return statusError
	}

	pingCtx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
	defer cancel()

	if err := s.mongo.Ping(pingCtx); err != nil {
		s.logger.WithField("event", "health_mongo_error").WithError(err).Warn("mongo ping failed during health check")
		return statusError
	}

	return statusOK
}
