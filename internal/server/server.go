// Package server is the relay's boundary: the authenticated HTTP ingestion
// surface for the trusted backend, and the WebSocket surface for end-user
// clients. Both normalize into the router's event types; neither holds
// state of its own.
package server

import (
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/openride/relay-gateway/internal/config"
	"github.com/openride/relay-gateway/internal/metrics"
	"github.com/openride/relay-gateway/internal/relay"
	"github.com/openride/relay-gateway/pkg/auth"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server wires the relay core to its HTTP and WebSocket surfaces.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *relay.Registry
	dir      *relay.Directory
	router   *relay.Router
	tokens   *auth.TokenVerifier
	backend  *auth.KeyVerifier
	metrics  *metrics.Relay
	stats    *stats

	allowedOrigins []string
}

// New assembles a server around an already-constructed relay core.
func New(cfg *config.Config, log *zap.Logger, registry *relay.Registry, dir *relay.Directory, router *relay.Router, m *metrics.Relay) *Server {
	origins := []string{"*"}
	if cfg.AllowedOrigins != "" {
		origins = strings.Split(cfg.AllowedOrigins, ",")
	}
	return &Server{
		cfg:            cfg,
		log:            log,
		registry:       registry,
		dir:            dir,
		router:         router,
		tokens:         auth.NewTokenVerifier(cfg.JWTSecret),
		backend:        auth.NewKeyVerifier(cfg.BackendAPIKey),
		metrics:        m,
		stats:          newStats(),
		allowedOrigins: origins,
	}
}

// Routes builds the relay's routing table: one ingestion endpoint per event
// kind, the WebSocket endpoint, health and metrics.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			s.log.Warn("healthz write failed", zap.Error(err))
		}
	})
	mux.Handle("/metrics", s.metrics.Handler())

	for _, kind := range []relay.EventKind{
		relay.EventOfferToPool,
		relay.EventAccepted,
		relay.EventNoLongerAvailable,
		relay.EventArrived,
		relay.EventStarted,
		relay.EventCompleted,
		relay.EventCancelled,
		relay.EventLocationUpdate,
		relay.EventPaymentUpdate,
		relay.EventEmergencyAlert,
	} {
		mux.HandleFunc("/api/events/"+string(kind), s.ingestHandler(kind))
	}
	return mux
}

// checkOrigin applies the ALLOWED_ORIGINS list; "*" admits everything.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.allowedOrigins[0] == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.allowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}
