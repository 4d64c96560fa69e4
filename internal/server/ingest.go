package server

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/openride/relay-gateway/internal/relay"
	"github.com/openride/relay-gateway/pkg/auth"
)

// envelope is the JSON response shape of every ingestion endpoint.
type envelope map[string]interface{}

// ingestHandler builds the handler for one event kind. Backend
// authentication runs before field validation; a missing field is a 400
// naming the field, never a 500.
func (s *Server) ingestHandler(kind relay.EventKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeJSON(w, http.StatusMethodNotAllowed, envelope{
				"success": false,
				"message": "method not allowed",
			})
			return
		}
		if !s.authenticateBackend(w, r) {
			return
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeJSON(w, http.StatusBadRequest, envelope{
				"success": false,
				"message": "invalid JSON body",
			})
			return
		}

		ev, err := normalizeEvent(kind, body)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				s.writeJSON(w, http.StatusBadRequest, envelope{
					"success": false,
					"message": verr.Error(),
					"field":   verr.Field,
				})
				return
			}
			s.writeJSON(w, http.StatusBadRequest, envelope{
				"success": false,
				"message": err.Error(),
			})
			return
		}

		report := s.router.Route(ev)
		s.stats.eventsIngested.Inc()

		resp := envelope{
			"success":   true,
			"message":   string(kind) + " event dispatched",
			"delivered": report.Delivered,
		}
		// Echo the event's key identifiers.
		for _, field := range []string{"contextId", "requesterId", "providerId"} {
			if v := stringField(body, field); v != "" {
				resp[field] = v
			}
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// authenticateBackend validates the shared backend key. Misconfiguration is
// a 500 with its own log and metric signal; ordinary credential failures
// are 401s.
func (s *Server) authenticateBackend(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			key = strings.TrimPrefix(h, "Bearer ")
		}
	}

	err := s.backend.Verify(key)
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, auth.ErrServerMisconfigured):
		s.metrics.AuthFailure("server_misconfigured")
		s.log.Error("backend api key not configured; rejecting ingestion call")
		s.writeJSON(w, http.StatusInternalServerError, envelope{
			"success": false,
			"message": "server misconfigured",
		})
	case errors.Is(err, auth.ErrMissingKey):
		s.metrics.AuthFailure("missing_key")
		s.writeJSON(w, http.StatusUnauthorized, envelope{
			"success": false,
			"message": "missing api key",
		})
	default:
		s.metrics.AuthFailure("invalid_key")
		s.log.Warn("ingestion call with invalid api key", zap.String("remote", r.RemoteAddr))
		s.writeJSON(w, http.StatusUnauthorized, envelope{
			"success": false,
			"message": "invalid api key",
		})
	}
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}
