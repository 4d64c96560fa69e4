package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openride/relay-gateway/pkg/auth"
)

// handleWebSocket upgrades the connection, authenticates the bearer
// credential supplied at connect time, and binds the identity. A
// connection that fails to authenticate within the handshake window is
// told why and forcibly closed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	// Echo the jwt subprotocol back when the client used it to carry the
	// token, so the handshake completes per RFC 6455.
	var respHeader http.Header
	for _, proto := range websocket.Subprotocols(r) {
		if proto == "jwt" {
			respHeader = http.Header{"Sec-WebSocket-Protocol": []string{"jwt"}}
			break
		}
	}

	tokenStr := extractToken(r)

	conn, err := upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		s.log.Info("websocket upgrade failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	connID := uuid.NewString()
	client := newWSClient(s, conn, connID)

	identity, err := s.tokens.Verify(tokenStr)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) && s.cfg.AllowAnonymous {
			// Development-only escape hatch, gated by explicit config.
			identity = auth.Identity{ID: "guest_" + uuid.NewString(), Role: auth.RoleRequester}
			s.log.Warn("anonymous connection admitted as guest",
				zap.String("conn_id", connID),
				zap.String("guest_id", identity.ID),
			)
		} else {
			s.rejectHandshake(conn, connID, err)
			return
		}
	}

	s.registry.Bind(connID, identity, client)
	s.metrics.ConnectionOpened()
	s.stats.connects.Inc()

	go client.writePump()
	client.sendFrame("connected", map[string]interface{}{
		"connectionId": connID,
		"identityId":   identity.ID,
		"role":         string(identity.Role),
	})
	go client.readPump()
}

// rejectHandshake tells the client why it was refused, then closes. The
// token value itself is never logged.
func (s *Server) rejectHandshake(conn *websocket.Conn, connID string, err error) {
	reason := "invalid_signature"
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		reason = "missing_token"
	case errors.Is(err, auth.ErrMalformedClaims):
		reason = "malformed_claims"
	}
	s.metrics.AuthFailure(reason)
	s.log.Warn("websocket authentication failed",
		zap.String("conn_id", connID),
		zap.String("reason", reason),
	)

	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if raw, merr := json.Marshal(map[string]interface{}{
		"type":    "error",
		"payload": map[string]interface{}{"reason": reason, "message": err.Error()},
	}); merr == nil {
		_ = conn.WriteMessage(websocket.TextMessage, raw)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	conn.Close()
}

// extractToken pulls the bearer credential from the handshake: the jwt
// subprotocol, the Authorization header, or a token query parameter. All
// paths produce identical verification results for the same token.
func extractToken(r *http.Request) string {
	for _, proto := range websocket.Subprotocols(r) {
		proto = strings.TrimSpace(proto)
		if strings.HasPrefix(proto, "jwt ") {
			return strings.TrimPrefix(proto, "jwt ")
		}
		// Token smuggled as a bare subprotocol alongside "jwt".
		if proto != "jwt" && len(proto) > 20 && !strings.Contains(proto, " ") {
			return proto
		}
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
