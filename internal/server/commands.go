package server

import (
	"go.uber.org/zap"

	"github.com/openride/relay-gateway/internal/relay"
	"github.com/openride/relay-gateway/pkg/auth"
)

// clientCommand is the wire shape of a client-originated frame.
type clientCommand struct {
	Type    string `json:"type"`
	Payload struct {
		ContextID   string `json:"contextId"`
		TargetID    string `json:"targetId"`
		RequesterID string `json:"requesterId"`
		Available   bool   `json:"available"`
		Reason      string `json:"reason"`
	} `json:"payload"`
}

// handleCommand translates one socket command into a directory operation
// or a routed event. Client-originated events bypass backend
// authentication: the acting connection's own bound identity is the
// authorization.
func (s *Server) handleCommand(c *wsClient, raw []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.sendError("invalid_json", "could not parse command")
		return
	}

	conn, err := s.registry.Lookup(c.connID)
	if err != nil {
		// The socket outlived its binding; nothing to act on.
		c.sendError("not_bound", "connection is not bound")
		return
	}
	s.stats.commands.Inc()

	switch cmd.Type {
	case "ping":
		c.sendFrame("pong", nil)

	case "subscribe":
		if cmd.Payload.ContextID == "" {
			c.sendError("missing_field", "contextId is required")
			return
		}
		if err := s.dir.Join(conn, relay.ContextChannel(cmd.Payload.ContextID)); err != nil {
			c.sendError("forbidden", err.Error())
			return
		}

	case "unsubscribe":
		if cmd.Payload.ContextID == "" {
			c.sendError("missing_field", "contextId is required")
			return
		}
		s.dir.Leave(conn, relay.ContextChannel(cmd.Payload.ContextID))

	case "toggleAvailability":
		pool := relay.RolePoolChannel(conn.Identity.Role)
		if cmd.Payload.Available {
			if err := s.dir.Join(conn, pool); err != nil {
				c.sendError("forbidden", err.Error())
				return
			}
		} else {
			s.dir.Leave(conn, pool)
		}

	case "trackIdentity":
		if cmd.Payload.TargetID == "" {
			c.sendError("missing_field", "targetId is required")
			return
		}
		if err := s.dir.Join(conn, relay.TrackingChannel(cmd.Payload.TargetID)); err != nil {
			c.sendError("forbidden", err.Error())
			return
		}

	case "acceptOffer":
		s.handleAcceptOffer(c, conn, cmd)

	case "rejectOffer":
		s.handleRejectOffer(c, conn, cmd)

	default:
		s.log.Info("unknown client command",
			zap.String("conn_id", c.connID),
			zap.String("type", cmd.Type),
		)
		c.sendError("unknown_command", "unknown command: "+cmd.Type)
	}
}

// handleAcceptOffer lets a provider claim an offered trip: it joins the
// trip's context channel and routes the accepted event to the requester's
// inbox and the context.
func (s *Server) handleAcceptOffer(c *wsClient, conn *relay.Conn, cmd clientCommand) {
	if conn.Identity.Role != auth.RoleProvider {
		c.sendError("forbidden", auth.ErrForbidden.Error())
		return
	}
	if cmd.Payload.ContextID == "" {
		c.sendError("missing_field", "contextId is required")
		return
	}

	// The accepting provider becomes a party to the trip.
	if err := s.dir.Join(conn, relay.ContextChannel(cmd.Payload.ContextID)); err != nil {
		c.sendError("forbidden", err.Error())
		return
	}

	s.router.Route(relay.Event{
		Kind:        relay.EventAccepted,
		ContextID:   cmd.Payload.ContextID,
		RequesterID: cmd.Payload.RequesterID,
		ProviderID:  conn.Identity.ID,
		Payload: map[string]interface{}{
			"contextId":   cmd.Payload.ContextID,
			"providerId":  conn.Identity.ID,
			"requesterId": cmd.Payload.RequesterID,
		},
	})
}

// handleRejectOffer lets a provider decline an offered trip. The decline
// is relayed as a cancelled event scoped to the trip's context, carrying
// who declined and why.
func (s *Server) handleRejectOffer(c *wsClient, conn *relay.Conn, cmd clientCommand) {
	if conn.Identity.Role != auth.RoleProvider {
		c.sendError("forbidden", auth.ErrForbidden.Error())
		return
	}
	if cmd.Payload.ContextID == "" {
		c.sendError("missing_field", "contextId is required")
		return
	}

	s.router.Route(relay.Event{
		Kind:        relay.EventCancelled,
		ContextID:   cmd.Payload.ContextID,
		RequesterID: cmd.Payload.RequesterID,
		Payload: map[string]interface{}{
			"contextId":   cmd.Payload.ContextID,
			"cancelledBy": conn.Identity.ID,
			"reason":      cmd.Payload.Reason,
			"stage":       "offer",
		},
	})
}
