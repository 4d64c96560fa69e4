package relay

import (
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/openride/relay-gateway/internal/metrics"
)

// jsonFast is used on the delivery hot path.
var jsonFast = jsoniter.ConfigCompatibleWithStandardLibrary

// Frame is the wire shape of a server-originated message: the event kind as
// the type tag, and the opaque payload.
type Frame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ChannelDelivery is the per-channel slice of a DeliveryReport.
type ChannelDelivery struct {
	Channel   string `json:"channel"`
	Members   int    `json:"members"`
	Delivered int    `json:"delivered"`
}

// DeliveryReport records, per target channel, how many member connections
// the payload was handed to at routing time. It is a diagnostic count, not
// a delivery guarantee.
type DeliveryReport struct {
	Kind      EventKind         `json:"kind"`
	Targets   []ChannelDelivery `json:"targets"`
	Delivered int               `json:"delivered"`
	Dropped   int               `json:"dropped"`
}

// Router resolves a domain event into its target channels and hands the
// payload to every currently-connected member. Delivery is fire-and-forget:
// no buffering for disconnected members, no retry, no acknowledgement.
// That trade-off is deliberate; do not "fix" it with persistence.
type Router struct {
	dir     *Directory
	log     *zap.Logger
	metrics *metrics.Relay
}

// NewRouter creates a router that resolves memberships through dir.
// m may be nil (tests).
func NewRouter(dir *Directory, log *zap.Logger, m *metrics.Relay) *Router {
	return &Router{dir: dir, log: log, metrics: m}
}

// Route fans the event out to its target channels. An event with no
// resolvable targets delivers to zero connections; that is reported, not
// treated as an error. Events routed by the same caller reach each member
// in the order they were routed.
func (r *Router) Route(ev Event) DeliveryReport {
	frame, err := jsonFast.Marshal(Frame{Type: string(ev.Kind), Payload: ev.Payload})
	if err != nil {
		// Payloads come from decoded JSON, so this should not happen.
		r.log.Error("event frame marshal failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return DeliveryReport{Kind: ev.Kind}
	}

	report := DeliveryReport{Kind: ev.Kind}
	seen := make(map[string]struct{})
	for _, ch := range ev.Targets() {
		members := r.dir.MembersOf(ch)
		delivered := 0
		for _, conn := range members {
			// A connection reachable through several target channels
			// receives the event once.
			if _, dup := seen[conn.ID]; dup {
				continue
			}
			seen[conn.ID] = struct{}{}
			if conn.sender.Enqueue(frame) {
				delivered++
			} else {
				report.Dropped++
				r.log.Warn("outbound buffer full, frame dropped",
					zap.String("conn_id", conn.ID),
					zap.String("channel", ch.String()),
					zap.String("kind", string(ev.Kind)),
				)
			}
		}
		report.Targets = append(report.Targets, ChannelDelivery{
			Channel:   ch.String(),
			Members:   len(members),
			Delivered: delivered,
		})
		report.Delivered += delivered
	}

	if r.metrics != nil {
		r.metrics.EventRouted(string(ev.Kind), report.Delivered, report.Dropped)
	}
	r.log.Debug("event routed",
		zap.String("kind", string(ev.Kind)),
		zap.String("context_id", ev.ContextID),
		zap.Int("targets", len(report.Targets)),
		zap.Int("delivered", report.Delivered),
		zap.Int("dropped", report.Dropped),
	)
	return report
}
