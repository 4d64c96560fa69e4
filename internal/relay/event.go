package relay

import "github.com/openride/relay-gateway/pkg/auth"

// EventKind enumerates the lifecycle event kinds the relay routes. The set
// is closed: the router's targeting function is exhaustive over it.
type EventKind string

const (
	EventOfferToPool       EventKind = "offer-to-pool"
	EventAccepted          EventKind = "accepted"
	EventNoLongerAvailable EventKind = "no-longer-available"
	EventArrived           EventKind = "arrived"
	EventStarted           EventKind = "started"
	EventCompleted         EventKind = "completed"
	EventCancelled         EventKind = "cancelled"
	EventLocationUpdate    EventKind = "location-update"
	EventPaymentUpdate     EventKind = "payment-update"
	EventEmergencyAlert    EventKind = "emergency-alert"
)

// Event is a typed, transient fact about the business process. It is
// created, routed and discarded within a single call; the relay never
// stores it. The hint fields drive targeting; Payload is the opaque body
// delivered to members.
type Event struct {
	Kind EventKind

	// Targeting hints. Empty fields are simply not targeted.
	ContextID    string
	RequesterID  string
	ProviderID   string
	CandidateIDs []string

	Payload map[string]interface{}
}

// Targets resolves the deterministic set of channels this event fans out
// to. The context channel is always included when a context id is present;
// explicitly named parties additionally receive the event on their
// personal channels whether or not they subscribed to the context. The
// returned slice is deduplicated and ordered deterministically.
func (e Event) Targets() []ChannelID {
	var targets []ChannelID
	add := func(ch ChannelID) {
		for _, existing := range targets {
			if existing == ch {
				return
			}
		}
		targets = append(targets, ch)
	}
	addPersonal := func(id string) {
		if id != "" {
			add(PersonalChannel(id))
		}
	}
	addContext := func() {
		if e.ContextID != "" {
			add(ContextChannel(e.ContextID))
		}
	}

	switch e.Kind {
	case EventOfferToPool, EventNoLongerAvailable:
		// Every listed candidate plus the whole provider pool.
		for _, id := range e.CandidateIDs {
			addPersonal(id)
		}
		add(RolePoolChannel(auth.RoleProvider))
		addContext()
	case EventAccepted:
		addPersonal(e.RequesterID)
		addContext()
	case EventArrived, EventStarted, EventCompleted:
		addPersonal(e.RequesterID)
		addPersonal(e.ProviderID)
		addContext()
	case EventCancelled:
		addPersonal(e.RequesterID)
		addPersonal(e.ProviderID)
		addContext()
	case EventLocationUpdate:
		addContext()
		if e.ProviderID != "" {
			add(TrackingChannel(e.ProviderID))
		}
	case EventPaymentUpdate:
		addPersonal(e.RequesterID)
		addContext()
	case EventEmergencyAlert:
		// Best-effort to whichever targets exist, plus monitoring always.
		addPersonal(e.RequesterID)
		addPersonal(e.ProviderID)
		addContext()
		add(MonitoringChannel())
	}
	return targets
}
