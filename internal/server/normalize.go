package server

import (
	"fmt"

	"github.com/openride/relay-gateway/internal/relay"
)

// ValidationError reports a missing required field in an ingestion call.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// requiredFields lists, per event kind, the fields an ingestion call must
// carry. Validation runs only after backend authentication.
var requiredFields = map[relay.EventKind][]string{
	relay.EventOfferToPool:       {"contextId", "requesterId", "pickupLocation", "candidateIds"},
	relay.EventAccepted:          {"contextId", "providerId", "requesterId"},
	relay.EventNoLongerAvailable: {"contextId", "reason"},
	relay.EventArrived:           {"contextId", "providerId", "requesterId"},
	relay.EventStarted:           {"contextId", "providerId", "requesterId"},
	relay.EventCompleted:         {"contextId", "providerId", "requesterId"},
	relay.EventCancelled:         {"contextId", "cancelledBy"},
	relay.EventLocationUpdate:    {"providerId", "location"},
	relay.EventPaymentUpdate:     {"contextId", "paymentStatus"},
	relay.EventEmergencyAlert:    {"contextId", "alertType", "triggeredBy"},
}

// normalizeEvent validates the decoded ingestion body for the given kind
// and builds the routed event. The body itself becomes the delivered
// payload; targeting hints are lifted out of it.
func normalizeEvent(kind relay.EventKind, body map[string]interface{}) (relay.Event, error) {
	fields, ok := requiredFields[kind]
	if !ok {
		return relay.Event{}, fmt.Errorf("unknown event kind: %s", kind)
	}
	for _, name := range fields {
		if !fieldPresent(body[name]) {
			return relay.Event{}, &ValidationError{Field: name}
		}
	}

	ev := relay.Event{
		Kind:         kind,
		ContextID:    stringField(body, "contextId"),
		RequesterID:  stringField(body, "requesterId"),
		ProviderID:   stringField(body, "providerId"),
		CandidateIDs: stringSliceField(body, "candidateIds"),
		Payload:      body,
	}
	return ev, nil
}

// fieldPresent treats absent, nil, empty-string and empty-array values as
// missing.
func fieldPresent(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	default:
		return true
	}
}

func stringField(body map[string]interface{}, name string) string {
	if s, ok := body[name].(string); ok {
		return s
	}
	return ""
}

func stringSliceField(body map[string]interface{}, name string) []string {
	raw, ok := body[name].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
