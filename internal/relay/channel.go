package relay

import "github.com/openride/relay-gateway/pkg/auth"

// channelKind discriminates the logical channel families.
type channelKind uint8

const (
	kindPersonal channelKind = iota + 1
	kindContext
	kindRolePool
	kindTracking
	kindMonitoring
)

// ChannelID identifies a logical delivery group. Values are comparable:
// two identical logical channels produce identical IDs regardless of code
// path, so ChannelID is safe as a map key. Construct values only through
// the constructor functions below, never by hand.
type ChannelID struct {
	kind channelKind
	key  string
}

// PersonalChannel is the private inbox of a single identity. Every
// connection bound to that identity is a member.
func PersonalChannel(identityID string) ChannelID {
	return ChannelID{kind: kindPersonal, key: identityID}
}

// ContextChannel is the shared channel for all parties associated with one
// business context (a trip). Membership is voluntary.
func ContextChannel(contextID string) ChannelID {
	return ChannelID{kind: kindContext, key: contextID}
}

// RolePoolChannel is the pool of currently-available identities of one
// role. Joining is restricted to identities of that role.
func RolePoolChannel(role auth.Role) ChannelID {
	return ChannelID{kind: kindRolePool, key: string(role)}
}

// TrackingChannel mirrors a single target identity's location stream to any
// subscriber.
func TrackingChannel(targetIdentityID string) ChannelID {
	return ChannelID{kind: kindTracking, key: targetIdentityID}
}

// MonitoringChannel is the fixed operational channel for privileged
// oversight of emergency events. Membership is managed out of band.
func MonitoringChannel() ChannelID {
	return ChannelID{kind: kindMonitoring}
}

// IsRolePool reports whether the channel is a role pool, and for which role.
func (c ChannelID) IsRolePool() (auth.Role, bool) {
	if c.kind != kindRolePool {
		return "", false
	}
	return auth.Role(c.key), true
}

// String renders the channel for logs and delivery reports.
func (c ChannelID) String() string {
	switch c.kind {
	case kindPersonal:
		return "personal:" + c.key
	case kindContext:
		return "context:" + c.key
	case kindRolePool:
		return "pool:" + c.key
	case kindTracking:
		return "tracking:" + c.key
	case kindMonitoring:
		return "monitoring"
	default:
		return "unknown"
	}
}
