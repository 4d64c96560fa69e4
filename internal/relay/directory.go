package relay

import (
	"sync"

	"github.com/openride/relay-gateway/pkg/auth"
)

// Directory is the room-membership abstraction: the only cross-connection
// shared mutable state the relay keeps. All mutations are applied under one
// lock so a concurrent MembersOf reader sees either the pre- or the
// post-mutation set, never a torn one. The directory knows nothing about
// business semantics; that keeps the router generic across event kinds.
type Directory struct {
	mu      sync.RWMutex
	members map[ChannelID]map[string]*Conn
}

// NewDirectory creates an empty channel directory.
func NewDirectory() *Directory {
	return &Directory{members: make(map[ChannelID]map[string]*Conn)}
}

// Join adds conn to the channel, enforcing per-channel authorization: a
// role pool only admits identities of its role. Rejoining an already-joined
// channel is a no-op success.
func (d *Directory) Join(conn *Conn, ch ChannelID) error {
	if role, ok := ch.IsRolePool(); ok && conn.Identity.Role != role {
		return auth.ErrForbidden
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.members[ch]
	if !ok {
		set = make(map[string]*Conn)
		d.members[ch] = set
	}
	set[conn.ID] = conn
	conn.channels[ch] = struct{}{}
	return nil
}

// Leave removes conn from the channel. It always succeeds, including
// leaving a channel never joined.
func (d *Directory) Leave(conn *Conn, ch ChannelID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leaveLocked(conn, ch)
}

// RemoveAll strips conn from every channel it is a member of, in one
// atomic step. Called on disconnect.
func (d *Directory) RemoveAll(conn *Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range conn.channels {
		d.leaveLocked(conn, ch)
	}
}

func (d *Directory) leaveLocked(conn *Conn, ch ChannelID) {
	if set, ok := d.members[ch]; ok {
		delete(set, conn.ID)
		if len(set) == 0 {
			delete(d.members, ch)
		}
	}
	delete(conn.channels, ch)
}

// MembersOf returns a snapshot copy of the channel's current membership.
// The snapshot reflects membership at the instant of the call and is never
// cached across calls.
func (d *Directory) MembersOf(ch ChannelID) []*Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set, ok := d.members[ch]
	if !ok {
		return nil
	}
	conns := make([]*Conn, 0, len(set))
	for _, conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// Channels returns a snapshot of the channels conn is currently a member of.
func (d *Directory) Channels(conn *Conn) []ChannelID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	chs := make([]ChannelID, 0, len(conn.channels))
	for ch := range conn.channels {
		chs = append(chs, ch)
	}
	return chs
}

// Member reports whether conn is currently a member of ch.
func (d *Directory) Member(conn *Conn, ch ChannelID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := conn.channels[ch]
	return ok
}
