package relay

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openride/relay-gateway/pkg/auth"
)

// ErrConnectionNotFound is returned when looking up an unbound connection.
var ErrConnectionNotFound = errors.New("connection not found")

// Sender is the outbound side of a live connection. Enqueue hands a frame
// to the connection's own buffered outbound queue without blocking; it
// reports false when the buffer is full and the frame was dropped.
type Sender interface {
	Enqueue(frame []byte) bool
}

// Conn is a live connection with its bound identity. It is owned
// exclusively by the Registry: created on successful authentication,
// destroyed the instant the transport reports disconnection.
type Conn struct {
	ID          string
	Identity    auth.Identity
	ConnectedAt time.Time

	sender Sender

	// channels is mutated only under the Directory's lock.
	channels map[ChannelID]struct{}
}

// Registry tracks each live connection's bound identity. It is the single
// source of truth for identity binding; nothing is stored on the transport
// handle itself.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	dir *Directory
	log *zap.Logger
}

// NewRegistry creates a registry whose connections join and leave channels
// through dir.
func NewRegistry(dir *Directory, log *zap.Logger) *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
		dir:   dir,
		log:   log,
	}
}

// Bind creates a Connection for an already-verified identity and auto-joins
// its personal channel. Availability pools are never joined implicitly:
// a provider opts in via an explicit toggle.
func (r *Registry) Bind(connID string, identity auth.Identity, sender Sender) *Conn {
	conn := &Conn{
		ID:          connID,
		Identity:    identity,
		ConnectedAt: time.Now(),
		sender:      sender,
		channels:    make(map[ChannelID]struct{}),
	}

	r.mu.Lock()
	r.conns[connID] = conn
	r.mu.Unlock()

	// Personal channel membership is the one invariant of a bound
	// connection; the join cannot fail authorization.
	if err := r.dir.Join(conn, PersonalChannel(identity.ID)); err != nil {
		r.log.Error("personal channel join failed", zap.String("conn_id", connID), zap.Error(err))
	}

	r.log.Info("connection bound",
		zap.String("conn_id", connID),
		zap.String("identity_id", identity.ID),
		zap.String("role", string(identity.Role)),
	)
	return conn
}

// Unbind removes the connection and all its channel memberships. It is
// idempotent: unbinding a connection that was never bound is a no-op.
func (r *Registry) Unbind(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.dir.RemoveAll(conn)
	r.log.Info("connection unbound",
		zap.String("conn_id", connID),
		zap.String("identity_id", conn.Identity.ID),
	)
}

// Lookup returns the connection bound under connID.
func (r *Registry) Lookup(connID string) (*Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
