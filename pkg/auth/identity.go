package auth

// Role is the side of the marketplace an identity acts on.
type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleRequester || r == RoleProvider
}

// Identity is the authenticated principal bound to a connection. It is
// derived once from a verified token and immutable for the connection's
// lifetime.
type Identity struct {
	ID    string
	Role  Role
	Email string
}
