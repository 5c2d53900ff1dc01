// Package access implements the capability checks consumed by the
// payroll core. Role bootstrap and transfer policy live outside the
// core; this registry only answers allow/deny.
package access

import "sync"

// Identity is an opaque 32-byte principal key.
type Identity [32]byte

// Role is a capability granted to an identity.
type Role uint8

const (
	// RoleAdmin may open and close batches and pause the system.
	RoleAdmin Role = iota + 1

	// RoleProvider may submit contributions and request decryptions.
	RoleProvider

	// RoleOracle may deliver decryption callbacks.
	RoleOracle
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleProvider:
		return "provider"
	case RoleOracle:
		return "oracle"
	default:
		return "unknown"
	}
}

// Control holds role grants and the pause flag.
// It is safe for concurrent access.
type Control struct {
	mu     sync.RWMutex
	roles  map[Identity]map[Role]bool
	paused bool
}

// NewControl creates an empty access control registry.
func NewControl() *Control {
	return &Control{
		roles: make(map[Identity]map[Role]bool),
	}
}

// Grant gives an identity a role. Returns false if already granted.
func (c *Control) Grant(id Identity, role Role) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.roles[id] == nil {
		c.roles[id] = make(map[Role]bool)
	}

	if c.roles[id][role] {
		return false
	}

	c.roles[id][role] = true

	return true
}

// Revoke removes a role from an identity.
func (c *Control) Revoke(id Identity, role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.roles[id] != nil {
		delete(c.roles[id], role)
	}
}

// Has reports whether the identity holds the role.
func (c *Control) Has(id Identity, role Role) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.roles[id][role]
}

// Pause halts all state-mutating core operations.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = true
}

// Unpause resumes core operations.
func (c *Control) Unpause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = false
}

// Paused reports whether the system is paused.
func (c *Control) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.paused
}
