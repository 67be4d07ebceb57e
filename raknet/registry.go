package raknet

import (
	"net"
	"net/netip"
	"slices"
)

// registry maps peer addresses to their connections. It is guarded by the listener's lock.
type registry struct {
	connections map[netip.AddrPort]*Connection
}

func newRegistry() *registry {
	return &registry{
		connections: map[netip.AddrPort]*Connection{},
	}
}

// Returns the registry key of a UDP address. IPv4 addresses mapped into IPv6 share the key of
// the plain IPv4 address.
func addrKey(addr *net.UDPAddr) netip.AddrPort {
	ap := addr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func (r *registry) get(key netip.AddrPort) *Connection {
	return r.connections[key]
}

func (r *registry) exists(key netip.AddrPort) bool {
	_, ok := r.connections[key]
	return ok
}

// Registers the connection under its peer address. Returns ErrDuplicateSession if the address
// already has a connection.
func (r *registry) add(c *Connection) error {
	if r.exists(c.key) {
		return ErrDuplicateSession
	}

	r.connections[c.key] = c
	return nil
}

// Removes the connection if it is the one registered under its address.
func (r *registry) remove(c *Connection) bool {
	if r.connections[c.key] != c {
		return false
	}

	delete(r.connections, c.key)
	return true
}

func (r *registry) len() int {
	return len(r.connections)
}

// Returns the registered connections ordered by address.
func (r *registry) snapshot() []*Connection {
	conns := make([]*Connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}

	slices.SortFunc(conns, func(a, b *Connection) int {
		return a.key.Compare(b.key)
	})
	return conns
}
