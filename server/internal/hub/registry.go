package hub

// connection is the registry record for one open transport connection.
type connection struct {
	id ConnID

	// identity is nil until the connection authenticates.
	identity *UserIdentity

	sender Sender

	// rooms mirrors the room manager's membership for this connection.
	rooms map[string]struct{}
}

func (c *connection) authenticated() bool { return c.identity != nil }

// registry tracks every open connection. Loop-owned.
type registry struct {
	next  ConnID
	conns map[ConnID]*connection
}

func newRegistry() *registry {
	return &registry{conns: make(map[ConnID]*connection)}
}

// open allocates the next id and registers an unauthenticated connection.
func (r *registry) open(s Sender) *connection {
	r.next++
	c := &connection{
		id:     r.next,
		sender: s,
		rooms:  make(map[string]struct{}),
	}
	r.conns[c.id] = c
	return c
}

// close removes the record. Callers evict the connection from rooms and the
// user index first.
func (r *registry) close(id ConnID) {
	delete(r.conns, id)
}

func (r *registry) get(id ConnID) (*connection, bool) {
	c, ok := r.conns[id]
	return c, ok
}

func (r *registry) len() int { return len(r.conns) }
