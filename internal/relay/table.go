package relay

import "github.com/google/uuid"

// table - bounded, unordered set of live connections keyed by id.
// Owned by the relay loop, never shared.
type table struct {
	capacity int
	conns    map[uuid.UUID]*Connection
}

func newTable(capacity int) *table {
	return &table{
		capacity: capacity,
		conns:    make(map[uuid.UUID]*Connection, capacity),
	}
}

func (t *table) len() int {
	return len(t.conns)
}

func (t *table) insert(c *Connection) error {
	if len(t.conns) >= t.capacity {
		return ErrCapacityExceeded
	}
	t.conns[c.id] = c
	return nil
}

func (t *table) get(id uuid.UUID) (*Connection, bool) {
	c, ok := t.conns[id]
	return c, ok
}

func (t *table) remove(id uuid.UUID) bool {
	if _, ok := t.conns[id]; !ok {
		return false
	}
	delete(t.conns, id)
	return true
}

func (t *table) each(f func(*Connection)) {
	for _, c := range t.conns {
		f(c)
	}
}
