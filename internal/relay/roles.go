package relay

import "strings"

// Role - a capability granted to a connection.
type Role uint8

const (
	// CanReceive - the connection is subscribed to broadcasts (/listen).
	CanReceive Role = 1 << iota
	// CanSend - the connection has claimed a nickname and may post (/nick).
	CanSend
)

// Roles is a set of Role values.
type Roles uint8

// RolesOf builds a set from the given roles.
func RolesOf(roles ...Role) Roles {
	var s Roles
	for _, r := range roles {
		s = s.With(r)
	}
	return s
}

// Has reports whether r is in the set.
func (s Roles) Has(r Role) bool {
	return s&Roles(r) != 0
}

// Intersects reports whether the two sets share at least one role.
func (s Roles) Intersects(other Roles) bool {
	return s&other != 0
}

// With returns the set extended by r.
func (s Roles) With(r Role) Roles {
	return s | Roles(r)
}

func (s Roles) String() string {
	var names []string
	if s.Has(CanReceive) {
		names = append(names, "receive")
	}
	if s.Has(CanSend) {
		names = append(names, "send")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}
