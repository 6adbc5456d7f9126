package model

// Kind tags an Identity.  A request is always exactly one of these.
type Kind int

const (
	Anonymous Kind = iota
	Member
	Administrator
)

func (k Kind) String() string {
	switch k {
	case Member:
		return "member"
	case Administrator:
		return "admin"
	default:
		return "anonymous"
	}
}

// Identity is the per-request view of who is calling.  It is derived from the
// resolved session and never persisted.
type Identity struct {
	Kind     Kind
	Snapshot Snapshot // zero for Anonymous
}

// AnonymousIdentity is the identity of a request without a valid session.
var AnonymousIdentity = Identity{Kind: Anonymous}

// IdentityOf classifies a session snapshot.  Unknown roles degrade to Member
// so a tampered or stale role can never grant admin.
func IdentityOf(s Snapshot) Identity {
	if s.Role == RoleAdmin {
		return Identity{Kind: Administrator, Snapshot: s}
	}
	return Identity{Kind: Member, Snapshot: s}
}

// Authenticated reports whether the request carries a valid session.
func (i Identity) Authenticated() bool { return i.Kind != Anonymous }

// Allows reports whether the identity satisfies the required role.  Admins
// satisfy RoleUser as well.
func (i Identity) Allows(required Role) bool {
	switch i.Kind {
	case Administrator:
		return required == RoleUser || required == RoleAdmin
	case Member:
		return required == RoleUser
	default:
		return false
	}
}

// User returns the snapshot for templates, or nil for anonymous requests.
func (i Identity) User() *Snapshot {
	if !i.Authenticated() {
		return nil
	}
	s := i.Snapshot
	return &s
}
