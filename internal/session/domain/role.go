package domain

// Role is one of the fixed team roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleRed      Role = "red"
	RoleBlue     Role = "blue"
	RoleObserver Role = "observer"
)

// DefaultRole is assumed when a token or request names none.
const DefaultRole = RoleObserver

// ParseRole validates s, mapping "" to DefaultRole.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case "":
		return DefaultRole, true
	case RoleAdmin, RoleRed, RoleBlue, RoleObserver:
		return r, true
	default:
		return "", false
	}
}

func (r Role) String() string { return string(r) }
