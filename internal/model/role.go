package model

// Role is the closed set of account roles. Anything read from storage or a
// token that is not one of these constants must be normalised before use.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole returns the Role for s, or false if s names no known role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Normalize maps unknown roles to RoleUser.
func (r Role) Normalize() Role {
	if r.Valid() {
		return r
	}
	return RoleUser
}
