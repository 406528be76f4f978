package models

import (
	"strings"

	dErrors "keystone/pkg/domain-errors"
)

// Role is a user's role within a tenant or for an app. The set is closed.
type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
)

// DefaultAppRole is used when a grant was stored without a role.
const DefaultAppRole = RoleUser

var roleRank = map[Role]int{
	RoleUser:  1,
	RoleAgent: 2,
	RoleAdmin: 3,
	RoleOwner: 4,
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleRank[r]; !ok {
		return "", dErrors.New(dErrors.CodeValidation, "role must be one of owner, admin, agent, user")
	}
	return r, nil
}

func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// CanAdminister reports whether the role may manage a tenant's members and grants.
func (r Role) CanAdminister() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Outranks reports whether r is strictly above other.
func (r Role) Outranks(other Role) bool {
	return roleRank[r] > roleRank[other]
}

func (r Role) String() string { return string(r) }
