package models

// TenantAccess is a tenant the user belongs to, with their role there.
type TenantAccess struct {
	Tenant *Tenant
	Role   Role
}

// Member is a membership enriched with the identity fields admins see.
type Member struct {
	Membership
	Email         string
	Name          string
	AccountLocked bool
	MustReset     bool
}
