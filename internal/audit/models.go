package audit

import "time"

// Event records one security-relevant action. It carries identifiers only:
// never tokens, passwords, or secrets.
type Event struct {
	Timestamp time.Time
	Action    Action
	ActorID   string // who performed the action
	SubjectID string // whose account or access was affected
	TenantID  string
	AppSlug   string
	Decision  string // granted | denied | ""
	Reason    string
	RequestID string
}

type Action string

const (
	ActionSSOIssued       Action = "sso_token_issued"
	ActionSSODenied       Action = "sso_issue_denied"
	ActionLoginSucceeded  Action = "login_succeeded"
	ActionLoginFailed     Action = "login_failed"
	ActionLogout          Action = "logout"
	ActionPasswordChanged Action = "password_changed"
	ActionRecoveryIssued  Action = "recovery_link_issued"
	ActionPasswordRecover Action = "password_recovered"
	ActionTenantCreated   Action = "tenant_created"
	ActionAppCreated      Action = "app_created"
	ActionMemberInvited   Action = "member_invited"
	ActionMemberUpdated   Action = "member_updated"
	ActionMemberRemoved   Action = "member_removed"
	ActionAccountLocked   Action = "account_locked"
	ActionAccountUnlocked Action = "account_unlocked"
	ActionGrantSet        Action = "app_grant_set"
	ActionGrantRevoked    Action = "app_grant_revoked"
	ActionTenantSwitched  Action = "tenant_switched"
)
