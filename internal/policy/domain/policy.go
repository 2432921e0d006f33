package domain

// Action names a governed operation checked by the policy engine.
type Action string

const (
	ActionGovernanceView    Action = "governance.view"
	ActionGovernanceApprove Action = "governance.approve"
	ActionAdminManage       Action = "admin.manage"
	ActionAdminAudit        Action = "admin.audit"
)

// Subject is the caller as seen by the policy engine.
type Subject struct {
	UserID string
	Role   string
	Status string
}
