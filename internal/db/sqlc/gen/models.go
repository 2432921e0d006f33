package gen

import (
	"database/sql"
	"time"
)

type Approval struct {
	ID             string
	SessionID      string
	ApproverUserID string
	ApprovedAtUtc  time.Time
}

type ApprovalSession struct {
	ID                        string
	DesktopAppID              string
	AppType                   string
	Status                    string
	RequiredApprovalsSnapshot int32
	CreatedAtUtc              time.Time
	UnlockedAtUtc             sql.NullTime
	UnlockedUntilUtc          sql.NullTime
}

type AuditLog struct {
	ID           string
	AtUtc        time.Time
	Action       string
	ActorUserID  sql.NullString
	DesktopAppID sql.NullString
	AppType      sql.NullString
	SessionID    sql.NullString
	Details      sql.NullString
}

type AuthenticationLog struct {
	ID                  string
	DesktopAppID        string
	AppType             string
	EventType           string
	Success             bool
	Endpoint            sql.NullString
	IpAddress           sql.NullString
	UserAgent           sql.NullString
	ErrorMessage        sql.NullString
	TimestampUtc        time.Time
	MachineName         sql.NullString
	OsUser              sql.NullString
	TokenControlVersion sql.NullString
}

type Desktop struct {
	DesktopAppID        string
	AppType             string
	NameLabel           sql.NullString
	Status              string
	RequiredApprovalsN  int32
	UnlockMinutes       int32
	SecretKey           sql.NullString
	SecretKeyRotatedAt  sql.NullTime
	MachineName         sql.NullString
	OsUser              sql.NullString
	TokenControlVersion sql.NullString
	CreatedAtUtc        time.Time
	LastSeenAtUtc       sql.NullTime
}

type GovernanceAssignment struct {
	ID           string
	UserID       string
	DesktopAppID string
	AppType      string
	CreatedAtUtc time.Time
}

type User struct {
	ID        string
	Email     string
	Name      string
	Role      string
	Status    string
	CreatedAt time.Time
}
