package memory

import (
	approvalrepo "github.com/commentors-net/Aegis-Mint/internal/approval/repository"
	assignmentrepo "github.com/commentors-net/Aegis-Mint/internal/assignment/repository"
	auditrepo "github.com/commentors-net/Aegis-Mint/internal/audit/repository"
	desktoprepo "github.com/commentors-net/Aegis-Mint/internal/desktop/repository"
	userrepo "github.com/commentors-net/Aegis-Mint/internal/user/repository"
)

var (
	_ approvalrepo.Store        = (*Store)(nil)
	_ desktoprepo.Repository    = (*DesktopRepository)(nil)
	_ userrepo.Repository       = (*UserRepository)(nil)
	_ assignmentrepo.Repository = (*AssignmentRepository)(nil)
	_ auditrepo.Repository      = (*AuditRepository)(nil)
)
