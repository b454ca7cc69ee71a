package shared

// Role is the coarse account role stored on every user.
type Role string

// Account roles.
const (
	RoleAdmin       Role = "admin"
	RoleMember      Role = "member"
	RoleBlogManager Role = "blog_manager"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleBlogManager:
		return true
	}
	return false
}

// Capabilities granted through roles.
const (
	PermUsersView   = "users.view"
	PermUsersManage = "users.manage"

	PermCommitteesManage = "committees.manage"
	PermProjectsCreate   = "projects.create"
	PermProjectsManage   = "projects.manage"

	PermDuesView   = "dues.view"
	PermDuesManage = "dues.manage"

	PermQuotationsView   = "quotations.view"
	PermQuotationsManage = "quotations.manage"

	PermDocumentsUpload = "documents.upload"
	PermDocumentsManage = "documents.manage"

	PermBlogManage   = "blog.manage"
	PermEventsManage = "events.manage"

	PermStatsView = "stats.view"
	PermJobsView  = "jobs.view"
	PermAuditView = "audit.view"
)

// AllScopes lists every capability known to the platform.
func AllScopes() []string {
	return []string{
		PermUsersView,
		PermUsersManage,
		PermCommitteesManage,
		PermProjectsCreate,
		PermProjectsManage,
		PermDuesView,
		PermDuesManage,
		PermQuotationsView,
		PermQuotationsManage,
		PermDocumentsUpload,
		PermDocumentsManage,
		PermBlogManage,
		PermEventsManage,
		PermStatsView,
		PermJobsView,
		PermAuditView,
	}
}
