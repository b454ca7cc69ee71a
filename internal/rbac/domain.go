package rbac

import "github.com/kemosabixv/rcng-pwa-sub001/internal/shared"

// roleCapabilities is the static role table. Admin is granted everything in
// shared.AllScopes and is resolved separately.
var roleCapabilities = map[shared.Role][]string{
	shared.RoleMember: {
		shared.PermDuesView,
		shared.PermQuotationsView,
		shared.PermDocumentsUpload,
		shared.PermProjectsCreate,
	},
	shared.RoleBlogManager: {
		shared.PermDuesView,
		shared.PermQuotationsView,
		shared.PermDocumentsUpload,
		shared.PermProjectsCreate,
		shared.PermBlogManage,
		shared.PermEventsManage,
	},
}

// Document visibility levels understood by CanViewDocument.
const (
	VisibilityPublic     = "public"
	VisibilityPrivate    = "private"
	VisibilityRestricted = "restricted"
)

// DocumentAccess is the subset of a document that decides who may view it.
type DocumentAccess struct {
	Visibility  string
	UploadedBy  int64
	CommitteeID *int64
	ProjectID   *int64
}

// Membership records whether the actor belongs to the document's linked
// committee or project.
type Membership struct {
	InCommittee bool
	InProject   bool
}
