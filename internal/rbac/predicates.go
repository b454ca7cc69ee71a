package rbac

import (
	"fmt"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// IsAdmin reports whether actor is an administrator.
func IsAdmin(actor shared.Actor) bool {
	return !actor.IsZero() && actor.Role == shared.RoleAdmin
}

// CanManageBlogs reports whether actor may write blog content.
func CanManageBlogs(actor shared.Actor) bool {
	return IsAdmin(actor) || (!actor.IsZero() && actor.Role == shared.RoleBlogManager)
}

// OwnsOrAdmin reports whether actor owns the resource or is an administrator.
func OwnsOrAdmin(actor shared.Actor, ownerID int64) bool {
	if actor.IsZero() {
		return false
	}
	return actor.ID == ownerID || IsAdmin(actor)
}

// CanViewDocument applies document visibility rules.
func CanViewDocument(actor shared.Actor, doc DocumentAccess, membership Membership) bool {
	switch doc.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityPrivate:
		return !actor.IsZero() && actor.ID == doc.UploadedBy
	case VisibilityRestricted:
		if actor.IsZero() {
			return false
		}
		if actor.ID == doc.UploadedBy || IsAdmin(actor) {
			return true
		}
		if doc.CommitteeID != nil && membership.InCommittee {
			return true
		}
		return doc.ProjectID != nil && membership.InProject
	}
	return false
}

// Ensure returns shared.ErrForbidden wrapped with action when allowed is false.
func Ensure(allowed bool, action string) error {
	if allowed {
		return nil
	}
	return fmt.Errorf("%s: %w", action, shared.ErrForbidden)
}
