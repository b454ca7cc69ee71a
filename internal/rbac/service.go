package rbac

import (
	"sort"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Service resolves capabilities for roles.
type Service struct {
	table map[shared.Role][]string
}

// NewService constructs a Service over the built-in role table.
func NewService() *Service {
	return &Service{table: roleCapabilities}
}

// EffectivePermissions returns the sorted capability names granted to role.
func (s *Service) EffectivePermissions(role shared.Role) []string {
	if role == shared.RoleAdmin {
		perms := shared.AllScopes()
		sort.Strings(perms)
		return perms
	}
	table := roleCapabilities
	if s != nil && s.table != nil {
		table = s.table
	}
	perms := append([]string(nil), table[role]...)
	sort.Strings(perms)
	return perms
}

// Can reports whether actor holds capability.
func (s *Service) Can(actor shared.Actor, capability string) bool {
	if actor.IsZero() {
		return false
	}
	if actor.Role == shared.RoleAdmin {
		return true
	}
	return hasAnyPermission(s.EffectivePermissions(actor.Role), []string{capability})
}
