package membership

import "github.com/MrEthical07/goShield/permission"

// DefaultPermissions is the capability ceiling of a role.
func DefaultPermissions(role Role) permission.Set {
	switch role {
	case RoleOwner:
		return permission.Full()
	case RoleAdmin:
		return permission.SetOf(
			permission.Financial,
			permission.Values,
			permission.Reports,
			permission.Monitoring,
			permission.Records,
		)
	case RoleAuxiliary:
		return permission.SetOf(permission.Monitoring)
	}
	return permission.Set{}
}

// Effective merges overrides into the role defaults. Overrides only narrow: a false entry
// removes the capability, a true entry keeps it only if the role already had it. Owners
// ignore overrides.
func Effective(role Role, overrides map[permission.Name]bool) permission.Set {
	base := DefaultPermissions(role)
	if role == RoleOwner || len(overrides) == 0 {
		return base
	}

	granted := base
	for name, allowed := range overrides {
		if !allowed {
			granted = granted.Without(name)
		}
	}
	return granted.Intersect(base)
}

// ResolvePermission reports whether userID may exercise perm within a.
func ResolvePermission(a *Account, userID string, perm permission.Name) bool {
	if a == nil {
		return false
	}
	m, ok := a.Member(userID)
	if !ok {
		return false
	}
	if m.Role == RoleOwner {
		return true
	}
	return Effective(m.Role, m.Overrides).Has(perm)
}
