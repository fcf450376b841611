package identity

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleGuest, RoleMember, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleGuest:  0,
		RoleMember: 1,
		RoleAdmin:  2,
		RoleOwner:  3,
	}

	level, ok := roleHierarchy[r]
	if !ok {
		return false
	}

	minLevel, ok := roleHierarchy[minRole]
	if !ok {
		return false
	}

	return level >= minLevel
}

// NormalizeRoles filters a requested role set down to the closed role
// vocabulary, dropping unknown tags and deduplicating. An empty result
// falls back to the member role.
func NormalizeRoles(requested []string) []UserRole {
	seen := map[UserRole]struct{}{}
	roles := make([]UserRole, 0, len(requested))

	for _, raw := range requested {
		role := UserRole(raw)
		if !role.IsValid() {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}

	if len(roles) == 0 {
		roles = append(roles, RoleMember)
	}

	return roles
}

// PrimaryRole picks the highest privileged role out of a set. Users store
// a single role column; registration requests may carry a set of tags.
func PrimaryRole(roles []UserRole) UserRole {
	primary := RoleGuest
	for _, role := range roles {
		if role.IsAtLeast(primary) {
			primary = role
		}
	}
	return primary
}
