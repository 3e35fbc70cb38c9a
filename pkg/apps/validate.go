package apps

import (
	"github.com/quartzlabs/apphub/pkg/roles"
)

// validateRoleMap checks a proposed app role map against the owning
// organization's membership. Every role value must be a known one, the map
// may contain at most one OWNER, and every entry must reference an
// organization member, checked in that order: a map naming two owners is
// rejected as such even when those users are not members. Pure; callers
// run it before any write.
func validateRoleMap(proposed map[int64]roles.AppRole, membership map[int64]roles.OrgRole) error {
	owners := 0
	for _, role := range proposed {
		// A present but unrecognized role value is rejected the same way
		// as a missing one.
		if !roles.ValidAppRole(role) {
			return ErrEmptyRequiredField
		}
		if role == roles.AppOwner {
			owners++
		}
	}
	if owners > 1 {
		return ErrMultipleOwners
	}
	for userID := range proposed {
		if _, ok := membership[userID]; !ok {
			return ErrUserDoesNotBelongToOrganization
		}
	}
	return nil
}

// validateSelfRoleChange rejects a proposed role map in which the caller's
// own role differs from their current one. A caller absent from the
// proposal is allowed to drop out of the map (wholesale replacement), but a
// caller present in it must keep exactly the role they already hold.
func validateSelfRoleChange(current, proposed map[int64]roles.AppRole, callerID int64) error {
	proposedRole, inProposed := proposed[callerID]
	if !inProposed {
		return nil
	}
	currentRole, inCurrent := current[callerID]
	if !inCurrent || currentRole != proposedRole {
		return ErrSelfRoleChange
	}
	return nil
}

// copyRoleMap returns a detached copy so stored state never aliases
// caller-owned maps.
func copyRoleMap(m map[int64]roles.AppRole) map[int64]roles.AppRole {
	if m == nil {
		return nil
	}
	out := make(map[int64]roles.AppRole, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
