// Package orgs provides organization lookup and organization-membership
// reads for access-control decisions. Organization CRUD and membership
// mutation live in a separate administrative service; the app layer only
// needs to resolve organizations and ask who holds which role.
package orgs

import (
	"context"
	"errors"
	"time"

	"github.com/quartzlabs/apphub/pkg/roles"
)

// ErrNotFound is returned when no organization matches the lookup.
var ErrNotFound = errors.New("organization not found")

// Organization represents a tenant. GUID is the externally-facing
// identifier; ID is internal.
type Organization struct {
	ID        int64     `json:"id"`
	GUID      string    `json:"guid"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is one entry of an organization's membership map. A user holds at
// most one organization role per organization.
type Member struct {
	OrganizationID int64         `json:"organization_id"`
	UserID         int64         `json:"user_id"`
	Role           roles.OrgRole `json:"role"`
}

// Resolver resolves organizations by external identifier.
type Resolver interface {
	// GetOrganizationByGUID returns the organization, or ErrNotFound.
	GetOrganizationByGUID(ctx context.Context, guid string) (*Organization, error)
}

// MembershipStore reads the per-organization User -> OrgRole mapping.
// Absence of a role is reported explicitly; implementations must never
// substitute a default role.
type MembershipStore interface {
	// RoleOf returns the role the user holds in the organization. The
	// second result is false when the user is not a member.
	RoleOf(ctx context.Context, orgID, userID int64) (roles.OrgRole, bool, error)

	// ListMembers enumerates the organization's membership map.
	ListMembers(ctx context.Context, orgID int64) ([]Member, error)
}
