// Package apps implements multi-tenant app management with two overlapping
// role hierarchies: the caller's organization role and their per-app role.
// Every operation authorizes the caller against the app's owning
// organization before touching anything, and all role-map invariants are
// enforced at mutation time, before any write.
package apps

import (
	"context"
	"time"

	"github.com/quartzlabs/apphub/pkg/roles"
	"github.com/quartzlabs/apphub/pkg/users"
)

// App represents an application owned by an organization. GUID doubles as
// the app's API credential: it is globally unique, regenerable, and a
// regenerated guid is never reused. Roles maps user id to the app role that
// user holds on this app.
type App struct {
	ID               int64                    `json:"id"`
	GUID             string                   `json:"guid"`
	Name             string                   `json:"name"`
	OrganizationID   int64                    `json:"organization_id"`
	OrganizationGUID string                   `json:"organization_guid"`
	Roles            map[int64]roles.AppRole  `json:"roles,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// HasRole reports whether the user holds any app role on the app.
func (a *App) HasRole(userID int64) bool {
	_, ok := a.Roles[userID]
	return ok
}

// RoleOf returns the app role the user holds, with ok=false when absent.
func (a *App) RoleOf(userID int64) (roles.AppRole, bool) {
	r, ok := a.Roles[userID]
	return r, ok
}

// UserAppRole is one queryable entry of an app's membership: which user
// holds which role on which app.
type UserAppRole struct {
	User  users.User    `json:"user"`
	AppID int64         `json:"app_id"`
	Role  roles.AppRole `json:"role"`
}

// AppDraft carries the caller-supplied fields for app creation. The role
// map is taken as given; no owner entry is auto-populated.
type AppDraft struct {
	Name  string                  `json:"name"`
	Roles map[int64]roles.AppRole `json:"roles,omitempty"`
}

// AppUpdate carries field-level patch semantics for app updates. An empty
// Name leaves the name unchanged. A non-empty Roles map replaces the app's
// role map wholesale after validation; an empty or nil map leaves the
// stored roles untouched. The guid is never updatable.
type AppUpdate struct {
	Name  string                  `json:"name,omitempty"`
	Roles map[int64]roles.AppRole `json:"roles,omitempty"`
}

// Directory is the persistence contract the service operates through.
type Directory interface {
	// FindByGUID returns the app with the given guid, or ErrNotFound.
	FindByGUID(ctx context.Context, guid string) (*App, error)

	// FindAllByOrganization returns every app owned by the organization.
	FindAllByOrganization(ctx context.Context, orgID int64) ([]*App, error)

	// FindAllByOrganizationAndUser returns the organization's apps on
	// which the user holds an app role.
	FindAllByOrganizationAndUser(ctx context.Context, orgID, userID int64) ([]*App, error)

	// ExistsByNameInOrganization reports whether another app of the
	// organization already uses the name (case-sensitive). excludeAppID
	// is ignored when zero.
	ExistsByNameInOrganization(ctx context.Context, name string, orgID, excludeAppID int64) (bool, error)

	// Save persists the app and its role map wholesale, inserting when
	// the app has no id yet.
	Save(ctx context.Context, app *App) (*App, error)

	// DeleteByID removes the app and cascades its role entries.
	DeleteByID(ctx context.Context, id int64) error
}
