package apps

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzlabs/apphub/pkg/observability"
	"github.com/quartzlabs/apphub/pkg/orgs"
	"github.com/quartzlabs/apphub/pkg/roles"
	"github.com/quartzlabs/apphub/pkg/users"
)

// fakeDirectory is an in-memory Directory keyed by app id.
type fakeDirectory struct {
	apps   map[int64]*App
	nextID int64
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{apps: make(map[int64]*App), nextID: 100}
}

func (d *fakeDirectory) FindByGUID(_ context.Context, guid string) (*App, error) {
	for _, app := range d.apps {
		if app.GUID == guid {
			return d.clone(app), nil
		}
	}
	return nil, ErrNotFound
}

func (d *fakeDirectory) FindAllByOrganization(_ context.Context, orgID int64) ([]*App, error) {
	var result []*App
	for _, app := range d.apps {
		if app.OrganizationID == orgID {
			result = append(result, d.clone(app))
		}
	}
	return result, nil
}

func (d *fakeDirectory) FindAllByOrganizationAndUser(_ context.Context, orgID, userID int64) ([]*App, error) {
	var result []*App
	for _, app := range d.apps {
		if app.OrganizationID == orgID && app.HasRole(userID) {
			result = append(result, d.clone(app))
		}
	}
	return result, nil
}

func (d *fakeDirectory) ExistsByNameInOrganization(_ context.Context, name string, orgID, excludeAppID int64) (bool, error) {
	for _, app := range d.apps {
		if app.OrganizationID == orgID && app.Name == name && app.ID != excludeAppID {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDirectory) Save(_ context.Context, app *App) (*App, error) {
	if app.ID == 0 {
		d.nextID++
		app.ID = d.nextID
	}
	d.apps[app.ID] = d.clone(app)
	return d.clone(app), nil
}

func (d *fakeDirectory) DeleteByID(_ context.Context, id int64) error {
	if _, ok := d.apps[id]; !ok {
		return ErrNotFound
	}
	delete(d.apps, id)
	return nil
}

func (d *fakeDirectory) clone(app *App) *App {
	copied := *app
	copied.Roles = copyRoleMap(app.Roles)
	return &copied
}

// stored returns the persisted state of an app for assertions.
func (d *fakeDirectory) stored(id int64) *App {
	return d.apps[id]
}

// fakeUserDir is an in-memory users.Directory.
type fakeUserDir struct {
	byID map[int64]*users.User
}

func (d *fakeUserDir) FindByID(_ context.Context, id int64) (*users.User, error) {
	if u, ok := d.byID[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, users.ErrNotFound
}

func (d *fakeUserDir) FindByEmail(_ context.Context, email string) (*users.User, error) {
	for _, u := range d.byID {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, users.ErrNotFound
}

// fakeOrgDir is an in-memory orgs.Resolver plus orgs.MembershipStore.
type fakeOrgDir struct {
	orgs    map[string]*orgs.Organization
	members map[int64]map[int64]roles.OrgRole
}

func (d *fakeOrgDir) GetOrganizationByGUID(_ context.Context, guid string) (*orgs.Organization, error) {
	if org, ok := d.orgs[guid]; ok {
		copied := *org
		return &copied, nil
	}
	return nil, orgs.ErrNotFound
}

func (d *fakeOrgDir) RoleOf(_ context.Context, orgID, userID int64) (roles.OrgRole, bool, error) {
	role, ok := d.members[orgID][userID]
	return role, ok, nil
}

func (d *fakeOrgDir) ListMembers(_ context.Context, orgID int64) ([]orgs.Member, error) {
	var result []orgs.Member
	for userID, role := range d.members[orgID] {
		result = append(result, orgs.Member{OrganizationID: orgID, UserID: userID, Role: role})
	}
	return result, nil
}

// fixture wires a service over in-memory collaborators with one
// organization and a standard cast of members.
type fixture struct {
	svc     *Service
	apps    *fakeDirectory
	userDir *fakeUserDir
	orgDir  *fakeOrgDir
}

const (
	orgGUID    = "org-guid"
	orgID      = int64(1)
	ownerID    = int64(10) // org OWNER
	adminID    = int64(11) // org ADMINISTRATOR
	memberID   = int64(12) // org USER
	member2ID  = int64(13) // org USER
	strangerID = int64(99) // not in the organization
)

func newFixture() *fixture {
	appDir := newFakeDirectory()
	userDir := &fakeUserDir{byID: map[int64]*users.User{
		ownerID:    {ID: ownerID, Email: "owner@acme.test", FirstName: "Olive", LastName: "Owner"},
		adminID:    {ID: adminID, Email: "admin@acme.test", FirstName: "Ada", LastName: "Admin"},
		memberID:   {ID: memberID, Email: "will.smith@acme.test", FirstName: "Will", LastName: "Smith"},
		member2ID:  {ID: member2ID, Email: "maria.smith@acme.test", FirstName: "Maria", LastName: "Smith"},
		strangerID: {ID: strangerID, Email: "steve.jobs@other.test", FirstName: "Steve", LastName: "Jobs"},
	}}
	orgDir := &fakeOrgDir{
		orgs: map[string]*orgs.Organization{
			orgGUID: {ID: orgID, GUID: orgGUID, Name: "Acme"},
		},
		members: map[int64]map[int64]roles.OrgRole{
			orgID: {
				ownerID:   roles.OrgOwner,
				adminID:   roles.OrgAdministrator,
				memberID:  roles.OrgUser,
				member2ID: roles.OrgUser,
			},
		},
	}
	return &fixture{
		svc:     NewService(appDir, userDir, orgDir, orgDir, nil, nil),
		apps:    appDir,
		userDir: userDir,
		orgDir:  orgDir,
	}
}

// seedApp persists an app directly through the fake.
func (f *fixture) seedApp(t *testing.T, guid, name string, roleMap map[int64]roles.AppRole) *App {
	t.Helper()
	app, err := f.apps.Save(context.Background(), &App{
		GUID:             guid,
		Name:             name,
		OrganizationID:   orgID,
		OrganizationGUID: orgGUID,
		Roles:            roleMap,
	})
	require.NoError(t, err)
	return app
}

func TestGetApp(t *testing.T) {
	ctx := context.Background()

	t.Run("org admin reads without app role", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		app, err := f.svc.GetApp(ctx, "app-guid", adminID)
		require.NoError(t, err)
		assert.Equal(t, "billing", app.Name)
	})

	t.Run("org owner reads without app role", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		_, err := f.svc.GetApp(ctx, "app-guid", ownerID)
		assert.NoError(t, err)
	})

	t.Run("plain member needs an app role", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{memberID: roles.AppUser})

		app, err := f.svc.GetApp(ctx, "app-guid", memberID)
		require.NoError(t, err)
		assert.Equal(t, "app-guid", app.GUID)

		_, err = f.svc.GetApp(ctx, "app-guid", member2ID)
		assert.ErrorIs(t, err, ErrInsufficientPrivileges)
	})

	t.Run("non-member is rejected even with a stale app role", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{strangerID: roles.AppOwner})

		_, err := f.svc.GetApp(ctx, "app-guid", strangerID)
		assert.ErrorIs(t, err, ErrUserDoesNotBelongToOrganization)
	})

	t.Run("unknown guid", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.GetApp(ctx, "nope", adminID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGetApps(t *testing.T) {
	ctx := context.Background()

	t.Run("admin sees every app", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "a1", "alpha", nil)
		f.seedApp(t, "a2", "beta", map[int64]roles.AppRole{memberID: roles.AppUser})

		apps, err := f.svc.GetApps(ctx, orgGUID, adminID)
		require.NoError(t, err)
		assert.Len(t, apps, 2)
	})

	t.Run("plain member sees only their apps", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "a1", "alpha", nil)
		f.seedApp(t, "a2", "beta", map[int64]roles.AppRole{memberID: roles.AppUser})

		apps, err := f.svc.GetApps(ctx, orgGUID, memberID)
		require.NoError(t, err)
		require.Len(t, apps, 1)
		assert.Equal(t, "a2", apps[0].GUID)
	})

	t.Run("non-member", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.GetApps(ctx, orgGUID, strangerID)
		assert.ErrorIs(t, err, ErrUserDoesNotBelongToOrganization)
	})

	t.Run("unknown organization", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.GetApps(ctx, "missing-org", adminID)
		assert.ErrorIs(t, err, orgs.ErrNotFound)
	})
}

func TestCreateApp(t *testing.T) {
	ctx := context.Background()

	t.Run("admin creates app with fresh guid", func(t *testing.T) {
		f := newFixture()

		app, err := f.svc.CreateApp(ctx, orgGUID, AppDraft{Name: "billing"}, adminID)
		require.NoError(t, err)
		assert.NotEmpty(t, app.GUID)
		assert.NotZero(t, app.ID)
		assert.Equal(t, orgID, app.OrganizationID)

		fetched, err := f.svc.GetApp(ctx, app.GUID, adminID)
		require.NoError(t, err)
		assert.Equal(t, "billing", fetched.Name)
	})

	t.Run("draft role map is taken as given", func(t *testing.T) {
		f := newFixture()

		app, err := f.svc.CreateApp(ctx, orgGUID, AppDraft{
			Name:  "billing",
			Roles: map[int64]roles.AppRole{memberID: roles.AppOwner},
		}, adminID)
		require.NoError(t, err)
		role, ok := app.RoleOf(memberID)
		require.True(t, ok)
		assert.Equal(t, roles.AppOwner, role)
		// The creator gets no implicit entry.
		assert.False(t, app.HasRole(adminID))
	})

	t.Run("plain member cannot create", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.CreateApp(ctx, orgGUID, AppDraft{Name: "billing"}, memberID)
		assert.ErrorIs(t, err, ErrInsufficientPrivileges)
	})

	t.Run("empty name", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.CreateApp(ctx, orgGUID, AppDraft{}, adminID)
		assert.ErrorIs(t, err, ErrEmptyRequiredField)
		assert.Empty(t, f.apps.apps)
	})

	t.Run("duplicate name in organization", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "a1", "billing", nil)

		_, err := f.svc.CreateApp(ctx, orgGUID, AppDraft{Name: "billing"}, adminID)
		assert.ErrorIs(t, err, ErrNameIsNotUnique)
		assert.Len(t, f.apps.apps, 1)
	})

	t.Run("draft role map referencing a non-member", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.CreateApp(ctx, orgGUID, AppDraft{
			Name:  "billing",
			Roles: map[int64]roles.AppRole{strangerID: roles.AppUser},
		}, adminID)
		assert.ErrorIs(t, err, ErrUserDoesNotBelongToOrganization)
		assert.Empty(t, f.apps.apps)
	})

	t.Run("draft role map with two owners", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.CreateApp(ctx, orgGUID, AppDraft{
			Name: "billing",
			Roles: map[int64]roles.AppRole{
				memberID:  roles.AppOwner,
				member2ID: roles.AppOwner,
			},
		}, adminID)
		assert.ErrorIs(t, err, ErrMultipleOwners)
		assert.Empty(t, f.apps.apps)
	})
}

func TestUpdateApp(t *testing.T) {
	ctx := context.Background()

	t.Run("rename", func(t *testing.T) {
		f := newFixture()
		seeded := f.seedApp(t, "app-guid", "billing", nil)

		updated, err := f.svc.UpdateApp(ctx, "app-guid", AppUpdate{Name: "payments"}, adminID)
		require.NoError(t, err)
		assert.Equal(t, "payments", updated.Name)
		assert.Equal(t, "app-guid", updated.GUID)
		assert.Equal(t, "payments", f.apps.stored(seeded.ID).Name)
	})

	t.Run("rename to a taken name", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "a1", "billing", nil)
		seeded := f.seedApp(t, "a2", "payments", nil)

		_, err := f.svc.UpdateApp(ctx, "a2", AppUpdate{Name: "billing"}, adminID)
		assert.ErrorIs(t, err, ErrNameIsNotUnique)
		assert.Equal(t, "payments", f.apps.stored(seeded.ID).Name)
	})

	t.Run("keeping own name is not a collision", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		_, err := f.svc.UpdateApp(ctx, "app-guid", AppUpdate{Name: "billing"}, adminID)
		assert.NoError(t, err)
	})

	t.Run("role map is replaced wholesale", func(t *testing.T) {
		f := newFixture()
		seeded := f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{
			memberID:  roles.AppUser,
			member2ID: roles.AppUser,
		})

		updated, err := f.svc.UpdateApp(ctx, "app-guid", AppUpdate{
			Roles: map[int64]roles.AppRole{member2ID: roles.AppOwner},
		}, adminID)
		require.NoError(t, err)
		assert.False(t, updated.HasRole(memberID))
		role, ok := updated.RoleOf(member2ID)
		require.True(t, ok)
		assert.Equal(t, roles.AppOwner, role)
		assert.Len(t, f.apps.stored(seeded.ID).Roles, 1)
	})

	t.Run("org owner promotes another member then cannot add a second owner", func(t *testing.T) {
		f := newFixture()
		seeded := f.seedApp(t, "app-guid", "billing", nil)

		updated, err := f.svc.UpdateApp(ctx, "app-guid", AppUpdate{
			Roles: map[int64]roles.AppRole{memberID: roles.AppOwner},
		}, ownerID)
		require.NoError(t, err)
		assert.Equal(t, map[int64]roles.AppRole{memberID: roles.AppOwner}, updated.Roles)

		_, err = f.svc.UpdateApp(ctx, "app-guid", AppUpdate{
			Roles: map[int64]roles.AppRole{
				memberID: roles.AppOwner,
				ownerID:  roles.AppOwner,
			},
		}, ownerID)
		assert.ErrorIs(t, err, ErrMultipleOwners)
		assert.Equal(t, map[int64]roles.AppRole{memberID: roles.AppOwner}, f.apps.stored(seeded.ID).Roles)
	})

	t.Run("caller cannot change their own role", func(t *testing.T) {
		f := newFixture()
		seeded := f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{
			memberID: roles.AppUser,
		})

		_, err := f.svc.UpdateApp(ctx, "app-guid", AppUpdate{
			Roles: map[int64]roles.AppRole{memberID: roles.AppOwner},
		}, memberID)
		assert.ErrorIs(t, err, ErrSelfRoleChange)
		assert.Equal(t, roles.AppUser, f.apps.stored(seeded.ID).Roles[memberID])
	})

	t.Run("role map referencing a non-member", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		_, err := f.svc.UpdateApp(ctx, "app-guid", AppUpdate{
			Roles: map[int64]roles.AppRole{strangerID: roles.AppUser},
		}, adminID)
		assert.ErrorIs(t, err, ErrUserDoesNotBelongToOrganization)
	})

	t.Run("two non-member owners report multiple owners", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		_, err := f.svc.UpdateApp(ctx, "app-guid", AppUpdate{
			Roles: map[int64]roles.AppRole{
				strangerID: roles.AppOwner,
				98:         roles.AppOwner,
			},
		}, adminID)
		assert.ErrorIs(t, err, ErrMultipleOwners)
	})

	t.Run("plain member without app role cannot update", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		_, err := f.svc.UpdateApp(ctx, "app-guid", AppUpdate{Name: "payments"}, memberID)
		assert.ErrorIs(t, err, ErrInsufficientPrivileges)
	})

	t.Run("app-role holder may update", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{memberID: roles.AppUser})

		updated, err := f.svc.UpdateApp(ctx, "app-guid", AppUpdate{Name: "payments"}, memberID)
		require.NoError(t, err)
		assert.Equal(t, "payments", updated.Name)
	})

	t.Run("non-member", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		_, err := f.svc.UpdateApp(ctx, "app-guid", AppUpdate{Name: "x"}, strangerID)
		assert.ErrorIs(t, err, ErrUserDoesNotBelongToOrganization)
	})
}

func TestRegenerateAPIKey(t *testing.T) {
	ctx := context.Background()

	t.Run("old guid stops resolving", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		regenerated, err := f.svc.RegenerateAPIKey(ctx, "app-guid", adminID)
		require.NoError(t, err)
		assert.NotEqual(t, "app-guid", regenerated.GUID)

		_, err = f.svc.GetApp(ctx, regenerated.GUID, adminID)
		assert.NoError(t, err)

		_, err = f.svc.GetApp(ctx, "app-guid", adminID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("app owner without org write access", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{memberID: roles.AppOwner})

		_, err := f.svc.RegenerateAPIKey(ctx, "app-guid", memberID)
		assert.NoError(t, err)
	})

	t.Run("app user is not enough", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{memberID: roles.AppUser})

		_, err := f.svc.RegenerateAPIKey(ctx, "app-guid", memberID)
		assert.ErrorIs(t, err, ErrInsufficientPrivileges)
	})
}

func TestDeleteApp(t *testing.T) {
	ctx := context.Background()

	t.Run("admin deletes, roles discarded", func(t *testing.T) {
		f := newFixture()
		seeded := f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{memberID: roles.AppUser})

		require.NoError(t, f.svc.DeleteApp(ctx, "app-guid", adminID))
		assert.Nil(t, f.apps.stored(seeded.ID))

		_, err := f.svc.GetApp(ctx, "app-guid", adminID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("app owner deletes", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{memberID: roles.AppOwner})

		assert.NoError(t, f.svc.DeleteApp(ctx, "app-guid", memberID))
	})

	t.Run("app user cannot delete", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{memberID: roles.AppUser})

		err := f.svc.DeleteApp(ctx, "app-guid", memberID)
		assert.ErrorIs(t, err, ErrInsufficientPrivileges)
	})
}

func TestGetAppUsers(t *testing.T) {
	ctx := context.Background()

	seedSmiths := func(t *testing.T) *fixture {
		f := newFixture()
		// Steve Jobs is not an org member in the fixture, so build the
		// cast from members: two Smiths and one non-Smith.
		f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{
			memberID:  roles.AppUser,  // Will Smith
			member2ID: roles.AppUser,  // Maria Smith
			adminID:   roles.AppOwner, // Ada Admin
		})
		return f
	}

	t.Run("substring match is case-insensitive", func(t *testing.T) {
		f := seedSmiths(t)

		for _, term := range []string{"smith", "SMITH", "Smith"} {
			result, err := f.svc.GetAppUsers(ctx, term, orgGUID, "app-guid", adminID)
			require.NoError(t, err)
			require.Len(t, result, 2, "term %q", term)
			assert.Equal(t, "Will", result[0].User.FirstName)
			assert.Equal(t, "Maria", result[1].User.FirstName)
		}
	})

	t.Run("empty term matches everyone", func(t *testing.T) {
		f := seedSmiths(t)

		result, err := f.svc.GetAppUsers(ctx, "", orgGUID, "app-guid", adminID)
		require.NoError(t, err)
		assert.Len(t, result, 3)
	})

	t.Run("matches against email too", func(t *testing.T) {
		f := seedSmiths(t)

		result, err := f.svc.GetAppUsers(ctx, "maria.smith@", orgGUID, "app-guid", adminID)
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, member2ID, result[0].User.ID)
	})

	t.Run("app in a different organization", func(t *testing.T) {
		f := seedSmiths(t)

		_, err := f.svc.GetAppUsers(ctx, "", "other-org", "app-guid", adminID)
		assert.ErrorIs(t, err, ErrAppDoesNotBelongToOrganization)
	})

	t.Run("member with app role may list", func(t *testing.T) {
		f := seedSmiths(t)

		result, err := f.svc.GetAppUsers(ctx, "", orgGUID, "app-guid", memberID)
		require.NoError(t, err)
		assert.Len(t, result, 3)
	})

	t.Run("member without app role may not", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		_, err := f.svc.GetAppUsers(ctx, "", orgGUID, "app-guid", memberID)
		assert.ErrorIs(t, err, ErrInsufficientPrivileges)
	})
}

func TestAccessDecisionMetrics(t *testing.T) {
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	m := observability.NewMetrics(registry)

	f := newFixture()
	svc := NewService(f.apps, f.userDir, f.orgDir, f.orgDir, nil, m)
	f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{memberID: roles.AppUser})

	_, err := svc.GetApp(ctx, "app-guid", adminID)
	require.NoError(t, err)

	_, err = svc.GetApp(ctx, "app-guid", member2ID)
	require.ErrorIs(t, err, ErrInsufficientPrivileges)

	_, err = svc.GetApp(ctx, "app-guid", strangerID)
	require.ErrorIs(t, err, ErrUserDoesNotBelongToOrganization)

	_, err = svc.CreateApp(ctx, orgGUID, AppDraft{Name: "payments"}, memberID)
	require.ErrorIs(t, err, ErrInsufficientPrivileges)

	// Validation failures are not access decisions.
	_, err = svc.CreateApp(ctx, orgGUID, AppDraft{}, adminID)
	require.ErrorIs(t, err, ErrEmptyRequiredField)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("getApp", "allowed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("getApp", "denied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("createApp", "denied")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("createApp", "allowed")))
}

func TestInviteUser(t *testing.T) {
	ctx := context.Background()

	t.Run("admin invites a member", func(t *testing.T) {
		f := newFixture()
		seeded := f.seedApp(t, "app-guid", "billing", nil)

		entry, err := f.svc.InviteUser(ctx, "will.smith@acme.test", roles.AppUser, orgGUID, "app-guid", adminID)
		require.NoError(t, err)
		assert.Equal(t, memberID, entry.User.ID)
		assert.Equal(t, roles.AppUser, entry.Role)
		assert.Equal(t, seeded.ID, entry.AppID)
		assert.Equal(t, roles.AppUser, f.apps.stored(seeded.ID).Roles[memberID])
	})

	t.Run("email lookup is case-insensitive", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		_, err := f.svc.InviteUser(ctx, "Will.Smith@ACME.test", roles.AppUser, orgGUID, "app-guid", adminID)
		assert.NoError(t, err)
	})

	t.Run("plain member cannot invite", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{memberID: roles.AppOwner})

		_, err := f.svc.InviteUser(ctx, "maria.smith@acme.test", roles.AppUser, orgGUID, "app-guid", memberID)
		assert.ErrorIs(t, err, ErrInsufficientPrivileges)
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		_, err := f.svc.InviteUser(ctx, "ghost@acme.test", roles.AppUser, orgGUID, "app-guid", adminID)
		assert.ErrorIs(t, err, users.ErrNotFound)
	})

	t.Run("invitee outside the organization", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		_, err := f.svc.InviteUser(ctx, "steve.jobs@other.test", roles.AppUser, orgGUID, "app-guid", adminID)
		assert.ErrorIs(t, err, ErrUserDoesNotBelongToOrganization)
	})

	t.Run("invitee already has access", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{memberID: roles.AppUser})

		_, err := f.svc.InviteUser(ctx, "will.smith@acme.test", roles.AppOwner, orgGUID, "app-guid", adminID)
		assert.ErrorIs(t, err, ErrUserAlreadyHasAccess)
	})

	t.Run("second owner is refused", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", map[int64]roles.AppRole{memberID: roles.AppOwner})

		_, err := f.svc.InviteUser(ctx, "maria.smith@acme.test", roles.AppOwner, orgGUID, "app-guid", adminID)
		assert.ErrorIs(t, err, ErrMultipleOwners)
	})

	t.Run("app in a different organization", func(t *testing.T) {
		f := newFixture()
		f.seedApp(t, "app-guid", "billing", nil)

		_, err := f.svc.InviteUser(ctx, "will.smith@acme.test", roles.AppUser, "other-org", "app-guid", adminID)
		assert.ErrorIs(t, err, ErrAppDoesNotBelongToOrganization)
	})
}
