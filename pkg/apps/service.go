package apps

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/quartzlabs/apphub/pkg/observability"
	"github.com/quartzlabs/apphub/pkg/orgs"
	"github.com/quartzlabs/apphub/pkg/roles"
	"github.com/quartzlabs/apphub/pkg/users"
)

const (
	decisionAllowed = "allowed"
	decisionDenied  = "denied"
)

// Service orchestrates app lifecycle operations: it loads the target app,
// resolves the caller's organization role, authorizes the operation,
// enforces the role-map invariants and only then mutates through the
// directory. Callers are identified by user id; authentication happens
// upstream.
type Service struct {
	apps    Directory
	users   users.Directory
	orgs    orgs.Resolver
	members orgs.MembershipStore
	log     *observability.Logger
	metrics *observability.Metrics
}

// NewService creates the app access service. metrics may be nil, in which
// case access decisions are not counted.
func NewService(apps Directory, userDir users.Directory, resolver orgs.Resolver, members orgs.MembershipStore, log *observability.Logger, metrics *observability.Metrics) *Service {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	return &Service{
		apps:    apps,
		users:   userDir,
		orgs:    resolver,
		members: members,
		log:     log,
		metrics: metrics,
	}
}

// recordDecision counts the operation's authorization outcome. Failures
// other than the two access denials (lookup errors, validation failures)
// are not decisions and are not counted.
func (s *Service) recordDecision(operation string, err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.RecordAccessDecision(operation, decisionAllowed)
	case errors.Is(err, ErrInsufficientPrivileges),
		errors.Is(err, ErrUserDoesNotBelongToOrganization):
		s.metrics.RecordAccessDecision(operation, decisionDenied)
	}
}

// callerRole resolves the caller's organization role for the app's owning
// organization. No membership entry means no access of any kind.
func (s *Service) callerRole(ctx context.Context, orgID, callerID int64) (roles.OrgRole, error) {
	role, ok, err := s.members.RoleOf(ctx, orgID, callerID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUserDoesNotBelongToOrganization
	}
	return role, nil
}

// GetApp returns the app with the given guid. Organization admins and
// owners can read any app of their organization; plain members need an app
// role on this specific app.
func (s *Service) GetApp(ctx context.Context, appGUID string, callerID int64) (app *App, err error) {
	defer func() { s.recordDecision("getApp", err) }()

	app, err = s.apps.FindByGUID(ctx, appGUID)
	if err != nil {
		return nil, err
	}
	role, err := s.callerRole(ctx, app.OrganizationID, callerID)
	if err != nil {
		return nil, err
	}
	if roles.HasOrgWriteAccess(role) {
		return app, nil
	}
	if !app.HasRole(callerID) {
		return nil, ErrInsufficientPrivileges
	}
	return app, nil
}

// GetApps lists the organization's apps visible to the caller: all of them
// for org admins and owners, otherwise only those the caller holds an app
// role on.
func (s *Service) GetApps(ctx context.Context, orgGUID string, callerID int64) (result []*App, err error) {
	defer func() { s.recordDecision("getApps", err) }()

	org, err := s.orgs.GetOrganizationByGUID(ctx, orgGUID)
	if err != nil {
		return nil, err
	}
	role, err := s.callerRole(ctx, org.ID, callerID)
	if err != nil {
		return nil, err
	}
	if roles.HasOrgWriteAccess(role) {
		return s.apps.FindAllByOrganization(ctx, org.ID)
	}
	return s.apps.FindAllByOrganizationAndUser(ctx, org.ID, callerID)
}

// CreateApp creates an app in the organization. Requires org write access.
// The draft's role map is taken as given (no implicit owner) and validated
// against the membership and single-owner invariants before anything is
// persisted.
func (s *Service) CreateApp(ctx context.Context, orgGUID string, draft AppDraft, callerID int64) (created *App, err error) {
	defer func() { s.recordDecision("createApp", err) }()

	org, err := s.orgs.GetOrganizationByGUID(ctx, orgGUID)
	if err != nil {
		return nil, err
	}
	role, err := s.callerRole(ctx, org.ID, callerID)
	if err != nil {
		return nil, err
	}
	if !roles.HasOrgWriteAccess(role) {
		return nil, ErrInsufficientPrivileges
	}
	if draft.Name == "" {
		return nil, ErrEmptyRequiredField
	}
	taken, err := s.apps.ExistsByNameInOrganization(ctx, draft.Name, org.ID, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrNameIsNotUnique
	}
	if len(draft.Roles) > 0 {
		membership, err := s.membershipMap(ctx, org.ID)
		if err != nil {
			return nil, err
		}
		if err := validateRoleMap(draft.Roles, membership); err != nil {
			return nil, err
		}
	}

	app := &App{
		GUID:             uuid.NewString(),
		Name:             draft.Name,
		OrganizationID:   org.ID,
		OrganizationGUID: org.GUID,
		Roles:            copyRoleMap(draft.Roles),
	}
	saved, err := s.apps.Save(ctx, app)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"app_guid": saved.GUID,
		"org_guid": org.GUID,
		"caller":   callerID,
	}).Info("app created")
	return saved, nil
}

// UpdateApp applies a field-level patch to the app. The gate matches
// GetApp's read threshold; the role map, when supplied non-empty, replaces
// the stored one wholesale after membership, single-owner and
// self-role-change validation against the proposed final map. The guid is
// never altered here.
func (s *Service) UpdateApp(ctx context.Context, appGUID string, update AppUpdate, callerID int64) (updated *App, err error) {
	defer func() { s.recordDecision("updateApp", err) }()

	app, err := s.apps.FindByGUID(ctx, appGUID)
	if err != nil {
		return nil, err
	}
	role, err := s.callerRole(ctx, app.OrganizationID, callerID)
	if err != nil {
		return nil, err
	}
	if !roles.HasOrgWriteAccess(role) && !app.HasRole(callerID) {
		return nil, ErrInsufficientPrivileges
	}

	if update.Name != "" && update.Name != app.Name {
		taken, err := s.apps.ExistsByNameInOrganization(ctx, update.Name, app.OrganizationID, app.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrNameIsNotUnique
		}
	}
	if len(update.Roles) > 0 {
		membership, err := s.membershipMap(ctx, app.OrganizationID)
		if err != nil {
			return nil, err
		}
		if err := validateRoleMap(update.Roles, membership); err != nil {
			return nil, err
		}
		if err := validateSelfRoleChange(app.Roles, update.Roles, callerID); err != nil {
			return nil, err
		}
	}

	// All checks passed; apply the patch.
	if update.Name != "" {
		app.Name = update.Name
	}
	if len(update.Roles) > 0 {
		app.Roles = copyRoleMap(update.Roles)
	}
	saved, err := s.apps.Save(ctx, app)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"app_guid": saved.GUID,
		"caller":   callerID,
	}).Info("app updated")
	return saved, nil
}

// RegenerateAPIKey replaces the app's guid with a fresh one; the old guid
// becomes permanently invalid. Requires org write access or app ownership.
func (s *Service) RegenerateAPIKey(ctx context.Context, appGUID string, callerID int64) (regenerated *App, err error) {
	defer func() { s.recordDecision("regenerateApiKey", err) }()

	app, err := s.apps.FindByGUID(ctx, appGUID)
	if err != nil {
		return nil, err
	}
	if err := s.requireElevated(ctx, app, callerID); err != nil {
		return nil, err
	}

	oldGUID := app.GUID
	app.GUID = uuid.NewString()
	saved, err := s.apps.Save(ctx, app)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"app_id":   saved.ID,
		"old_guid": oldGUID,
		"caller":   callerID,
	}).Info("app api key regenerated")
	return saved, nil
}

// DeleteApp removes the app; its role entries are discarded with it.
// Requires org write access or app ownership.
func (s *Service) DeleteApp(ctx context.Context, appGUID string, callerID int64) (err error) {
	defer func() { s.recordDecision("deleteApp", err) }()

	app, err := s.apps.FindByGUID(ctx, appGUID)
	if err != nil {
		return err
	}
	if err := s.requireElevated(ctx, app, callerID); err != nil {
		return err
	}
	if err := s.apps.DeleteByID(ctx, app.ID); err != nil {
		return err
	}
	s.log.WithFields(map[string]interface{}{
		"app_guid": app.GUID,
		"caller":   callerID,
	}).Info("app deleted")
	return nil
}

// requireElevated enforces the elevated gate shared by guid regeneration
// and deletion: org write access, or OWNER on this app.
func (s *Service) requireElevated(ctx context.Context, app *App, callerID int64) error {
	role, err := s.callerRole(ctx, app.OrganizationID, callerID)
	if err != nil {
		return err
	}
	if roles.HasOrgWriteAccess(role) {
		return nil
	}
	if appRole, ok := app.RoleOf(callerID); ok && appRole == roles.AppOwner {
		return nil
	}
	return ErrInsufficientPrivileges
}

// GetAppUsers lists the app's role entries whose user's first name, last
// name or email contains searchTerm case-insensitively. An empty search
// term matches everyone. The app must belong to the named organization.
func (s *Service) GetAppUsers(ctx context.Context, searchTerm, orgGUID, appGUID string, callerID int64) (result []UserAppRole, err error) {
	defer func() { s.recordDecision("getAppUsers", err) }()

	app, err := s.apps.FindByGUID(ctx, appGUID)
	if err != nil {
		return nil, err
	}
	if app.OrganizationGUID != orgGUID {
		return nil, ErrAppDoesNotBelongToOrganization
	}
	role, err := s.callerRole(ctx, app.OrganizationID, callerID)
	if err != nil {
		return nil, err
	}
	if !roles.HasOrgWriteAccess(role) && !app.HasRole(callerID) {
		return nil, ErrInsufficientPrivileges
	}

	needle := strings.ToLower(searchTerm)
	for _, userID := range sortedUserIDs(app.Roles) {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if needle != "" && !matchesUser(user, needle) {
			continue
		}
		result = append(result, UserAppRole{
			User:  *user,
			AppID: app.ID,
			Role:  app.Roles[userID],
		})
	}
	return result, nil
}

// InviteUser grants an existing organization member a role on the app.
// Requires org write access. The invitee must not already hold any app
// role here, and granting OWNER is refused while another owner exists.
func (s *Service) InviteUser(ctx context.Context, email string, appRole roles.AppRole, orgGUID, appGUID string, callerID int64) (entry *UserAppRole, err error) {
	defer func() { s.recordDecision("inviteUser", err) }()

	app, err := s.apps.FindByGUID(ctx, appGUID)
	if err != nil {
		return nil, err
	}
	if app.OrganizationGUID != orgGUID {
		return nil, ErrAppDoesNotBelongToOrganization
	}
	role, err := s.callerRole(ctx, app.OrganizationID, callerID)
	if err != nil {
		return nil, err
	}
	if !roles.HasOrgWriteAccess(role) {
		return nil, ErrInsufficientPrivileges
	}
	if !roles.ValidAppRole(appRole) {
		return nil, ErrEmptyRequiredField
	}

	invitee, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if _, ok, err := s.members.RoleOf(ctx, app.OrganizationID, invitee.ID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrUserDoesNotBelongToOrganization
	}
	if app.HasRole(invitee.ID) {
		return nil, ErrUserAlreadyHasAccess
	}
	if appRole == roles.AppOwner && hasOwner(app.Roles) {
		return nil, ErrMultipleOwners
	}

	if app.Roles == nil {
		app.Roles = make(map[int64]roles.AppRole)
	}
	app.Roles[invitee.ID] = appRole
	saved, err := s.apps.Save(ctx, app)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"app_guid": saved.GUID,
		"invitee":  invitee.ID,
		"role":     appRole,
		"caller":   callerID,
	}).Info("user invited to app")
	return &UserAppRole{User: *invitee, AppID: saved.ID, Role: appRole}, nil
}

// membershipMap loads the organization's membership as a user id -> role
// map for the pure validators.
func (s *Service) membershipMap(ctx context.Context, orgID int64) (map[int64]roles.OrgRole, error) {
	members, err := s.members.ListMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]roles.OrgRole, len(members))
	for _, member := range members {
		m[member.UserID] = member.Role
	}
	return m, nil
}

func hasOwner(m map[int64]roles.AppRole) bool {
	for _, r := range m {
		if r == roles.AppOwner {
			return true
		}
	}
	return false
}

func matchesUser(u *users.User, needle string) bool {
	return strings.Contains(strings.ToLower(u.FirstName), needle) ||
		strings.Contains(strings.ToLower(u.LastName), needle) ||
		strings.Contains(strings.ToLower(u.Email), needle)
}

func sortedUserIDs(m map[int64]roles.AppRole) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
