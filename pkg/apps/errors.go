package apps

import "errors"

// Domain failures. Each aborts the operation before any mutation is
// persisted; the boundary layer maps them to user-facing responses via
// errors.Is.
var (
	// ErrNotFound is returned when no app matches the lookup.
	ErrNotFound = errors.New("app not found")

	// ErrUserDoesNotBelongToOrganization is returned when a referenced
	// user (caller, invitee, or role-map entry) holds no role in the
	// app's owning organization.
	ErrUserDoesNotBelongToOrganization = errors.New("user does not belong to organization")

	// ErrInsufficientPrivileges is returned when the caller is an
	// organization member but lacks the role the operation requires.
	ErrInsufficientPrivileges = errors.New("insufficient privileges")

	// ErrAppDoesNotBelongToOrganization is returned when the addressed
	// app is owned by a different organization than the one named.
	ErrAppDoesNotBelongToOrganization = errors.New("app does not belong to organization")

	// ErrEmptyRequiredField is returned when a required field is empty,
	// and when a supplied role value is not a recognized one.
	ErrEmptyRequiredField = errors.New("required field is empty")

	// ErrNameIsNotUnique is returned when the app name is already used
	// within the organization.
	ErrNameIsNotUnique = errors.New("app name is not unique within organization")

	// ErrSelfRoleChange is returned when a caller attempts to change
	// their own app role.
	ErrSelfRoleChange = errors.New("caller cannot change their own role")

	// ErrMultipleOwners is returned when a role map would contain more
	// than one OWNER entry.
	ErrMultipleOwners = errors.New("app cannot have multiple owners")

	// ErrUserAlreadyHasAccess is returned when the invitee already holds
	// an app role on the app.
	ErrUserAlreadyHasAccess = errors.New("user already has access to app")
)
