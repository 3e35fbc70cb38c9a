// Package api exposes the app access service over HTTP. It binds
// requests, resolves the caller from the request context, and maps
// domain failures to status codes; all authorization decisions live in
// the service layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quartzlabs/apphub/pkg/apps"
	"github.com/quartzlabs/apphub/pkg/httputil"
	"github.com/quartzlabs/apphub/pkg/middleware"
	"github.com/quartzlabs/apphub/pkg/observability"
	"github.com/quartzlabs/apphub/pkg/orgs"
	"github.com/quartzlabs/apphub/pkg/roles"
	"github.com/quartzlabs/apphub/pkg/users"
)

// AppService is the operation surface the handlers require.
type AppService interface {
	GetApp(ctx context.Context, appGUID string, callerID int64) (*apps.App, error)
	GetApps(ctx context.Context, orgGUID string, callerID int64) ([]*apps.App, error)
	CreateApp(ctx context.Context, orgGUID string, draft apps.AppDraft, callerID int64) (*apps.App, error)
	UpdateApp(ctx context.Context, appGUID string, update apps.AppUpdate, callerID int64) (*apps.App, error)
	RegenerateAPIKey(ctx context.Context, appGUID string, callerID int64) (*apps.App, error)
	DeleteApp(ctx context.Context, appGUID string, callerID int64) error
	GetAppUsers(ctx context.Context, searchTerm, orgGUID, appGUID string, callerID int64) ([]apps.UserAppRole, error)
	InviteUser(ctx context.Context, email string, appRole roles.AppRole, orgGUID, appGUID string, callerID int64) (*apps.UserAppRole, error)
}

// AppHandlers handles app-related HTTP requests
type AppHandlers struct {
	service AppService
	log     *observability.Logger
}

// NewAppHandlers creates a new AppHandlers
func NewAppHandlers(service AppService, log *observability.Logger) *AppHandlers {
	return &AppHandlers{service: service, log: log}
}

// RegisterRoutes registers app routes
func (h *AppHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{orgGuid}/apps", h.ListApps).Methods("GET")
	router.HandleFunc("/orgs/{orgGuid}/apps", h.CreateApp).Methods("POST")
	router.HandleFunc("/orgs/{orgGuid}/apps/{appGuid}/users", h.ListAppUsers).Methods("GET")
	router.HandleFunc("/orgs/{orgGuid}/apps/{appGuid}/users", h.InviteUser).Methods("POST")

	router.HandleFunc("/apps/{appGuid}", h.GetApp).Methods("GET")
	router.HandleFunc("/apps/{appGuid}", h.UpdateApp).Methods("PUT")
	router.HandleFunc("/apps/{appGuid}", h.DeleteApp).Methods("DELETE")
	router.HandleFunc("/apps/{appGuid}/api-key", h.RegenerateAPIKey).Methods("POST")
}

// GetApp retrieves an app by guid
func (h *AppHandlers) GetApp(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "no principal")
		return
	}

	app, err := h.service.GetApp(r.Context(), mux.Vars(r)["appGuid"], caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, app)
}

// ListApps lists the organization's apps visible to the caller
func (h *AppHandlers) ListApps(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "no principal")
		return
	}

	result, err := h.service.GetApps(r.Context(), mux.Vars(r)["orgGuid"], caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if result == nil {
		result = []*apps.App{}
	}
	httputil.WriteSuccess(w, result)
}

// CreateApp creates an app in the organization
func (h *AppHandlers) CreateApp(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "no principal")
		return
	}

	var draft apps.AppDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	app, err := h.service.CreateApp(r.Context(), mux.Vars(r)["orgGuid"], draft, caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteCreated(w, app)
}

// UpdateApp applies a field-level patch to an app
func (h *AppHandlers) UpdateApp(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "no principal")
		return
	}

	var update apps.AppUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	app, err := h.service.UpdateApp(r.Context(), mux.Vars(r)["appGuid"], update, caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, app)
}

// RegenerateAPIKey replaces the app's guid
func (h *AppHandlers) RegenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "no principal")
		return
	}

	app, err := h.service.RegenerateAPIKey(r.Context(), mux.Vars(r)["appGuid"], caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, app)
}

// DeleteApp removes an app
func (h *AppHandlers) DeleteApp(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "no principal")
		return
	}

	if err := h.service.DeleteApp(r.Context(), mux.Vars(r)["appGuid"], caller); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListAppUsers lists the app's role entries, filtered by search term
func (h *AppHandlers) ListAppUsers(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "no principal")
		return
	}

	vars := mux.Vars(r)
	search := r.URL.Query().Get("search")
	result, err := h.service.GetAppUsers(r.Context(), search, vars["orgGuid"], vars["appGuid"], caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if result == nil {
		result = []apps.UserAppRole{}
	}
	httputil.WriteSuccess(w, result)
}

// inviteRequest is the payload for InviteUser.
type inviteRequest struct {
	Email string        `json:"email"`
	Role  roles.AppRole `json:"role"`
}

// InviteUser grants an organization member a role on the app
func (h *AppHandlers) InviteUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "no principal")
		return
	}

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	vars := mux.Vars(r)
	entry, err := h.service.InviteUser(r.Context(), req.Email, req.Role, vars["orgGuid"], vars["appGuid"], caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteCreated(w, entry)
}

// writeDomainError maps service failures onto status codes. Every
// validation failure is reported with its own message so clients can
// distinguish 403 access problems from 400/409 payload problems.
func (h *AppHandlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apps.ErrNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, orgs.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, apps.ErrUserDoesNotBelongToOrganization),
		errors.Is(err, apps.ErrInsufficientPrivileges):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, apps.ErrNameIsNotUnique),
		errors.Is(err, apps.ErrUserAlreadyHasAccess):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, apps.ErrEmptyRequiredField),
		errors.Is(err, apps.ErrAppDoesNotBelongToOrganization),
		errors.Is(err, apps.ErrSelfRoleChange),
		errors.Is(err, apps.ErrMultipleOwners):
		httputil.WriteBadRequest(w, err.Error())
	default:
		if h.log != nil {
			h.log.WithError(err).WithField("path", r.URL.Path).Error("unhandled service error")
		}
		httputil.WriteInternalError(w, err)
	}
}
