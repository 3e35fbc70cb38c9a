package apps

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/quartzlabs/apphub/pkg/roles"
)

// appColumns joins the owning organization so callers get the org guid
// without a second lookup.
const appColumns = `a.id, a.guid, a.name, a.organization_id, o.guid, a.created_at, a.updated_at`

// Store is the Postgres-backed app directory.
type Store struct {
	db *sql.DB
}

// NewStore creates a new app store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindByGUID retrieves an app and its full role map by guid.
func (s *Store) FindByGUID(ctx context.Context, guid string) (*App, error) {
	query := `
		SELECT ` + appColumns + `
		FROM apps a
		JOIN organizations o ON o.id = a.organization_id
		WHERE a.guid = $1
	`

	var app App
	err := s.db.QueryRowContext(ctx, query, guid).Scan(
		&app.ID,
		&app.GUID,
		&app.Name,
		&app.OrganizationID,
		&app.OrganizationGUID,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app: %w", err)
	}

	roleMaps, err := s.loadRoleMaps(ctx, []int64{app.ID})
	if err != nil {
		return nil, err
	}
	app.Roles = roleMaps[app.ID]
	return &app, nil
}

// FindAllByOrganization retrieves every app owned by the organization,
// ordered by name.
func (s *Store) FindAllByOrganization(ctx context.Context, orgID int64) ([]*App, error) {
	query := `
		SELECT ` + appColumns + `
		FROM apps a
		JOIN organizations o ON o.id = a.organization_id
		WHERE a.organization_id = $1
		ORDER BY a.name ASC
	`
	return s.queryApps(ctx, query, orgID)
}

// FindAllByOrganizationAndUser retrieves the organization's apps on which
// the user holds an app role, ordered by name.
func (s *Store) FindAllByOrganizationAndUser(ctx context.Context, orgID, userID int64) ([]*App, error) {
	query := `
		SELECT ` + appColumns + `
		FROM apps a
		JOIN organizations o ON o.id = a.organization_id
		JOIN user_app_roles r ON r.app_id = a.id
		WHERE a.organization_id = $1 AND r.user_id = $2
		ORDER BY a.name ASC
	`
	return s.queryApps(ctx, query, orgID, userID)
}

// ExistsByNameInOrganization reports whether the organization already has
// an app with the name. excludeAppID is ignored when zero so the same
// query serves both create and rename checks.
func (s *Store) ExistsByNameInOrganization(ctx context.Context, name string, orgID, excludeAppID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM apps
			WHERE organization_id = $1 AND name = $2 AND ($3 = 0 OR id <> $3)
		)
	`

	var exists bool
	err := s.db.QueryRowContext(ctx, query, orgID, name, excludeAppID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check app name: %w", err)
	}
	return exists, nil
}

// Save persists the app. A zero id inserts; otherwise the row is updated
// in place. The role map is replaced wholesale inside the same
// transaction: existing entries are cleared and the app's current map is
// written back.
func (s *Store) Save(ctx context.Context, app *App) (*App, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if app.ID == 0 {
		query := `
			INSERT INTO apps (guid, name, organization_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`
		err = tx.QueryRowContext(ctx, query, app.GUID, app.Name, app.OrganizationID, now, now).Scan(&app.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert app: %w", err)
		}
		app.CreatedAt = now
	} else {
		query := `
			UPDATE apps
			SET guid = $1, name = $2, updated_at = $3
			WHERE id = $4
		`
		result, err := tx.ExecContext(ctx, query, app.GUID, app.Name, now, app.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update app: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to update app: %w", err)
		}
		if affected == 0 {
			return nil, ErrNotFound
		}
	}
	app.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_app_roles WHERE app_id = $1`, app.ID); err != nil {
		return nil, fmt.Errorf("failed to clear app roles: %w", err)
	}
	for userID, role := range app.Roles {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_app_roles (app_id, user_id, role) VALUES ($1, $2, $3)`,
			app.ID, userID, string(role),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert app role: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit app save: %w", err)
	}
	return app, nil
}

// DeleteByID removes the app; user_app_roles rows cascade with it.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM apps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) queryApps(ctx context.Context, query string, args ...interface{}) ([]*App, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer rows.Close()

	var apps []*App
	var ids []int64
	for rows.Next() {
		var app App
		err := rows.Scan(
			&app.ID,
			&app.GUID,
			&app.Name,
			&app.OrganizationID,
			&app.OrganizationGUID,
			&app.CreatedAt,
			&app.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, &app)
		ids = append(ids, app.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	if len(apps) == 0 {
		return nil, nil
	}

	roleMaps, err := s.loadRoleMaps(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, app := range apps {
		app.Roles = roleMaps[app.ID]
	}
	return apps, nil
}

// loadRoleMaps fetches the role entries for a batch of apps in one query.
func (s *Store) loadRoleMaps(ctx context.Context, appIDs []int64) (map[int64]map[int64]roles.AppRole, error) {
	query := `
		SELECT app_id, user_id, role
		FROM user_app_roles
		WHERE app_id = ANY($1)
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(appIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load app roles: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]map[int64]roles.AppRole, len(appIDs))
	for rows.Next() {
		var appID, userID int64
		var role string
		if err := rows.Scan(&appID, &userID, &role); err != nil {
			return nil, fmt.Errorf("failed to scan app role: %w", err)
		}
		if result[appID] == nil {
			result[appID] = make(map[int64]roles.AppRole)
		}
		result[appID][userID] = roles.AppRole(role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load app roles: %w", err)
	}
	return result, nil
}
