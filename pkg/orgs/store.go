package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quartzlabs/apphub/pkg/roles"
)

// Store implements Resolver and MembershipStore using PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new organization store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetOrganizationByGUID retrieves an organization by its external guid.
func (s *Store) GetOrganizationByGUID(ctx context.Context, guid string) (*Organization, error) {
	query := `
		SELECT id, guid, name, created_at, updated_at
		FROM organizations
		WHERE guid = $1
	`
	org := &Organization{}
	err := s.db.QueryRowContext(ctx, query, guid).Scan(
		&org.ID, &org.GUID, &org.Name, &org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// RoleOf returns the organization role held by the user, with ok=false when
// the user is not a member.
func (s *Store) RoleOf(ctx context.Context, orgID, userID int64) (roles.OrgRole, bool, error) {
	query := `
		SELECT role
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`
	var role roles.OrgRole
	err := s.db.QueryRowContext(ctx, query, orgID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get member role: %w", err)
	}
	return role, true, nil
}

// ListMembers enumerates the organization's membership map.
func (s *Store) ListMembers(ctx context.Context, orgID int64) ([]Member, error) {
	query := `
		SELECT organization_id, user_id, role
		FROM organization_members
		WHERE organization_id = $1
		ORDER BY user_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.OrganizationID, &m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}
