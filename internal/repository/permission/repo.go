package permission

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/campushub/messaging/internal/model"
)

var (
	ErrPermissionNotFound = errors.New("permission not found")

	// ErrDuplicatePermission is returned when the (user_id, action, resource)
	// tuple already exists, regardless of is_active.
	ErrDuplicatePermission = errors.New("permission already exists")
)

const uniqueViolation = "23505"

// Filter narrows GetPermissions results. Zero values mean "any".
type Filter struct {
	UserID   uuid.UUID
	Action   model.Action
	Resource model.Resource
	Active   *bool
}

// Repository provides access to the permissions table.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new permission repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// CreatePermission inserts a new permission and returns its ID.
// The unique index on (user_id, action, resource) maps to ErrDuplicatePermission.
func (r *Repository) CreatePermission(ctx context.Context, p model.Permission) (uuid.UUID, error) {
	query := `
		INSERT INTO permissions (
		    user_id, action, resource, title, description, is_active, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id;
    `

	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	err = r.db.Master.QueryRowContext(
		ctx, query,
		p.UserID, p.Action, p.Resource, p.Title, p.Description, p.IsActive, metadata,
	).Scan(&p.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return uuid.Nil, ErrDuplicatePermission
		}

		return uuid.Nil, fmt.Errorf("failed to create permission: %w", err)
	}

	return p.ID, nil
}

// GetPermissionByID retrieves a single permission.
func (r *Repository) GetPermissionByID(ctx context.Context, id uuid.UUID) (model.Permission, error) {
	query := `
		SELECT id, user_id, action, resource, title, description, is_active, metadata, created_at, updated_at
		FROM permissions
		WHERE id = $1;
    `

	p, err := scanPermission(r.db.Master.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Permission{}, ErrPermissionNotFound
		}

		return model.Permission{}, fmt.Errorf("failed to get permission: %w", err)
	}

	return p, nil
}

// GetPermissions retrieves permissions matching the filter.
func (r *Repository) GetPermissions(ctx context.Context, filter Filter) ([]model.Permission, error) {
	query := `
		SELECT id, user_id, action, resource, title, description, is_active, metadata, created_at, updated_at
		FROM permissions
		WHERE ($1::uuid IS NULL OR user_id = $1)
		  AND ($2 = '' OR action = $2)
		  AND ($3 = '' OR resource = $3)
		  AND ($4::boolean IS NULL OR is_active = $4)
		ORDER BY created_at DESC;
    `

	var userID interface{}
	if filter.UserID != uuid.Nil {
		userID = filter.UserID
	}

	rows, err := r.db.QueryContext(
		ctx, query,
		userID, string(filter.Action), string(filter.Resource), filter.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get permissions: %w", err)
	}
	defer rows.Close()

	var permissions []model.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}

		permissions = append(permissions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}

	return permissions, nil
}

// HasActivePermission reports whether an active permission record exists
// for the (userID, action, resource) tuple.
func (r *Repository) HasActivePermission(ctx context.Context, userID uuid.UUID, action model.Action, resource model.Resource) (bool, error) {
	query := `
		SELECT EXISTS (
		    SELECT 1 FROM permissions
		    WHERE user_id = $1 AND action = $2 AND resource = $3 AND is_active = true
		);
    `

	var exists bool
	if err := r.db.Master.QueryRowContext(ctx, query, userID, action, resource).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}

	return exists, nil
}

// UpdatePermission updates the mutable fields of a permission.
func (r *Repository) UpdatePermission(ctx context.Context, p model.Permission) error {
	query := `
		UPDATE permissions
		SET title = $1, description = $2, is_active = $3, metadata = $4, updated_at = now()
		WHERE id = $5;
    `

	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, p.Title, p.Description, p.IsActive, metadata, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update permission: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrPermissionNotFound
	}

	return nil
}

// DeletePermission removes a permission permanently.
func (r *Repository) DeletePermission(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM permissions
		WHERE id = $1;
    `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrPermissionNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPermission(row rowScanner) (model.Permission, error) {
	var (
		p        model.Permission
		metadata []byte
	)

	err := row.Scan(
		&p.ID, &p.UserID, &p.Action, &p.Resource, &p.Title, &p.Description,
		&p.IsActive, &metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return model.Permission{}, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return model.Permission{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return p, nil
}
