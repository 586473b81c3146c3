package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/campushub/messaging/internal/model"
	permrepo "github.com/campushub/messaging/internal/repository/permission"
)

var (
	// ErrPermissionDenied is surfaced by callers as 403. The evaluator
	// itself never returns it: "not permitted" is a false result, not an
	// error.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrMalformedInput is returned for unknown enum values. Callers must
	// treat it as a configuration error, not an auth failure.
	ErrMalformedInput = errors.New("malformed permission input")
)

// Check pairs an action with a resource for combinator queries.
type Check struct {
	Action   model.Action
	Resource model.Resource
}

type permissionRepository interface {
	CreatePermission(context.Context, model.Permission) (uuid.UUID, error)
	GetPermissionByID(context.Context, uuid.UUID) (model.Permission, error)
	GetPermissions(context.Context, permrepo.Filter) ([]model.Permission, error)
	HasActivePermission(ctx context.Context, userID uuid.UUID, action model.Action, resource model.Resource) (bool, error)
	UpdatePermission(context.Context, model.Permission) error
	DeletePermission(context.Context, uuid.UUID) error
}

// Service evaluates role- and attribute-based permission checks and
// manages permission records. Evaluation has no side effects.
type Service struct {
	repo permissionRepository
}

// NewService creates a permission service over the given store.
func NewService(repo permissionRepository) *Service {
	return &Service{repo: repo}
}

// HasPermission reports whether the actor may perform action on resource:
// either the role grants blanket authority (OWNER) or an active permission
// record matches the (actor, action, resource) tuple.
func (s *Service) HasPermission(ctx context.Context, actor model.Actor, action model.Action, resource model.Resource) (bool, error) {
	if !actor.Role.Valid() {
		return false, fmt.Errorf("%w: role %q", ErrMalformedInput, actor.Role)
	}
	if !action.Valid() {
		return false, fmt.Errorf("%w: action %q", ErrMalformedInput, action)
	}
	if !resource.Valid() {
		return false, fmt.Errorf("%w: resource %q", ErrMalformedInput, resource)
	}

	if actor.Role == model.RoleOwner {
		return true, nil
	}

	ok, err := s.repo.HasActivePermission(ctx, actor.ID, action, resource)
	if err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}

	return ok, nil
}

// HasAnyPermission reports whether at least one check passes. Evaluation
// short-circuits on the first success.
func (s *Service) HasAnyPermission(ctx context.Context, actor model.Actor, checks []Check) (bool, error) {
	for _, c := range checks {
		ok, err := s.HasPermission(ctx, actor, c.Action, c.Resource)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}

// HasAllPermissions reports whether every check passes. Evaluation
// short-circuits on the first failure.
func (s *Service) HasAllPermissions(ctx context.Context, actor model.Actor, checks []Check) (bool, error) {
	for _, c := range checks {
		ok, err := s.HasPermission(ctx, actor, c.Action, c.Resource)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// CanManageUser reports whether the actor outranks the target. Equal ranks
// never qualify, so an actor can never manage their own role.
func (s *Service) CanManageUser(actor, target model.Actor) bool {
	if actor.ID == target.ID {
		return false
	}

	return actor.Role.Rank() > target.Role.Rank()
}

// CanAssignRole reports whether the actor may grant the given role:
// OWNER assigns anything, SUPERADMIN anything but OWNER, ADMIN only
// GUEST or ADMIN, GUEST nothing.
func (s *Service) CanAssignRole(actor model.Actor, target model.Role) bool {
	if !target.Valid() {
		return false
	}

	switch actor.Role {
	case model.RoleOwner:
		return true
	case model.RoleSuperAdmin:
		return target != model.RoleOwner
	case model.RoleAdmin:
		return target == model.RoleGuest || target == model.RoleAdmin
	default:
		return false
	}
}

// CanPerformAction combines the role/record check with attribute scoping:
// managing a target user requires outranking them, and a college-scoped
// resource requires the actor to belong to the same college unless the
// actor outranks SUPERADMIN.
func (s *Service) CanPerformAction(
	ctx context.Context,
	actor model.Actor,
	action model.Action,
	resource model.Resource,
	target *model.Actor,
	attrs *model.ResourceAttrs,
) (bool, error) {
	if target != nil && !s.CanManageUser(actor, *target) {
		return false, nil
	}

	if attrs != nil && attrs.CollegeID != nil && actor.Role.Rank() <= model.RoleSuperAdmin.Rank() {
		if actor.CollegeID == nil || *actor.CollegeID != *attrs.CollegeID {
			return false, nil
		}
	}

	return s.HasPermission(ctx, actor, action, resource)
}

// CreatePermission creates a permission record. The (userId, action,
// resource) tuple is unique; an inactive record still blocks re-creation.
func (s *Service) CreatePermission(ctx context.Context, p model.Permission) (uuid.UUID, error) {
	if !p.Action.Valid() {
		return uuid.Nil, fmt.Errorf("%w: action %q", ErrMalformedInput, p.Action)
	}
	if !p.Resource.Valid() {
		return uuid.Nil, fmt.Errorf("%w: resource %q", ErrMalformedInput, p.Resource)
	}
	if p.UserID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: missing user id", ErrMalformedInput)
	}

	id, err := s.repo.CreatePermission(ctx, p)
	if err != nil {
		return uuid.Nil, err
	}

	return id, nil
}

// GetPermissionByID retrieves a single permission record.
func (s *Service) GetPermissionByID(ctx context.Context, id uuid.UUID) (model.Permission, error) {
	return s.repo.GetPermissionByID(ctx, id)
}

// GetPermissions lists permission records matching the filter.
func (s *Service) GetPermissions(ctx context.Context, filter permrepo.Filter) ([]model.Permission, error) {
	return s.repo.GetPermissions(ctx, filter)
}

// UpdatePermission updates the mutable fields of a permission record.
func (s *Service) UpdatePermission(ctx context.Context, p model.Permission) error {
	return s.repo.UpdatePermission(ctx, p)
}

// DeletePermission removes a permission record.
func (s *Service) DeletePermission(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeletePermission(ctx, id)
}
