package permission

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushub/messaging/internal/model"
	permrepo "github.com/campushub/messaging/internal/repository/permission"
)

type grant struct {
	action   model.Action
	resource model.Resource
}

// fakeRepo holds active grants per user in memory.
type fakeRepo struct {
	grants      map[uuid.UUID][]grant
	permissions map[uuid.UUID]model.Permission
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		grants:      make(map[uuid.UUID][]grant),
		permissions: make(map[uuid.UUID]model.Permission),
	}
}

func (r *fakeRepo) grantTo(userID uuid.UUID, action model.Action, resource model.Resource) {
	r.grants[userID] = append(r.grants[userID], grant{action, resource})
}

func (r *fakeRepo) CreatePermission(_ context.Context, p model.Permission) (uuid.UUID, error) {
	for _, existing := range r.permissions {
		if existing.UserID == p.UserID && existing.Action == p.Action && existing.Resource == p.Resource {
			return uuid.Nil, permrepo.ErrDuplicatePermission
		}
	}

	p.ID = uuid.New()
	r.permissions[p.ID] = p
	if p.IsActive {
		r.grantTo(p.UserID, p.Action, p.Resource)
	}

	return p.ID, nil
}

func (r *fakeRepo) GetPermissionByID(_ context.Context, id uuid.UUID) (model.Permission, error) {
	p, ok := r.permissions[id]
	if !ok {
		return model.Permission{}, permrepo.ErrPermissionNotFound
	}
	return p, nil
}

func (r *fakeRepo) GetPermissions(_ context.Context, _ permrepo.Filter) ([]model.Permission, error) {
	out := make([]model.Permission, 0, len(r.permissions))
	for _, p := range r.permissions {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeRepo) HasActivePermission(_ context.Context, userID uuid.UUID, action model.Action, resource model.Resource) (bool, error) {
	for _, g := range r.grants[userID] {
		if g.action == action && g.resource == resource {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) UpdatePermission(_ context.Context, p model.Permission) error {
	if _, ok := r.permissions[p.ID]; !ok {
		return permrepo.ErrPermissionNotFound
	}
	r.permissions[p.ID] = p
	return nil
}

func (r *fakeRepo) DeletePermission(_ context.Context, id uuid.UUID) error {
	if _, ok := r.permissions[id]; !ok {
		return permrepo.ErrPermissionNotFound
	}
	delete(r.permissions, id)
	return nil
}

func actorWith(role model.Role) model.Actor {
	return model.Actor{ID: uuid.New(), Role: role}
}

func TestHasPermission(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	admin := actorWith(model.RoleAdmin)
	repo.grantTo(admin.ID, model.ActionView, model.ResourceMessage)

	ok, err := svc.HasPermission(ctx, admin, model.ActionView, model.ResourceMessage)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasPermission(ctx, admin, model.ActionDelete, model.ResourceMessage)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermission_OwnerBlanket(t *testing.T) {
	svc := NewService(newFakeRepo())
	owner := actorWith(model.RoleOwner)

	// No records needed: OWNER passes every valid check.
	ok, err := svc.HasPermission(context.Background(), owner, model.ActionDelete, model.ResourcePermission)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasPermission_MalformedInput(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()
	admin := actorWith(model.RoleAdmin)

	_, err := svc.HasPermission(ctx, model.Actor{ID: uuid.New(), Role: "JANITOR"}, model.ActionView, model.ResourceBlog)
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = svc.HasPermission(ctx, admin, "TRANSMOGRIFY", model.ResourceBlog)
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = svc.HasPermission(ctx, admin, model.ActionView, "SPACESHIP")
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	admin := actorWith(model.RoleAdmin)
	repo.grantTo(admin.ID, model.ActionView, model.ResourceBlog)

	checks := []Check{
		{Action: model.ActionEdit, Resource: model.ResourceBlog},
		{Action: model.ActionView, Resource: model.ResourceBlog},
	}

	ok, err := svc.HasAnyPermission(ctx, admin, checks)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasAllPermissions(ctx, admin, checks)
	require.NoError(t, err)
	assert.False(t, ok)

	repo.grantTo(admin.ID, model.ActionEdit, model.ResourceBlog)

	ok, err = svc.HasAllPermissions(ctx, admin, checks)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanManageUser(t *testing.T) {
	svc := NewService(newFakeRepo())

	owner := actorWith(model.RoleOwner)
	superAdmin := actorWith(model.RoleSuperAdmin)
	admin := actorWith(model.RoleAdmin)
	guest := actorWith(model.RoleGuest)

	assert.True(t, svc.CanManageUser(owner, superAdmin))
	assert.True(t, svc.CanManageUser(superAdmin, admin))
	assert.True(t, svc.CanManageUser(admin, guest))

	// Equal ranks never qualify, in either direction.
	assert.False(t, svc.CanManageUser(admin, actorWith(model.RoleAdmin)))
	assert.False(t, svc.CanManageUser(guest, admin))
	assert.False(t, svc.CanManageUser(superAdmin, owner))

	// Self-management is always denied, even for OWNER.
	assert.False(t, svc.CanManageUser(owner, owner))
}

func TestCanAssignRole(t *testing.T) {
	svc := NewService(newFakeRepo())

	tests := []struct {
		actor  model.Role
		target model.Role
		want   bool
	}{
		{model.RoleOwner, model.RoleOwner, true},
		{model.RoleOwner, model.RoleGuest, true},
		{model.RoleSuperAdmin, model.RoleSuperAdmin, true},
		{model.RoleSuperAdmin, model.RoleAdmin, true},
		{model.RoleSuperAdmin, model.RoleOwner, false},
		{model.RoleAdmin, model.RoleGuest, true},
		{model.RoleAdmin, model.RoleAdmin, true},
		{model.RoleAdmin, model.RoleSuperAdmin, false},
		{model.RoleGuest, model.RoleGuest, false},
	}

	for _, tt := range tests {
		got := svc.CanAssignRole(actorWith(tt.actor), tt.target)
		assert.Equalf(t, tt.want, got, "%s assigning %s", tt.actor, tt.target)
	}

	assert.False(t, svc.CanAssignRole(actorWith(model.RoleOwner), "JANITOR"))
}

func TestCanPerformAction_TargetRank(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	superAdmin := actorWith(model.RoleSuperAdmin)
	repo.grantTo(superAdmin.ID, model.ActionEdit, model.ResourceUser)

	admin := actorWith(model.RoleAdmin)
	peer := actorWith(model.RoleSuperAdmin)

	ok, err := svc.CanPerformAction(ctx, superAdmin, model.ActionEdit, model.ResourceUser, &admin, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CanPerformAction(ctx, superAdmin, model.ActionEdit, model.ResourceUser, &peer, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanPerformAction_CollegeScope(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	collegeA := uuid.New()
	collegeB := uuid.New()

	admin := model.Actor{ID: uuid.New(), Role: model.RoleAdmin, CollegeID: &collegeA}
	repo.grantTo(admin.ID, model.ActionEdit, model.ResourceProgram)

	ok, err := svc.CanPerformAction(ctx, admin, model.ActionEdit, model.ResourceProgram, nil, &model.ResourceAttrs{CollegeID: &collegeA})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CanPerformAction(ctx, admin, model.ActionEdit, model.ResourceProgram, nil, &model.ResourceAttrs{CollegeID: &collegeB})
	require.NoError(t, err)
	assert.False(t, ok)

	// An actor with no college affiliation cannot touch scoped resources.
	unaffiliated := actorWith(model.RoleSuperAdmin)
	repo.grantTo(unaffiliated.ID, model.ActionEdit, model.ResourceProgram)

	ok, err = svc.CanPerformAction(ctx, unaffiliated, model.ActionEdit, model.ResourceProgram, nil, &model.ResourceAttrs{CollegeID: &collegeA})
	require.NoError(t, err)
	assert.False(t, ok)

	// OWNER outranks the scope check entirely.
	owner := actorWith(model.RoleOwner)
	ok, err = svc.CanPerformAction(ctx, owner, model.ActionEdit, model.ResourceProgram, nil, &model.ResourceAttrs{CollegeID: &collegeB})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreatePermission(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p := model.Permission{
		UserID:   uuid.New(),
		Action:   model.ActionView,
		Resource: model.ResourceStatistic,
		Title:    "View statistics",
		IsActive: true,
	}

	id, err := svc.CreatePermission(ctx, p)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	// The (user, action, resource) tuple is unique.
	_, err = svc.CreatePermission(ctx, p)
	assert.ErrorIs(t, err, permrepo.ErrDuplicatePermission)

	_, err = svc.CreatePermission(ctx, model.Permission{UserID: uuid.New(), Action: "TRANSMOGRIFY", Resource: model.ResourceBlog})
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = svc.CreatePermission(ctx, model.Permission{Action: model.ActionView, Resource: model.ResourceBlog})
	assert.ErrorIs(t, err, ErrMalformedInput)
}
