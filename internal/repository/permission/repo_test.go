package permission

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/dbpg"

	"github.com/campushub/messaging/internal/model"
)

var permissionRowColumns = []string{
	"id", "user_id", "action", "resource", "title", "description",
	"is_active", "metadata", "created_at", "updated_at",
}

func newTestRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(&dbpg.DB{Master: db}), mock
}

func permissionRow(id, userID uuid.UUID, active bool) []driver.Value {
	now := time.Now()
	return []driver.Value{
		id.String(), userID.String(), "VIEW", "MESSAGE", "View messages", "",
		active, []byte("null"), now, now,
	}
}

func TestCreatePermission(t *testing.T) {
	repo, mock := newTestRepo(t)
	id, userID := uuid.New(), uuid.New()

	mock.ExpectQuery("INSERT INTO permissions").
		WithArgs(userID, "VIEW", "MESSAGE", "View messages", "", true, []byte("null")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))

	got, err := repo.CreatePermission(context.Background(), model.Permission{
		UserID:   userID,
		Action:   model.ActionView,
		Resource: model.ResourceMessage,
		Title:    "View messages",
		IsActive: true,
	})

	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePermission_Duplicate(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("INSERT INTO permissions").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.CreatePermission(context.Background(), model.Permission{
		UserID:   uuid.New(),
		Action:   model.ActionView,
		Resource: model.ResourceMessage,
		Title:    "View messages",
	})

	assert.ErrorIs(t, err, ErrDuplicatePermission)
}

func TestGetPermissionByID(t *testing.T) {
	repo, mock := newTestRepo(t)
	id, userID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM permissions").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(permissionRowColumns).AddRow(permissionRow(id, userID, true)...))

	p, err := repo.GetPermissionByID(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, model.ActionView, p.Action)
	assert.True(t, p.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPermissionByID_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM permissions").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetPermissionByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPermissionNotFound)
}

func TestGetPermissions(t *testing.T) {
	repo, mock := newTestRepo(t)
	userID := uuid.New()
	active := true

	mock.ExpectQuery("SELECT (.+) FROM permissions").
		WithArgs(userID, "VIEW", "", &active).
		WillReturnRows(sqlmock.NewRows(permissionRowColumns).
			AddRow(permissionRow(uuid.New(), userID, true)...))

	permissions, err := repo.GetPermissions(context.Background(), Filter{
		UserID: userID,
		Action: model.ActionView,
		Active: &active,
	})

	require.NoError(t, err)
	require.Len(t, permissions, 1)
	assert.Equal(t, userID, permissions[0].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPermissions_UnfilteredUserIsNull(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM permissions").
		WithArgs(nil, "", "", nil).
		WillReturnRows(sqlmock.NewRows(permissionRowColumns))

	permissions, err := repo.GetPermissions(context.Background(), Filter{})

	require.NoError(t, err)
	assert.Empty(t, permissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasActivePermission(t *testing.T) {
	repo, mock := newTestRepo(t)
	userID := uuid.New()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(userID, "EDIT", "BLOG").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.HasActivePermission(context.Background(), userID, model.ActionEdit, model.ResourceBlog)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePermission(t *testing.T) {
	repo, mock := newTestRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE permissions").
		WithArgs("New title", "New description", false, []byte("null"), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdatePermission(context.Background(), model.Permission{
		ID:          id,
		Title:       "New title",
		Description: "New description",
		IsActive:    false,
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePermission_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec("UPDATE permissions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePermission(context.Background(), model.Permission{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrPermissionNotFound)
}

func TestDeletePermission(t *testing.T) {
	repo, mock := newTestRepo(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM permissions").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.DeletePermission(context.Background(), id))

	mock.ExpectExec("DELETE FROM permissions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeletePermission(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPermissionNotFound)
}
