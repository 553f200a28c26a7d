package auth_test

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"collab-backend/internal/auth"
	"collab-backend/internal/database"
	"collab-backend/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedProject(t *testing.T, db *gorm.DB, ownerID int64) *model.Project {
	t.Helper()

	owner := model.User{ID: ownerID, Email: "owner@example.com", Name: "owner"}
	require.NoError(t, db.Create(&owner).Error)

	project := model.Project{UserID: ownerID, Title: "diagram", Content: "{}", Version: 1}
	require.NoError(t, db.Create(&project).Error)
	return &project
}

func TestProjectAccess_OwnerGetsEdit(t *testing.T) {
	db := newTestDB(t)
	project := seedProject(t, db, 1)

	perm, err := auth.ProjectAccess(db, project.ID, 1)
	require.NoError(t, err)
	require.Equal(t, model.PermissionEdit, perm)
}

func TestProjectAccess_StrangerGetsNone(t *testing.T) {
	db := newTestDB(t)
	project := seedProject(t, db, 1)

	perm, err := auth.ProjectAccess(db, project.ID, 99)
	require.NoError(t, err)
	require.Equal(t, model.PermissionNone, perm)
}

func TestProjectAccess_MissingProject(t *testing.T) {
	db := newTestDB(t)

	perm, err := auth.ProjectAccess(db, 12345, 1)
	require.ErrorIs(t, err, auth.ErrProjectNotFound)
	require.Equal(t, model.PermissionNone, perm)
}

func TestProjectAccess_ActiveShare(t *testing.T) {
	db := newTestDB(t)
	project := seedProject(t, db, 1)

	guest := model.User{ID: 2, Email: "guest@example.com", Name: "guest"}
	require.NoError(t, db.Create(&guest).Error)

	for _, perm := range []model.Permission{model.PermissionView, model.PermissionComment, model.PermissionEdit} {
		require.NoError(t, db.Where("project_id = ?", project.ID).Delete(&model.ProjectShare{}).Error)
		share := model.ProjectShare{
			ProjectID:  project.ID,
			UserID:     guest.ID,
			Permission: string(perm),
			InvitedBy:  1,
			IsActive:   true,
		}
		require.NoError(t, db.Create(&share).Error)

		got, err := auth.ProjectAccess(db, project.ID, guest.ID)
		require.NoError(t, err)
		require.Equal(t, perm, got)
	}
}

func TestProjectAccess_InactiveShareGetsNone(t *testing.T) {
	db := newTestDB(t)
	project := seedProject(t, db, 1)

	share := model.ProjectShare{
		ProjectID:  project.ID,
		UserID:     2,
		Permission: string(model.PermissionEdit),
		InvitedBy:  1,
		IsActive:   true,
	}
	require.NoError(t, db.Create(&share).Error)

	perm, err := auth.ProjectAccess(db, project.ID, 2)
	require.NoError(t, err)
	require.Equal(t, model.PermissionEdit, perm)

	// 공유 해제는 다음 평가부터 바로 반영된다
	require.NoError(t, db.Model(&share).Update("is_active", false).Error)

	perm, err = auth.ProjectAccess(db, project.ID, 2)
	require.NoError(t, err)
	require.Equal(t, model.PermissionNone, perm)
}

func TestPermission_AtLeast(t *testing.T) {
	require.True(t, model.PermissionEdit.AtLeast(model.PermissionView))
	require.True(t, model.PermissionEdit.AtLeast(model.PermissionComment))
	require.True(t, model.PermissionComment.AtLeast(model.PermissionView))
	require.False(t, model.PermissionView.AtLeast(model.PermissionComment))
	require.False(t, model.PermissionComment.AtLeast(model.PermissionEdit))
	require.False(t, model.PermissionNone.AtLeast(model.PermissionView))
}
