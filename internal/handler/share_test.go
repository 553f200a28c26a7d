package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"collab-backend/internal/model"
	"collab-backend/internal/service"
)

func newShareApp(fx *wsFixture, userID int64) *fiber.App {
	h := NewShareHandler(fx.db,
		service.NewNotificationService(fx.db),
		service.NewActivityService(fx.db))

	app := fiber.New()
	app.Get("/api/projects/:id/shares", asUser(userID), h.GetShares)
	app.Post("/api/projects/:id/shares", asUser(userID), h.ShareProject)
	app.Patch("/api/projects/:id/shares/:shareId", asUser(userID), h.UpdateSharePermission)
	app.Delete("/api/projects/:id/shares/:shareId", asUser(userID), h.RemoveShare)
	return app
}

func TestShareProject_CreatesShareAndNotifies(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	guest := fx.seedUser(t, 2, "guest")
	project := fx.seedProject(t, 1)

	app := newShareApp(fx, 1)
	resp := postJSON(t, app, fmt.Sprintf("/api/projects/%d/shares", project.ID),
		ShareProjectRequest{Email: guest.Email, Permission: "COMMENT"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var share model.ProjectShare
	require.NoError(t, fx.db.Where("project_id = ? AND user_id = ?", project.ID, guest.ID).
		First(&share).Error)
	require.Equal(t, "COMMENT", share.Permission)
	require.True(t, share.IsActive)
	require.Equal(t, int64(1), share.InvitedBy)

	require.Eventually(t, func() bool {
		var count int64
		fx.db.Model(&model.Notification{}).Where("user_id = ?", guest.ID).Count(&count)
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShareProject_ReactivatesRevokedShare(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	guest := fx.seedUser(t, 2, "guest")
	project := fx.seedProject(t, 1)

	existing := fx.share(t, project.ID, guest.ID, model.PermissionView)
	require.NoError(t, fx.db.Model(existing).Update("is_active", false).Error)

	app := newShareApp(fx, 1)
	resp := postJSON(t, app, fmt.Sprintf("/api/projects/%d/shares", project.ID),
		ShareProjectRequest{Email: guest.Email, Permission: "EDIT"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// 기존 row를 재활성화하고 권한을 갱신한다 - 중복 row 금지
	var count int64
	require.NoError(t, fx.db.Model(&model.ProjectShare{}).
		Where("project_id = ? AND user_id = ?", project.ID, guest.ID).
		Count(&count).Error)
	require.EqualValues(t, 1, count)

	var share model.ProjectShare
	require.NoError(t, fx.db.Where("project_id = ? AND user_id = ?", project.ID, guest.ID).
		First(&share).Error)
	require.Equal(t, "EDIT", share.Permission)
	require.True(t, share.IsActive)
}

func TestShareProject_NonOwnerForbidden(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	guest := fx.seedUser(t, 2, "guest")
	fx.seedUser(t, 3, "third")
	project := fx.seedProject(t, 1)
	fx.share(t, project.ID, 2, model.PermissionEdit)

	// EDIT 권한이 있어도 소유자가 아니면 공유 설정은 불가
	app := newShareApp(fx, 2)
	resp := postJSON(t, app, fmt.Sprintf("/api/projects/%d/shares", project.ID),
		ShareProjectRequest{Email: guest.Email, Permission: "VIEW"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestShareProject_InvalidPermission(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	guest := fx.seedUser(t, 2, "guest")
	project := fx.seedProject(t, 1)

	app := newShareApp(fx, 1)
	for _, perm := range []string{"NONE", "ADMIN", ""} {
		resp := postJSON(t, app, fmt.Sprintf("/api/projects/%d/shares", project.ID),
			ShareProjectRequest{Email: guest.Email, Permission: perm})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "permission %q", perm)
	}
}

func TestShareProject_SelfShareRejected(t *testing.T) {
	fx := newWSFixture(t)
	owner := fx.seedUser(t, 1, "owner")
	project := fx.seedProject(t, 1)

	app := newShareApp(fx, 1)
	resp := postJSON(t, app, fmt.Sprintf("/api/projects/%d/shares", project.ID),
		ShareProjectRequest{Email: owner.Email, Permission: "VIEW"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetShares_NonOwnerForbidden(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	fx.seedUser(t, 2, "guest")
	project := fx.seedProject(t, 1)
	fx.share(t, project.ID, 2, model.PermissionView)

	app := newShareApp(fx, 2)
	req := httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/projects/%d/shares", project.ID), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUpdateSharePermission_NonOwnerCannotEscalate(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	fx.seedUser(t, 2, "guest")
	project := fx.seedProject(t, 1)
	share := fx.share(t, project.ID, 2, model.PermissionView)

	// VIEW 공유 사용자가 본인 공유 row의 권한을 직접 올릴 수 없다
	app := newShareApp(fx, 2)
	resp := patchJSON(t, app,
		fmt.Sprintf("/api/projects/%d/shares/%d", project.ID, share.ID),
		UpdateShareRequest{Permission: "EDIT"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var stored model.ProjectShare
	require.NoError(t, fx.db.First(&stored, share.ID).Error)
	require.Equal(t, "VIEW", stored.Permission)
}

func TestRemoveShare_NonOwnerForbidden(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	fx.seedUser(t, 2, "guest")
	fx.seedUser(t, 3, "stranger")
	project := fx.seedProject(t, 1)
	share := fx.share(t, project.ID, 2, model.PermissionEdit)

	app := newShareApp(fx, 3)
	req := httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/api/projects/%d/shares/%d", project.ID, share.ID), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var stored model.ProjectShare
	require.NoError(t, fx.db.First(&stored, share.ID).Error)
	require.True(t, stored.IsActive)
}

func TestUpdateSharePermission(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	fx.seedUser(t, 2, "guest")
	project := fx.seedProject(t, 1)
	share := fx.share(t, project.ID, 2, model.PermissionView)

	app := newShareApp(fx, 1)
	data := fmt.Sprintf("/api/projects/%d/shares/%d", project.ID, share.ID)
	resp := patchJSON(t, app, data, UpdateShareRequest{Permission: "EDIT"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated model.ProjectShare
	require.NoError(t, fx.db.First(&updated, share.ID).Error)
	require.Equal(t, "EDIT", updated.Permission)
}

func TestRemoveShare_DeactivatesRow(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	fx.seedUser(t, 2, "guest")
	project := fx.seedProject(t, 1)
	share := fx.share(t, project.ID, 2, model.PermissionEdit)

	app := newShareApp(fx, 1)
	req := httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/api/projects/%d/shares/%d", project.ID, share.ID), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// row는 남기고 비활성화만 한다
	var removed model.ProjectShare
	require.NoError(t, fx.db.First(&removed, share.ID).Error)
	require.False(t, removed.IsActive)
}
