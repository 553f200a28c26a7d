package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"collab-backend/internal/auth"
	"collab-backend/internal/model"
	"collab-backend/internal/room"
	"collab-backend/internal/service"
)

// asUser 인증 미들웨어 대체 - 테스트용 claims 주입
func asUser(userID int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("claims", &auth.Claims{
			UserID: userID,
			Email:  fmt.Sprintf("user%d@example.com", userID),
			Name:   fmt.Sprintf("user%d", userID),
		})
		return c.Next()
	}
}

func newCommentApp(fx *wsFixture, userID int64) *fiber.App {
	h := NewCommentHandler(fx.db, fx.registry,
		service.NewNotificationService(fx.db),
		service.NewActivityService(fx.db))

	app := fiber.New()
	app.Get("/api/projects/:id/comments", asUser(userID), h.GetComments)
	app.Post("/api/projects/:id/comments", asUser(userID), h.CreateComment)
	app.Delete("/api/projects/:id/comments/:commentId", asUser(userID), h.DeleteComment)
	return app
}

func postJSON(t *testing.T, app *fiber.App, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func patchJSON(t *testing.T, app *fiber.App, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestCreateComment_TrimsAndBroadcasts(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	fx.seedUser(t, 2, "guest")
	project := fx.seedProject(t, 1)
	fx.share(t, project.ID, 2, model.PermissionComment)

	// room에 접속 중인 세션은 REST로 단 댓글도 실시간으로 받는다
	conn := &fakeConn{}
	fx.registry.Join(project.ID, room.NewClient("s1", 1, "owner", "", conn))

	app := newCommentApp(fx, 2)
	resp := postJSON(t, app, fmt.Sprintf("/api/projects/%d/comments", project.ID),
		CreateCommentRequest{Content: "  first!  "})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created CommentResponse
	decodeBody(t, resp, &created)
	require.Equal(t, "first!", created.Content)
	require.Equal(t, int64(2), created.UserID)
	require.Equal(t, "guest", created.User.Name)

	added := conn.named("comment-added")
	require.Len(t, added, 1)

	// 작성자 제외 수신자(소유자)에게 알림이 생성된다 (비동기)
	require.Eventually(t, func() bool {
		var count int64
		fx.db.Model(&model.Notification{}).Where("user_id = ?", 1).Count(&count)
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateComment_EmptyContent(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	project := fx.seedProject(t, 1)

	app := newCommentApp(fx, 1)
	resp := postJSON(t, app, fmt.Sprintf("/api/projects/%d/comments", project.ID),
		CreateCommentRequest{Content: "   "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateComment_ViewerForbidden(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	fx.seedUser(t, 2, "viewer")
	project := fx.seedProject(t, 1)
	fx.share(t, project.ID, 2, model.PermissionView)

	app := newCommentApp(fx, 2)
	resp := postJSON(t, app, fmt.Sprintf("/api/projects/%d/comments", project.ID),
		CreateCommentRequest{Content: "nope"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var count int64
	require.NoError(t, fx.db.Model(&model.ProjectComment{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateComment_MissingProject(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")

	app := newCommentApp(fx, 1)
	resp := postJSON(t, app, "/api/projects/999/comments",
		CreateCommentRequest{Content: "hello"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateComment_CrossProjectParent(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	projectA := fx.seedProject(t, 1)
	projectB := fx.seedProject(t, 1)

	parent := model.ProjectComment{ProjectID: projectB.ID, UserID: 1, Content: "elsewhere"}
	require.NoError(t, fx.db.Create(&parent).Error)

	app := newCommentApp(fx, 1)
	resp := postJSON(t, app, fmt.Sprintf("/api/projects/%d/comments", projectA.ID),
		CreateCommentRequest{Content: "reply", ParentID: &parent.ID})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetComments_ThreadedNewestFirst(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	project := fx.seedProject(t, 1)

	base := time.Now().Add(-time.Hour)
	older := model.ProjectComment{ProjectID: project.ID, UserID: 1, Content: "older", CreatedAt: base}
	require.NoError(t, fx.db.Create(&older).Error)
	newer := model.ProjectComment{ProjectID: project.ID, UserID: 1, Content: "newer", CreatedAt: base.Add(time.Minute)}
	require.NoError(t, fx.db.Create(&newer).Error)
	reply := model.ProjectComment{ProjectID: project.ID, UserID: 1, Content: "reply", ParentID: &older.ID, CreatedAt: base.Add(2 * time.Minute)}
	require.NoError(t, fx.db.Create(&reply).Error)

	app := newCommentApp(fx, 1)
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/projects/%d/comments", project.ID), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Comments []CommentResponse `json:"comments"`
	}
	decodeBody(t, resp, &body)

	// 최상위 댓글만 최신순, 답글은 부모 아래에 중첩된다
	require.Len(t, body.Comments, 2)
	require.Equal(t, "newer", body.Comments[0].Content)
	require.Equal(t, "older", body.Comments[1].Content)
	require.Len(t, body.Comments[1].Replies, 1)
	require.Equal(t, "reply", body.Comments[1].Replies[0].Content)
}

func TestGetComments_StrangerForbidden(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	fx.seedUser(t, 2, "stranger")
	project := fx.seedProject(t, 1)

	app := newCommentApp(fx, 2)
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/projects/%d/comments", project.ID), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeleteComment_AuthorOrOwnerOnly(t *testing.T) {
	fx := newWSFixture(t)
	fx.seedUser(t, 1, "owner")
	fx.seedUser(t, 2, "author")
	fx.seedUser(t, 3, "other")
	project := fx.seedProject(t, 1)
	fx.share(t, project.ID, 2, model.PermissionComment)
	fx.share(t, project.ID, 3, model.PermissionComment)

	comment := model.ProjectComment{ProjectID: project.ID, UserID: 2, Content: "mine"}
	require.NoError(t, fx.db.Create(&comment).Error)

	// 제3자는 삭제 불가
	otherApp := newCommentApp(fx, 3)
	req := httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/api/projects/%d/comments/%d", project.ID, comment.ID), nil)
	resp, err := otherApp.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// 작성자는 삭제 가능
	authorApp := newCommentApp(fx, 2)
	req = httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/api/projects/%d/comments/%d", project.ID, comment.ID), nil)
	resp, err = authorApp.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var count int64
	require.NoError(t, fx.db.Model(&model.ProjectComment{}).Count(&count).Error)
	require.Zero(t, count)
}
