package handler

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"collab-backend/internal/auth"
	"collab-backend/internal/model"
	"collab-backend/internal/room"
	"collab-backend/internal/service"
)

// CommentHandler 프로젝트 댓글 핸들러
type CommentHandler struct {
	db            *gorm.DB
	registry      *room.Registry
	notifications *service.NotificationService
	activities    *service.ActivityService
}

// NewCommentHandler CommentHandler 생성
func NewCommentHandler(db *gorm.DB, registry *room.Registry, notifications *service.NotificationService, activities *service.ActivityService) *CommentHandler {
	return &CommentHandler{
		db:            db,
		registry:      registry,
		notifications: notifications,
		activities:    activities,
	}
}

// CreateCommentRequest 댓글 작성 요청
type CreateCommentRequest struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parentId,omitempty"`
}

// GetComments 프로젝트 댓글 목록 (최상위 댓글 최신순, 답글 포함)
func (h *CommentHandler) GetComments(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	projectID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project id",
		})
	}

	perm, err := auth.ProjectAccess(h.db, int64(projectID), claims.UserID)
	if errors.Is(err, auth.ErrProjectNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "project not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}
	if !perm.AtLeast(model.PermissionView) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "access denied",
		})
	}

	var comments []model.ProjectComment
	err = h.db.Where("project_id = ? AND parent_id IS NULL", projectID).
		Preload("User").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Replies.User").
		Order("created_at DESC").
		Find(&comments).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get comments",
		})
	}

	resp := make([]CommentResponse, 0, len(comments))
	for i := range comments {
		resp = append(resp, toCommentResponse(&comments[i]))
	}

	return c.JSON(fiber.Map{"comments": resp})
}

// CreateComment 댓글 작성.
// 웹소켓 add-comment와 동일한 검증 규칙을 적용하고, 작성 후
// 접속 중인 룸 전체에 comment-added를 브로드캐스트한다.
func (h *CommentHandler) CreateComment(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	projectID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project id",
		})
	}

	var req CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Comment content is required",
		})
	}

	perm, err := auth.ProjectAccess(h.db, int64(projectID), claims.UserID)
	if errors.Is(err, auth.ErrProjectNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "project not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}
	if !perm.AtLeast(model.PermissionComment) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Comment permission denied",
		})
	}

	if req.ParentID != nil {
		var parent model.ProjectComment
		err := h.db.Where("id = ? AND project_id = ?", *req.ParentID, projectID).
			First(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Parent comment not found",
			})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "database error",
			})
		}
	}

	comment := model.ProjectComment{
		ProjectID: int64(projectID),
		UserID:    claims.UserID,
		Content:   content,
		ParentID:  req.ParentID,
	}
	if err := h.db.Create(&comment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create comment",
		})
	}
	if err := h.db.Preload("User").First(&comment, comment.ID).Error; err != nil {
		log.Printf("[Comment] 작성자 로드 실패: %v", err)
	}

	if h.activities != nil {
		go func() {
			if err := h.activities.Record(int64(projectID), claims.UserID, model.ActivityActionComment,
				map[string]any{"commentId": comment.ID}); err != nil {
				log.Printf("[Comment] 활동 기록 실패: %v", err)
			}
		}()
	}
	if h.notifications != nil {
		go func() {
			var project model.Project
			if err := h.db.First(&project, projectID).Error; err != nil {
				log.Printf("[Comment] 알림용 프로젝트 로드 실패: %v", err)
				return
			}
			author := comment.User
			if err := h.notifications.NotifyComment(&project, &author); err != nil {
				log.Printf("[Comment] 알림 전송 실패: %v", err)
			}
		}()
	}

	if h.registry != nil {
		h.registry.Broadcast(int64(projectID), "comment-added", toCommentResponse(&comment))
	}

	return c.Status(fiber.StatusCreated).JSON(toCommentResponse(&comment))
}

// DeleteComment 댓글 삭제 (작성자 또는 프로젝트 소유자)
func (h *CommentHandler) DeleteComment(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	projectID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project id",
		})
	}
	commentID, err := c.ParamsInt("commentId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid comment id",
		})
	}

	var comment model.ProjectComment
	err = h.db.Where("id = ? AND project_id = ?", commentID, projectID).
		First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "comment not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}

	if comment.UserID != claims.UserID {
		var project model.Project
		if err := h.db.First(&project, projectID).Error; err != nil || project.UserID != claims.UserID {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "permission denied",
			})
		}
	}

	if err := h.db.Delete(&comment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete comment",
		})
	}

	return c.JSON(fiber.Map{"message": "comment deleted successfully"})
}
