package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"collab-backend/internal/auth"
	"collab-backend/internal/model"
	"collab-backend/internal/service"
)

// ShareHandler 프로젝트 공유 핸들러 (소유자 전용)
type ShareHandler struct {
	db            *gorm.DB
	notifications *service.NotificationService
	activities    *service.ActivityService
}

// NewShareHandler ShareHandler 생성
func NewShareHandler(db *gorm.DB, notifications *service.NotificationService, activities *service.ActivityService) *ShareHandler {
	return &ShareHandler{db: db, notifications: notifications, activities: activities}
}

// ShareProjectRequest 공유 추가 요청
type ShareProjectRequest struct {
	Email      string `json:"email"`
	Permission string `json:"permission"`
}

// UpdateShareRequest 공유 권한 변경 요청
type UpdateShareRequest struct {
	Permission string `json:"permission"`
}

// GetShares 공유 목록 조회
func (h *ShareHandler) GetShares(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	projectID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project id",
		})
	}

	if project, errResp := h.requireOwner(c, int64(projectID), claims.UserID); project == nil {
		return errResp
	}

	var shares []model.ProjectShare
	err = h.db.Where("project_id = ? AND is_active = ?", projectID, true).
		Preload("User").
		Order("created_at ASC").
		Find(&shares).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get shares",
		})
	}

	return c.JSON(fiber.Map{"shares": shares})
}

// ShareProject 이메일로 사용자를 찾아 공유 추가.
// 기존 공유 행이 있으면 권한을 갱신하고 재활성화한다.
func (h *ShareHandler) ShareProject(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	projectID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project id",
		})
	}

	var req ShareProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	perm := model.Permission(req.Permission)
	if !perm.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid permission",
		})
	}

	project, errResp := h.requireOwner(c, int64(projectID), claims.UserID)
	if project == nil {
		return errResp
	}

	var target model.User
	err = h.db.Where("email = ?", req.Email).First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}

	if target.ID == claims.UserID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cannot share a project with yourself",
		})
	}

	var share model.ProjectShare
	err = h.db.Where("project_id = ? AND user_id = ?", projectID, target.ID).
		First(&share).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		share = model.ProjectShare{
			ProjectID:  int64(projectID),
			UserID:     target.ID,
			Permission: string(perm),
			InvitedBy:  claims.UserID,
			IsActive:   true,
		}
		if err := h.db.Create(&share).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to share project",
			})
		}
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	default:
		updates := map[string]any{
			"permission": string(perm),
			"is_active":  true,
			"invited_by": claims.UserID,
		}
		if err := h.db.Model(&share).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to update share",
			})
		}
	}

	if h.activities != nil {
		go func() {
			if err := h.activities.Record(int64(projectID), claims.UserID, model.ActivityActionShare,
				map[string]any{"targetUserId": target.ID, "permission": string(perm)}); err != nil {
				log.Printf("[Share] 활동 기록 실패: %v", err)
			}
		}()
	}
	if h.notifications != nil {
		go func() {
			var sharer model.User
			if err := h.db.First(&sharer, claims.UserID).Error; err != nil {
				log.Printf("[Share] 알림용 사용자 로드 실패: %v", err)
				return
			}
			if err := h.notifications.NotifyShare(project, &sharer, target.ID); err != nil {
				log.Printf("[Share] 알림 전송 실패: %v", err)
			}
		}()
	}

	share.User = target
	return c.Status(fiber.StatusCreated).JSON(share)
}

// UpdateSharePermission 공유 권한 변경
func (h *ShareHandler) UpdateSharePermission(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	projectID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project id",
		})
	}
	shareID, err := c.ParamsInt("shareId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid share id",
		})
	}

	var req UpdateShareRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	perm := model.Permission(req.Permission)
	if !perm.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid permission",
		})
	}

	if project, errResp := h.requireOwner(c, int64(projectID), claims.UserID); project == nil {
		return errResp
	}

	var share model.ProjectShare
	err = h.db.Where("id = ? AND project_id = ?", shareID, projectID).
		First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "share not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}

	if err := h.db.Model(&share).Update("permission", string(perm)).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update permission",
		})
	}

	if h.activities != nil {
		go func() {
			if err := h.activities.Record(int64(projectID), claims.UserID, model.ActivityActionPermissionUpdated,
				map[string]any{"shareId": share.ID, "permission": string(perm)}); err != nil {
				log.Printf("[Share] 활동 기록 실패: %v", err)
			}
		}()
	}

	return c.JSON(share)
}

// RemoveShare 공유 해제. 행을 삭제하지 않고 비활성화한다.
func (h *ShareHandler) RemoveShare(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	projectID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project id",
		})
	}
	shareID, err := c.ParamsInt("shareId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid share id",
		})
	}

	if project, errResp := h.requireOwner(c, int64(projectID), claims.UserID); project == nil {
		return errResp
	}

	var share model.ProjectShare
	err = h.db.Where("id = ? AND project_id = ?", shareID, projectID).
		First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "share not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}

	if err := h.db.Model(&share).Update("is_active", false).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to remove share",
		})
	}

	if h.activities != nil {
		go func() {
			if err := h.activities.Record(int64(projectID), claims.UserID, model.ActivityActionShareRemoved,
				map[string]any{"shareId": share.ID, "targetUserId": share.UserID}); err != nil {
				log.Printf("[Share] 활동 기록 실패: %v", err)
			}
		}()
	}

	return c.JSON(fiber.Map{"message": "share removed successfully"})
}

// requireOwner 소유자 확인 후 프로젝트 반환.
// 실패 시 nil과 이미 작성된 에러 응답을 반환한다.
// 응답이 이미 써진 경우 에러는 nil일 수 있으므로 호출부는 프로젝트가 nil인지로 판단한다.
func (h *ShareHandler) requireOwner(c *fiber.Ctx, projectID, userID int64) (*model.Project, error) {
	var project model.Project
	err := h.db.First(&project, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "project not found",
		})
	}
	if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}
	if project.UserID != userID {
		return nil, c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "owner permission required",
		})
	}
	return &project, nil
}
