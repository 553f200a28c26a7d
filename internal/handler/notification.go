package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"collab-backend/internal/auth"
	"collab-backend/internal/model"
)

// NotificationHandler 알림 조회/읽음 처리 핸들러
type NotificationHandler struct {
	db *gorm.DB
}

// NewNotificationHandler NotificationHandler 생성
func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

// GetNotifications 내 알림 목록 (최신순, limit/offset 페이징)
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	var notifications []model.Notification
	err := h.db.Where("user_id = ?", claims.UserID).
		Order("created_at DESC").
		Limit(limit + 1).
		Offset(offset).
		Find(&notifications).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get notifications",
		})
	}

	hasMore := len(notifications) > limit
	if hasMore {
		notifications = notifications[:limit]
	}

	var unread int64
	if err := h.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", claims.UserID, false).
		Count(&unread).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to count notifications",
		})
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"unread_count":  unread,
		"has_more":      hasMore,
	})
}

// MarkRead 알림 읽음 처리
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	notificationID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid notification id",
		})
	}

	var notification model.Notification
	err = h.db.Where("id = ? AND user_id = ?", notificationID, claims.UserID).
		First(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "notification not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}

	if err := h.db.Model(&notification).Update("is_read", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update notification",
		})
	}

	return c.JSON(notification)
}

// MarkAllRead 모든 알림 읽음 처리
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	err := h.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", claims.UserID, false).
		Update("is_read", true).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update notifications",
		})
	}

	return c.JSON(fiber.Map{"message": "all notifications marked as read"})
}

// DeleteNotification 알림 삭제
func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	notificationID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid notification id",
		})
	}

	result := h.db.Where("id = ? AND user_id = ?", notificationID, claims.UserID).
		Delete(&model.Notification{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete notification",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "notification not found",
		})
	}

	return c.JSON(fiber.Map{"message": "notification deleted successfully"})
}
