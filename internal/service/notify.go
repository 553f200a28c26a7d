package service

import (
	"fmt"

	"gorm.io/gorm"

	"collab-backend/internal/model"
)

// NotificationService 알림 생성/팬아웃
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService NotificationService 생성
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// NotifyComment 댓글 알림 팬아웃.
// 프로젝트 소유자와 모든 활성 공유 사용자에게 (작성자 제외) 정확히
// 한 번씩 알림을 만든다.
func (s *NotificationService) NotifyComment(project *model.Project, author *model.User) error {
	var shares []model.ProjectShare
	if err := s.db.Where("project_id = ? AND is_active = ?", project.ID, true).
		Find(&shares).Error; err != nil {
		return err
	}

	// 수신자 집합 구성 (소유자 + 공유 사용자, 작성자 제외, 중복 제거)
	recipients := make(map[int64]bool)
	if project.UserID != author.ID {
		recipients[project.UserID] = true
	}
	for _, share := range shares {
		if share.UserID != author.ID {
			recipients[share.UserID] = true
		}
	}

	message := fmt.Sprintf("%s commented on project \"%s\"", author.Name, project.Title)
	for userID := range recipients {
		if err := s.create(userID, model.NotificationTypeComment, "New comment", message, project); err != nil {
			return err
		}
	}
	return nil
}

// NotifyShare 공유 알림 (공유받은 사용자에게)
func (s *NotificationService) NotifyShare(project *model.Project, sharer *model.User, targetUserID int64) error {
	message := fmt.Sprintf("%s shared project \"%s\" with you", sharer.Name, project.Title)
	return s.create(targetUserID, model.NotificationTypeShare, "Project shared", message, project)
}

func (s *NotificationService) create(userID int64, typ model.NotificationType, title, message string, project *model.Project) error {
	actionURL := fmt.Sprintf("/designer?project=%d", project.ID)
	return s.db.Create(&model.Notification{
		UserID:       userID,
		Type:         typ.String(),
		Title:        title,
		Message:      message,
		ProjectID:    &project.ID,
		ProjectTitle: &project.Title,
		ActionURL:    &actionURL,
	}).Error
}
