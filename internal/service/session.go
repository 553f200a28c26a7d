package service

import (
	"time"

	"gorm.io/gorm"

	"collab-backend/internal/model"
)

// SessionService 협업 세션 기록 (감사/재접속 추적용).
// 브로드캐스트 경로를 막지 않도록 비동기로 호출해도 된다.
type SessionService struct {
	db *gorm.DB
}

// NewSessionService SessionService 생성
func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{db: db}
}

// Upsert join 시 세션 기록 생성 또는 갱신 (session_id 기준)
func (s *SessionService) Upsert(sessionID string, projectID, userID int64) error {
	now := time.Now()
	var session model.CollaborationSession
	err := s.db.Where("session_id = ?", sessionID).First(&session).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.Create(&model.CollaborationSession{
			SessionID: sessionID,
			ProjectID: projectID,
			UserID:    userID,
			IsActive:  true,
			LastSeen:  now,
		}).Error
	}
	if err != nil {
		return err
	}

	return s.db.Model(&session).Updates(map[string]any{
		"project_id": projectID,
		"user_id":    userID,
		"is_active":  true,
		"last_seen":  now,
	}).Error
}

// Touch 활동 시각 갱신
func (s *SessionService) Touch(sessionID string) error {
	return s.db.Model(&model.CollaborationSession{}).
		Where("session_id = ?", sessionID).
		Update("last_seen", time.Now()).Error
}

// Deactivate disconnect 시 비활성 처리. 감사 기록이므로 삭제하지 않는다.
func (s *SessionService) Deactivate(sessionID string) error {
	return s.db.Model(&model.CollaborationSession{}).
		Where("session_id = ?", sessionID).
		Update("is_active", false).Error
}

// DeactivateStale lastSeen이 오래된 세션 일괄 비활성 처리 (운영 도구용)
func (s *SessionService) DeactivateStale(olderThan time.Duration) (int64, error) {
	result := s.db.Model(&model.CollaborationSession{}).
		Where("is_active = ? AND last_seen < ?", true, time.Now().Add(-olderThan)).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}
