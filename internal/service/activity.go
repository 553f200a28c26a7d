package service

import (
	"encoding/json"

	"gorm.io/gorm"

	"collab-backend/internal/model"
)

// ActivityService 프로젝트 활동 로그 (append-only)
type ActivityService struct {
	db *gorm.DB
}

// NewActivityService ActivityService 생성
func NewActivityService(db *gorm.DB) *ActivityService {
	return &ActivityService{db: db}
}

// Record 활동 기록 추가. details는 JSON 직렬화된다.
func (s *ActivityService) Record(projectID, userID int64, action string, details any) error {
	var detailsJSON *string
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return err
		}
		str := string(data)
		detailsJSON = &str
	}

	return s.db.Create(&model.ProjectActivity{
		ProjectID: projectID,
		UserID:    userID,
		Action:    action,
		Details:   detailsJSON,
	}).Error
}

// Recent 프로젝트의 최근 활동 조회
func (s *ActivityService) Recent(projectID int64, limit int) ([]model.ProjectActivity, error) {
	var activities []model.ProjectActivity
	err := s.db.Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&activities).Error
	return activities, err
}
