package auth

import (
	"errors"

	"gorm.io/gorm"

	"collab-backend/internal/model"
)

var ErrProjectNotFound = errors.New("project not found")

// ProjectAccess 프로젝트 접근 권한 확인.
// 소유자는 항상 EDIT, 그 외에는 활성 공유 row의 권한을 따른다.
// 공유 row가 없거나 비활성이면 NONE.
//
// 공유 설정은 소유자가 언제든 바꿀 수 있으므로 권한이 필요한 모든
// 소켓 이벤트마다 다시 평가해야 한다.
func ProjectAccess(db *gorm.DB, projectID, userID int64) (model.Permission, error) {
	// 1. 소유자(Owner) 확인 - 소유자는 모든 권한을 가짐
	var ownerID int64
	err := db.Table("projects").Where("id = ?", projectID).Select("user_id").Scan(&ownerID).Error
	if err != nil {
		return model.PermissionNone, err
	}
	if ownerID == 0 {
		return model.PermissionNone, ErrProjectNotFound
	}
	if ownerID == userID {
		return model.PermissionEdit, nil
	}

	// 2. 활성 공유 row 조회
	var share model.ProjectShare
	err = db.Where("project_id = ? AND user_id = ? AND is_active = ?", projectID, userID, true).
		First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PermissionNone, nil
	}
	if err != nil {
		return model.PermissionNone, err
	}

	perm := model.Permission(share.Permission)
	if !perm.Valid() {
		return model.PermissionNone, nil
	}
	return perm, nil
}
