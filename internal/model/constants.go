package model

// Permission 프로젝트 접근 권한 레벨
type Permission string

const (
	PermissionNone    Permission = "NONE"
	PermissionView    Permission = "VIEW"
	PermissionComment Permission = "COMMENT"
	PermissionEdit    Permission = "EDIT"
)

// String 메서드
func (p Permission) String() string {
	return string(p)
}

// rank EDIT ⊇ COMMENT ⊇ VIEW 순서
func (p Permission) rank() int {
	switch p {
	case PermissionView:
		return 1
	case PermissionComment:
		return 2
	case PermissionEdit:
		return 3
	default:
		return 0
	}
}

// AtLeast 요구 레벨 이상인지 확인
func (p Permission) AtLeast(required Permission) bool {
	return p.rank() >= required.rank()
}

// Valid 저장 가능한 권한 값인지 확인 (NONE은 row로 저장하지 않음)
func (p Permission) Valid() bool {
	switch p {
	case PermissionView, PermissionComment, PermissionEdit:
		return true
	}
	return false
}

// ActivityAction 활동 로그 액션 태그
const (
	ActivityActionEdit              = "edit"
	ActivityActionComment           = "comment"
	ActivityActionShare             = "share"
	ActivityActionShareRemoved      = "share-removed"
	ActivityActionPermissionUpdated = "permission-updated"
)

// NotificationType 알림 타입
type NotificationType string

const (
	NotificationTypeComment NotificationType = "comment"
	NotificationTypeShare   NotificationType = "share"
)

func (n NotificationType) String() string {
	return string(n)
}
