package model

import (
	"time"
)

// User 사용자
type User struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name       string    `gorm:"type:varchar(100);not null" json:"name"`
	Image      *string   `gorm:"type:text" json:"image,omitempty"`
	Provider   *string   `gorm:"type:varchar(50)" json:"provider,omitempty"`
	ProviderID *string   `gorm:"type:varchar(255)" json:"provider_id,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Projects []Project      `gorm:"foreignKey:UserID" json:"projects,omitempty"`
	Shares   []ProjectShare `gorm:"foreignKey:UserID" json:"shares,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Project 다이어그램 프로젝트
type Project struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64      `gorm:"not null;index" json:"user_id"` // 소유자
	Title       string     `gorm:"type:varchar(200);not null" json:"title"`
	Description *string    `gorm:"type:text" json:"description,omitempty"`
	Content     string     `gorm:"type:text" json:"content"` // 직렬화된 다이어그램 (불투명 blob)
	Type        string     `gorm:"type:varchar(50);default:'class'" json:"type"`
	IsPublic    bool       `gorm:"default:false" json:"is_public"`
	Version     int        `gorm:"default:1" json:"version"`
	LastEditAt  *time.Time `json:"last_edit_at,omitempty"`
	LastEditBy  *int64     `json:"last_edit_by,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	User     User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Shares   []ProjectShare   `gorm:"foreignKey:ProjectID" json:"shares,omitempty"`
	Comments []ProjectComment `gorm:"foreignKey:ProjectID" json:"comments,omitempty"`
}

func (Project) TableName() string {
	return "projects"
}

// ProjectShare 프로젝트 공유 (사용자별 권한)
type ProjectShare struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID  int64     `gorm:"not null;uniqueIndex:idx_project_user" json:"project_id"`
	UserID     int64     `gorm:"not null;uniqueIndex:idx_project_user" json:"user_id"`
	Permission string    `gorm:"type:varchar(20);not null;default:'VIEW'" json:"permission"` // VIEW, COMMENT, EDIT
	IsActive   bool      `gorm:"default:true" json:"is_active"`
	InvitedBy  int64     `gorm:"not null" json:"invited_by"`
	InvitedAt  time.Time `gorm:"autoCreateTime" json:"invited_at"`

	// Relations
	Project Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ProjectShare) TableName() string {
	return "project_shares"
}

// ProjectComment 프로젝트 댓글 (답글은 1단계까지)
type ProjectComment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID int64     `gorm:"not null;index" json:"project_id"`
	UserID    int64     `gorm:"not null" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ParentID  *int64    `gorm:"index" json:"parent_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Project Project          `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	User    User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Replies []ProjectComment `gorm:"foreignKey:ParentID" json:"replies,omitempty"`
}

func (ProjectComment) TableName() string {
	return "project_comments"
}

// ProjectActivity 프로젝트 활동 로그 (append-only)
type ProjectActivity struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID int64     `gorm:"not null;index" json:"project_id"`
	UserID    int64     `gorm:"not null" json:"user_id"`
	Action    string    `gorm:"type:varchar(50);not null" json:"action"`
	Details   *string   `gorm:"type:text" json:"details,omitempty"` // JSON payload
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// Relations
	Project Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ProjectActivity) TableName() string {
	return "project_activities"
}

// CollaborationSession 실시간 연결 기록 (감사용, hard delete 없음)
type CollaborationSession struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"session_id"`
	ProjectID int64     `gorm:"not null;index" json:"project_id"`
	UserID    int64     `gorm:"not null" json:"user_id"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (CollaborationSession) TableName() string {
	return "collaboration_sessions"
}

// Notification 알림
type Notification struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64     `gorm:"not null;index" json:"user_id"` // 수신자
	Type         string    `gorm:"type:varchar(50);not null" json:"type"`
	Title        string    `gorm:"type:varchar(200);not null" json:"title"`
	Message      string    `gorm:"type:text;not null" json:"message"`
	ProjectID    *int64    `json:"project_id,omitempty"`
	ProjectTitle *string   `gorm:"type:varchar(200)" json:"project_title,omitempty"`
	ActionURL    *string   `gorm:"type:text" json:"action_url,omitempty"`
	IsRead       bool      `gorm:"default:false" json:"is_read"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
