package handler

import (
	"time"

	"collab-backend/internal/model"
)

// UserSummary 응답에 denormalize되는 작성자 표시 정보
type UserSummary struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Image *string `json:"image,omitempty"`
}

func toUserSummary(u *model.User) UserSummary {
	return UserSummary{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Image: u.Image,
	}
}

// CommentResponse 댓글 응답/브로드캐스트 페이로드
type CommentResponse struct {
	ID        int64             `json:"id"`
	ProjectID int64             `json:"projectId"`
	UserID    int64             `json:"userId"`
	Content   string            `json:"content"`
	ParentID  *int64            `json:"parentId,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	User      UserSummary       `json:"user"`
	Replies   []CommentResponse `json:"replies,omitempty"`
}

func toCommentResponse(c *model.ProjectComment) CommentResponse {
	resp := CommentResponse{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		UserID:    c.UserID,
		Content:   c.Content,
		ParentID:  c.ParentID,
		CreatedAt: c.CreatedAt,
		User:      toUserSummary(&c.User),
	}
	for i := range c.Replies {
		resp.Replies = append(resp.Replies, toCommentResponse(&c.Replies[i]))
	}
	return resp
}
