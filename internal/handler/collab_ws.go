package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"collab-backend/internal/auth"
	"collab-backend/internal/config"
	"collab-backend/internal/model"
	"collab-backend/internal/presence"
	"collab-backend/internal/room"
	"collab-backend/internal/service"
)

// CollabWSHandler 실시간 협업 WebSocket 핸들러.
// 프로젝트 room 단위로 업데이트/댓글/presence 이벤트를 중계한다.
type CollabWSHandler struct {
	db         *gorm.DB
	registry   *room.Registry
	presence   *presence.Manager // nil이면 presence 캐시 비활성
	sessions   *service.SessionService
	activities *service.ActivityService
	wsCfg      config.WebSocketConfig
}

// NewCollabWSHandler CollabWSHandler 생성
func NewCollabWSHandler(db *gorm.DB, registry *room.Registry, pres *presence.Manager, wsCfg config.WebSocketConfig) *CollabWSHandler {
	return &CollabWSHandler{
		db:         db,
		registry:   registry,
		presence:   pres,
		sessions:   service.NewSessionService(db),
		activities: service.NewActivityService(db),
		wsCfg:      wsCfg,
	}
}

// envelope 수신 이벤트 봉투
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinPayload join-project 페이로드
type JoinPayload struct {
	ProjectID int64 `json:"projectId"`
	UserID    int64 `json:"userId"`
}

// UpdatePayload project-update 페이로드
type UpdatePayload struct {
	ProjectID int64  `json:"projectId"`
	UserID    int64  `json:"userId"`
	Content   string `json:"content"`
	Version   int    `json:"version"`
	Action    string `json:"action"`
}

// UpdatedPayload project-updated 브로드캐스트
type UpdatedPayload struct {
	ProjectID int64     `json:"projectId"`
	UserID    int64     `json:"userId"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// AddCommentPayload add-comment 페이로드
type AddCommentPayload struct {
	ProjectID int64  `json:"projectId"`
	UserID    int64  `json:"userId"`
	Content   string `json:"content"`
	ParentID  *int64 `json:"parentId,omitempty"`
}

// UserEventPayload user-joined / user-left 브로드캐스트
type UserEventPayload struct {
	UserID    int64 `json:"userId"`
	ProjectID int64 `json:"projectId"`
}

// TypingPayload user-typing 페이로드 (검증 없이 중계)
type TypingPayload struct {
	ProjectID int64 `json:"projectId"`
	UserID    int64 `json:"userId"`
	IsTyping  bool  `json:"isTyping"`
}

// CursorPayload user-cursor 페이로드 (검증 없이 중계)
type CursorPayload struct {
	ProjectID int64           `json:"projectId"`
	UserID    int64           `json:"userId"`
	Position  json.RawMessage `json:"position"`
}

// HandleWebSocket WebSocket 연결 처리
func (h *CollabWSHandler) HandleWebSocket(c *websocket.Conn) {
	// 패닉 복구 - 서버 크래시 방지
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[CollabWS] 패닉 복구: %v", r)
		}
	}()

	userID, ok1 := c.Locals("userId").(int64)
	name, ok2 := c.Locals("name").(string)
	if !ok1 || !ok2 {
		c.WriteMessage(websocket.TextMessage, []byte(`{"event":"error","data":{"message":"invalid session"}}`))
		c.Close()
		return
	}
	image, _ := c.Locals("image").(string)

	sessionID := uuid.New().String()
	client := room.NewClient(sessionID, userID, name, image, c)

	log.Printf("[CollabWS] 연결: session=%s user=%d", sessionID, userID)

	// heartbeat: pong 수신 시 read deadline 연장
	pongWait := h.wsCfg.PongWait
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.pingLoop(client, done)

	// 연결 해제 시 정리
	defer func() {
		close(done)
		h.handleDisconnect(client)
		c.Close()
		log.Printf("[CollabWS] 연결 해제: session=%s user=%d", sessionID, userID)
	}()

	// 메시지 수신 루프
	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}
		c.SetReadDeadline(time.Now().Add(pongWait))

		var msg envelope
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			continue
		}

		h.dispatch(client, msg)
	}
}

// dispatch 이벤트별 핸들러 호출
func (h *CollabWSHandler) dispatch(client *room.Client, msg envelope) {
	switch msg.Event {
	case "join-project":
		h.handleJoin(client, msg.Data)
	case "project-update":
		h.handleProjectUpdate(client, msg.Data)
	case "add-comment":
		h.handleAddComment(client, msg.Data)
	case "user-typing":
		h.handleTyping(client, msg.Data)
	case "user-cursor":
		h.handleCursor(client, msg.Data)
	}
}

// pingLoop 주기적으로 ping 전송, 실패하면 중단
func (h *CollabWSHandler) pingLoop(client *room.Client, done <-chan struct{}) {
	interval := h.wsCfg.PingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
			// presence TTL 연장 (best-effort)
			if h.presence != nil {
				if projectID, ok := h.registry.RoomOf(client.SessionID); ok {
					ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
					h.presence.Touch(ctx, projectID, client.UserID)
					cancel()
				}
			}
		}
	}
}

func (h *CollabWSHandler) sendError(client *room.Client, message string) {
	client.Send("error", map[string]string{"message": message})
}

// handleJoin 프로젝트 room 입장.
// VIEW 이상 권한 확인 후 room에 추가하고 다른 멤버에게 user-joined,
// 본인에게 project-users 스냅샷을 보낸다.
func (h *CollabWSHandler) handleJoin(client *room.Client, data json.RawMessage) {
	var payload JoinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid join-project payload")
		return
	}
	// 페이로드의 userId는 인증된 사용자와 일치해야 함
	if payload.UserID != 0 && payload.UserID != client.UserID {
		h.sendError(client, "user mismatch")
		return
	}

	// 권한은 join마다 재평가 (공유 설정은 언제든 바뀔 수 있음)
	perm, err := auth.ProjectAccess(h.db, payload.ProjectID, client.UserID)
	if err != nil && !errors.Is(err, auth.ErrProjectNotFound) {
		log.Printf("[CollabWS] 권한 조회 실패: %v", err)
		h.sendError(client, "Failed to join project")
		return
	}
	if errors.Is(err, auth.ErrProjectNotFound) || !perm.AtLeast(model.PermissionView) {
		h.sendError(client, "Access denied")
		return
	}

	// 다른 프로젝트에 있던 세션이면 기존 room에 user-left 알림
	if prev, ok := h.registry.RoomOf(client.SessionID); ok && prev != payload.ProjectID {
		h.registry.Leave(client.SessionID)
		h.registry.Broadcast(prev, "user-left", UserEventPayload{UserID: client.UserID, ProjectID: prev})
	}

	h.registry.Join(payload.ProjectID, client)

	// 다른 멤버에게 입장 알림
	h.registry.BroadcastExcept(payload.ProjectID, client.SessionID, "user-joined",
		UserEventPayload{UserID: client.UserID, ProjectID: payload.ProjectID})

	// 본인에게 현재 멤버 스냅샷
	client.Send("project-users", h.registry.UserIDs(payload.ProjectID))

	// 세션 기록과 presence는 브로드캐스트 경로 밖에서 비동기 처리
	go func() {
		if err := h.sessions.Upsert(client.SessionID, payload.ProjectID, client.UserID); err != nil {
			log.Printf("[CollabWS] 세션 기록 실패: %v", err)
		}
	}()
	if h.presence != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			entry := presence.Entry{UserID: client.UserID, Name: client.Name, Image: client.Image}
			if err := h.presence.Set(ctx, payload.ProjectID, entry); err != nil {
				log.Printf("[CollabWS] presence 등록 실패: %v", err)
			}
		}()
	}

	log.Printf("[CollabWS] 입장: user=%d project=%d", client.UserID, payload.ProjectID)
}

// handleProjectUpdate 전체 내용 교체 업데이트 (last-writer-wins).
// 클라이언트가 보낸 version과 무관하게 저장된 version+1이 새 버전이 된다.
// 두 세션이 동시에 업데이트하면 나중에 도착한 쪽이 덮어쓴다 - 의도된 동작.
func (h *CollabWSHandler) handleProjectUpdate(client *room.Client, data json.RawMessage) {
	var payload UpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid project-update payload")
		return
	}

	perm, err := auth.ProjectAccess(h.db, payload.ProjectID, client.UserID)
	if err != nil && !errors.Is(err, auth.ErrProjectNotFound) {
		log.Printf("[CollabWS] 권한 조회 실패: %v", err)
		h.sendError(client, "Failed to update project")
		return
	}
	if errors.Is(err, auth.ErrProjectNotFound) {
		h.sendError(client, "Project not found")
		return
	}
	if !perm.AtLeast(model.PermissionEdit) {
		h.sendError(client, "Edit permission denied")
		return
	}

	var project model.Project
	if err := h.db.First(&project, payload.ProjectID).Error; err != nil {
		h.sendError(client, "Project not found")
		return
	}

	now := time.Now()
	newVersion := project.Version + 1
	err = h.db.Model(&project).Updates(map[string]any{
		"content":      payload.Content,
		"version":      newVersion,
		"last_edit_at": now,
		"last_edit_by": client.UserID,
	}).Error
	if err != nil {
		log.Printf("[CollabWS] 업데이트 저장 실패: project=%d err=%v", payload.ProjectID, err)
		h.sendError(client, "Failed to update project")
		return
	}

	action := payload.Action
	if action == "" {
		action = model.ActivityActionEdit
	}
	if err := h.activities.Record(payload.ProjectID, client.UserID, action, map[string]any{"version": newVersion}); err != nil {
		log.Printf("[CollabWS] 활동 기록 실패: %v", err)
	}

	// 보낸 세션 제외 브로드캐스트 (보낸 쪽은 이미 로컬에 반영됨)
	h.registry.BroadcastExcept(payload.ProjectID, client.SessionID, "project-updated", UpdatedPayload{
		ProjectID: payload.ProjectID,
		UserID:    client.UserID,
		Content:   payload.Content,
		Version:   newVersion,
		Action:    action,
		Timestamp: now,
	})

	log.Printf("[CollabWS] 업데이트: project=%d user=%d version=%d", payload.ProjectID, client.UserID, newVersion)
}

// handleAddComment 댓글 추가.
// 댓글은 보낸 세션을 포함해 room 전체에 브로드캐스트한다 - 클라이언트는
// 낙관적 반영 없이 이 이벤트로 댓글을 표시한다.
func (h *CollabWSHandler) handleAddComment(client *room.Client, data json.RawMessage) {
	var payload AddCommentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid add-comment payload")
		return
	}

	content := strings.TrimSpace(payload.Content)
	if content == "" {
		h.sendError(client, "Comment content is required")
		return
	}

	perm, err := auth.ProjectAccess(h.db, payload.ProjectID, client.UserID)
	if err != nil && !errors.Is(err, auth.ErrProjectNotFound) {
		log.Printf("[CollabWS] 권한 조회 실패: %v", err)
		h.sendError(client, "Failed to add comment")
		return
	}
	if errors.Is(err, auth.ErrProjectNotFound) {
		h.sendError(client, "Project not found")
		return
	}
	if !perm.AtLeast(model.PermissionComment) {
		h.sendError(client, "Comment permission denied")
		return
	}

	// 답글이면 부모 댓글이 같은 프로젝트에 있어야 함 (권한 오류가 아닌 not-found)
	if payload.ParentID != nil {
		var parent model.ProjectComment
		err := h.db.Where("id = ? AND project_id = ?", *payload.ParentID, payload.ProjectID).
			First(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.sendError(client, "Parent comment not found")
			return
		}
		if err != nil {
			log.Printf("[CollabWS] 부모 댓글 조회 실패: %v", err)
			h.sendError(client, "Failed to add comment")
			return
		}
	}

	comment := model.ProjectComment{
		ProjectID: payload.ProjectID,
		UserID:    client.UserID,
		Content:   content,
		ParentID:  payload.ParentID,
	}
	if err := h.db.Create(&comment).Error; err != nil {
		log.Printf("[CollabWS] 댓글 저장 실패: %v", err)
		h.sendError(client, "Failed to add comment")
		return
	}
	if err := h.db.First(&comment.User, client.UserID).Error; err != nil {
		log.Printf("[CollabWS] 작성자 조회 실패: %v", err)
	}

	if err := h.activities.Record(payload.ProjectID, client.UserID, model.ActivityActionComment,
		map[string]any{"commentId": comment.ID}); err != nil {
		log.Printf("[CollabWS] 활동 기록 실패: %v", err)
	}

	// 보낸 세션 포함 전체 브로드캐스트
	h.registry.Broadcast(payload.ProjectID, "comment-added", toCommentResponse(&comment))

	log.Printf("[CollabWS] 댓글: project=%d user=%d comment=%d", payload.ProjectID, client.UserID, comment.ID)
}

// handleTyping 타이핑 상태를 보낸 세션 제외 room에 그대로 중계 (권한 검증 없음)
func (h *CollabWSHandler) handleTyping(client *room.Client, data json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	h.registry.BroadcastExcept(payload.ProjectID, client.SessionID, "user-typing", json.RawMessage(data))

	if h.presence != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := h.presence.SetTyping(ctx, payload.ProjectID, client.UserID, payload.IsTyping); err != nil {
				log.Printf("[CollabWS] presence 갱신 실패: %v", err)
			}
		}()
	}
}

// handleCursor 커서 위치를 보낸 세션 제외 room에 그대로 중계 (권한 검증 없음)
func (h *CollabWSHandler) handleCursor(client *room.Client, data json.RawMessage) {
	var payload CursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	h.registry.BroadcastExcept(payload.ProjectID, client.SessionID, "user-cursor", json.RawMessage(data))
}

// handleDisconnect 연결 해제 정리.
// room에서 제거 후 남은 멤버에게 user-left를 정확히 한 번 보낸다.
func (h *CollabWSHandler) handleDisconnect(client *room.Client) {
	projectID, _, ok := h.registry.Leave(client.SessionID)
	if ok {
		// 이미 제거된 뒤라 Broadcast는 남은 멤버에게만 간다
		h.registry.Broadcast(projectID, "user-left",
			UserEventPayload{UserID: client.UserID, ProjectID: projectID})
	}

	go func() {
		if err := h.sessions.Deactivate(client.SessionID); err != nil {
			log.Printf("[CollabWS] 세션 비활성 실패: %v", err)
		}
	}()
	if ok && h.presence != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := h.presence.Remove(ctx, projectID, client.UserID); err != nil {
				log.Printf("[CollabWS] presence 제거 실패: %v", err)
			}
		}()
	}
}
