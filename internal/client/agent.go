package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"collab-backend/internal/handler"
)

// State 에이전트 연결 상태
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// ErrClosed Close 이후 사용 시 반환
var ErrClosed = errors.New("agent closed")

// ErrNotConnected 연결 전 송신 시 반환
var ErrNotConnected = errors.New("agent not connected")

// Options 에이전트 설정
type Options struct {
	// URL 협업 WebSocket 엔드포인트 (ws://host/ws/collab)
	URL string
	// APIBaseURL REST 엔드포인트 (http://host) - 댓글 초기 로드용
	APIBaseURL string
	// Token JWT access token (쿠키 대신 query 파라미터로 전달)
	Token string

	ProjectID int64
	UserID    int64

	// 재연결 백오프. 0이면 기본값 사용.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	// MaxReconnectAttempts 0이면 무제한
	MaxReconnectAttempts int

	// 콜백 (모두 선택, readLoop 고루틴에서 호출됨)
	OnStateChange   func(State)
	OnContentUpdate func(handler.UpdatedPayload)
	OnCommentAdded  func(handler.CommentResponse)
	OnUserJoined    func(userID int64)
	OnUserLeft      func(userID int64)
	OnTyping        func(handler.TypingPayload)
	OnCursor        func(handler.CursorPayload)
	OnServerError   func(message string)
}

// Agent 협업 세션 클라이언트.
// 서버가 브로드캐스트하는 이벤트를 로컬 상태에 반영한다:
// project-updated는 내용 전체 교체, comment-added는 목록 앞에 추가,
// project-users/user-joined/user-left는 접속자 집합 갱신.
// 연결이 끊기면 지수 백오프로 재연결하고 다시 join한다.
type Agent struct {
	opts Options

	mu          sync.RWMutex
	state       State
	conn        *websocket.Conn
	content     string
	version     int
	comments    []handler.CommentResponse
	activeUsers map[int64]bool
	typingUsers map[int64]bool

	closeOnce sync.Once
	closed    chan struct{}
}

// New Agent 생성 (연결은 Connect에서)
func New(opts Options) *Agent {
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = time.Second
	}
	if opts.ReconnectMaxDelay <= 0 {
		opts.ReconnectMaxDelay = 30 * time.Second
	}
	return &Agent{
		opts:        opts,
		state:       StateDisconnected,
		activeUsers: make(map[int64]bool),
		typingUsers: make(map[int64]bool),
		closed:      make(chan struct{}),
	}
}

// State 현재 연결 상태
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Content 마지막으로 수신한 프로젝트 내용
func (a *Agent) Content() (string, int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.content, a.version
}

// Comments 수신한 댓글 목록 (최신순)
func (a *Agent) Comments() []handler.CommentResponse {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]handler.CommentResponse, len(a.comments))
	copy(out, a.comments)
	return out
}

// ActiveUsers 현재 room 접속자
func (a *Agent) ActiveUsers() []int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]int64, 0, len(a.activeUsers))
	for id := range a.activeUsers {
		out = append(out, id)
	}
	return out
}

// IsTyping 해당 사용자의 타이핑 상태
func (a *Agent) IsTyping(userID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.typingUsers[userID]
}

// Connect 서버에 연결하고 프로젝트 room에 join한다.
// 첫 연결 성공 후에는 끊겨도 백그라운드에서 재연결한다.
func (a *Agent) Connect(ctx context.Context) error {
	select {
	case <-a.closed:
		return ErrClosed
	default:
	}

	if err := a.dial(ctx); err != nil {
		a.setState(StateDisconnected)
		return err
	}

	go a.run()
	return nil
}

// dial 연결 + join-project 전송
func (a *Agent) dial(ctx context.Context) error {
	a.setState(StateConnecting)

	url := a.opts.URL
	if a.opts.Token != "" {
		url = fmt.Sprintf("%s?token=%s", a.opts.URL, a.opts.Token)
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	// 다이어그램 JSON은 커질 수 있음
	conn.SetReadLimit(10 * 1024 * 1024)

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	if err := a.write(ctx, "join-project", handler.JoinPayload{
		ProjectID: a.opts.ProjectID,
		UserID:    a.opts.UserID,
	}); err != nil {
		conn.Close(websocket.StatusInternalError, "join failed")
		return err
	}

	a.setState(StateConnected)
	return nil
}

// run 수신 루프 + 재연결 루프
func (a *Agent) run() {
	attempts := 0
	for {
		err := a.readLoop()

		a.setState(StateDisconnected)
		select {
		case <-a.closed:
			return
		default:
		}
		if err != nil {
			log.Printf("[Agent] 연결 끊김: %v", err)
		}

		// 지수 백오프 재연결
		delay := a.opts.ReconnectBaseDelay
		for {
			attempts++
			if a.opts.MaxReconnectAttempts > 0 && attempts > a.opts.MaxReconnectAttempts {
				log.Printf("[Agent] 재연결 포기 (%d회 시도)", attempts-1)
				return
			}

			select {
			case <-a.closed:
				return
			case <-time.After(delay):
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := a.dial(ctx)
			cancel()
			if err == nil {
				attempts = 0
				break
			}

			a.setState(StateDisconnected)
			log.Printf("[Agent] 재연결 실패: %v (다음 시도까지 %s)", err, delay)
			delay *= 2
			if delay > a.opts.ReconnectMaxDelay {
				delay = a.opts.ReconnectMaxDelay
			}
		}
	}
}

// readLoop 이벤트 수신/반영. 연결이 끊기면 반환한다.
func (a *Agent) readLoop() error {
	a.mu.RLock()
	conn := a.conn
	a.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	ctx := context.Background()
	for {
		select {
		case <-a.closed:
			return nil
		default:
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		a.handleEvent(msg.Event, msg.Data)
	}
}

func (a *Agent) handleEvent(event string, data json.RawMessage) {
	switch event {
	case "project-updated":
		var payload handler.UpdatedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		// 전체 교체 - 마지막 수신이 이긴다
		a.mu.Lock()
		a.content = payload.Content
		a.version = payload.Version
		a.mu.Unlock()
		if a.opts.OnContentUpdate != nil {
			a.opts.OnContentUpdate(payload)
		}

	case "comment-added":
		var comment handler.CommentResponse
		if err := json.Unmarshal(data, &comment); err != nil {
			return
		}
		a.mu.Lock()
		a.comments = append([]handler.CommentResponse{comment}, a.comments...)
		a.mu.Unlock()
		if a.opts.OnCommentAdded != nil {
			a.opts.OnCommentAdded(comment)
		}

	case "project-users":
		var users []int64
		if err := json.Unmarshal(data, &users); err != nil {
			return
		}
		a.mu.Lock()
		a.activeUsers = make(map[int64]bool, len(users))
		for _, id := range users {
			a.activeUsers[id] = true
		}
		a.mu.Unlock()

	case "user-joined":
		var payload handler.UserEventPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		a.mu.Lock()
		a.activeUsers[payload.UserID] = true
		a.mu.Unlock()
		if a.opts.OnUserJoined != nil {
			a.opts.OnUserJoined(payload.UserID)
		}

	case "user-left":
		var payload handler.UserEventPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		a.mu.Lock()
		delete(a.activeUsers, payload.UserID)
		delete(a.typingUsers, payload.UserID)
		a.mu.Unlock()
		if a.opts.OnUserLeft != nil {
			a.opts.OnUserLeft(payload.UserID)
		}

	case "user-typing":
		var payload handler.TypingPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		a.mu.Lock()
		if payload.IsTyping {
			a.typingUsers[payload.UserID] = true
		} else {
			delete(a.typingUsers, payload.UserID)
		}
		a.mu.Unlock()
		if a.opts.OnTyping != nil {
			a.opts.OnTyping(payload)
		}

	case "user-cursor":
		var payload handler.CursorPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		if a.opts.OnCursor != nil {
			a.opts.OnCursor(payload)
		}

	case "error":
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &payload)
		log.Printf("[Agent] 서버 오류: %s", payload.Message)
		if a.opts.OnServerError != nil {
			a.opts.OnServerError(payload.Message)
		}
	}
}

// SendUpdate 프로젝트 내용 전체를 전송한다.
// 서버가 새 버전을 정하므로 여기서 보내는 version은 참고값일 뿐이다.
func (a *Agent) SendUpdate(ctx context.Context, content string) error {
	a.mu.Lock()
	a.content = content
	version := a.version
	a.mu.Unlock()

	return a.write(ctx, "project-update", handler.UpdatePayload{
		ProjectID: a.opts.ProjectID,
		UserID:    a.opts.UserID,
		Content:   content,
		Version:   version,
	})
}

// SendComment 댓글 전송. 반영은 서버의 comment-added 브로드캐스트로만 한다.
func (a *Agent) SendComment(ctx context.Context, content string, parentID *int64) error {
	return a.write(ctx, "add-comment", handler.AddCommentPayload{
		ProjectID: a.opts.ProjectID,
		UserID:    a.opts.UserID,
		Content:   content,
		ParentID:  parentID,
	})
}

// SendTyping 타이핑 상태 전송
func (a *Agent) SendTyping(ctx context.Context, isTyping bool) error {
	return a.write(ctx, "user-typing", handler.TypingPayload{
		ProjectID: a.opts.ProjectID,
		UserID:    a.opts.UserID,
		IsTyping:  isTyping,
	})
}

// SendCursor 커서 위치 전송
func (a *Agent) SendCursor(ctx context.Context, position json.RawMessage) error {
	return a.write(ctx, "user-cursor", handler.CursorPayload{
		ProjectID: a.opts.ProjectID,
		UserID:    a.opts.UserID,
		Position:  position,
	})
}

func (a *Agent) write(ctx context.Context, event string, data any) error {
	a.mu.RLock()
	conn := a.conn
	state := a.state
	a.mu.RUnlock()
	if conn == nil || state == StateDisconnected {
		return ErrNotConnected
	}

	payload, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

// FetchComments REST로 기존 댓글을 로드해 로컬 목록을 초기화한다.
// WebSocket은 연결 이후의 댓글만 전달하므로 join 후 한 번 호출한다.
func (a *Agent) FetchComments(ctx context.Context) ([]handler.CommentResponse, error) {
	url := fmt.Sprintf("%s/api/projects/%d/comments", a.opts.APIBaseURL, a.opts.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if a.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.opts.Token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch comments: status %d", resp.StatusCode)
	}

	var body struct {
		Comments []handler.CommentResponse `json:"comments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.comments = body.Comments
	a.mu.Unlock()
	return body.Comments, nil
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	changed := a.state != s
	a.state = s
	a.mu.Unlock()
	if changed && a.opts.OnStateChange != nil {
		a.opts.OnStateChange(s)
	}
}

// Close 연결 종료. 재연결하지 않는다.
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closed)
		a.mu.Lock()
		conn := a.conn
		a.conn = nil
		a.state = StateDisconnected
		a.mu.Unlock()
		if conn != nil {
			err = conn.Close(websocket.StatusNormalClosure, "")
		}
	})
	return err
}
