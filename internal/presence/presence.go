package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// presenceTTL 키 수명. heartbeat가 주기적으로 연장한다.
const presenceTTL = 60 * time.Second

// Entry 프로젝트 내 한 사용자의 presence 상태
type Entry struct {
	UserID   int64     `json:"userId"`
	Name     string    `json:"name"`
	Image    string    `json:"image,omitempty"`
	IsTyping bool      `json:"isTyping"`
	LastSeen time.Time `json:"lastSeen"`
}

// Manager Redis 기반 presence 관리자.
// 프로젝트별 사용자 집합(set) + 사용자별 JSON 키(TTL)로 저장한다.
// 멀티 인스턴스 배포 시 in-memory Registry 대신 이 저장소를 공유하면
// 인터페이스 계약은 그대로 유지된다.
type Manager struct {
	client *redis.Client
}

// NewManager Redis 연결 후 Manager 생성
func NewManager(addr, password string, db int) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Manager{client: client}, nil
}

// NewManagerWithClient 기존 클라이언트 재사용 (테스트용)
func NewManagerWithClient(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// Ping 헬스체크용 Redis 연결 확인
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close 클라이언트 종료
func (m *Manager) Close() error {
	return m.client.Close()
}

// Key 생성 유틸
func projectKey(projectID int64) string {
	return fmt.Sprintf("presence:project:%d", projectID)
}

func entryKey(projectID, userID int64) string {
	return fmt.Sprintf("presence:project:%d:user:%d", projectID, userID)
}

// Set 사용자 presence 등록/갱신 (join 시)
func (m *Manager) Set(ctx context.Context, projectID int64, e Entry) error {
	e.LastSeen = time.Now()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.SAdd(ctx, projectKey(projectID), e.UserID)
	pipe.Set(ctx, entryKey(projectID, e.UserID), data, presenceTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// SetTyping 타이핑 상태 갱신. presence 키가 없으면 무시 (best-effort).
func (m *Manager) SetTyping(ctx context.Context, projectID, userID int64, isTyping bool) error {
	key := entryKey(projectID, userID)

	val, err := m.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return err
	}

	e.IsTyping = isTyping
	e.LastSeen = time.Now()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, key, data, presenceTTL).Err()
}

// Touch 생존 신고 (TTL 연장)
func (m *Manager) Touch(ctx context.Context, projectID, userID int64) error {
	result, err := m.client.Expire(ctx, entryKey(projectID, userID), presenceTTL).Result()
	if err != nil {
		return err
	}
	if !result {
		return fmt.Errorf("user %d not present in project %d", userID, projectID)
	}
	return nil
}

// Remove presence 삭제 (disconnect 시)
func (m *Manager) Remove(ctx context.Context, projectID, userID int64) error {
	pipe := m.client.TxPipeline()
	pipe.SRem(ctx, projectKey(projectID), userID)
	pipe.Del(ctx, entryKey(projectID, userID))
	_, err := pipe.Exec(ctx)
	return err
}

// List 프로젝트의 presence 목록 조회.
// TTL로 만료된 사용자는 집합에서도 정리한다.
func (m *Manager) List(ctx context.Context, projectID int64) ([]Entry, error) {
	ids, err := m.client.SMembers(ctx, projectKey(projectID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Entry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = projectKey(projectID) + ":user:" + id
	}

	// MGET으로 한 번에 조회
	results, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(results))
	for i, result := range results {
		if result == nil {
			// 만료된 키 - 집합에서 제거
			m.client.SRem(ctx, projectKey(projectID), ids[i])
			continue
		}

		strVal, ok := result.(string)
		if !ok {
			continue
		}

		var e Entry
		if err := json.Unmarshal([]byte(strVal), &e); err == nil {
			entries = append(entries, e)
		}
	}

	return entries, nil
}
