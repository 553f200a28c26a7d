package service_test

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"collab-backend/internal/database"
	"collab-backend/internal/model"
	"collab-backend/internal/service"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestSessionService_UpsertCreatesThenUpdates(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewSessionService(db)

	require.NoError(t, svc.Upsert("sess-1", 10, 1))

	var session model.CollaborationSession
	require.NoError(t, db.Where("session_id = ?", "sess-1").First(&session).Error)
	require.Equal(t, int64(10), session.ProjectID)
	require.True(t, session.IsActive)

	// 같은 세션이 다른 프로젝트로 이동해도 row는 하나만 유지된다
	require.NoError(t, svc.Upsert("sess-1", 20, 1))

	var count int64
	require.NoError(t, db.Model(&model.CollaborationSession{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	require.NoError(t, db.Where("session_id = ?", "sess-1").First(&session).Error)
	require.Equal(t, int64(20), session.ProjectID)
}

func TestSessionService_DeactivateKeepsRow(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewSessionService(db)

	require.NoError(t, svc.Upsert("sess-1", 10, 1))
	require.NoError(t, svc.Deactivate("sess-1"))

	// 감사 기록이므로 비활성화만 하고 삭제하지 않는다
	var session model.CollaborationSession
	require.NoError(t, db.Where("session_id = ?", "sess-1").First(&session).Error)
	require.False(t, session.IsActive)
}

func TestSessionService_ReconnectReactivates(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewSessionService(db)

	require.NoError(t, svc.Upsert("sess-1", 10, 1))
	require.NoError(t, svc.Deactivate("sess-1"))
	require.NoError(t, svc.Upsert("sess-1", 10, 1))

	var session model.CollaborationSession
	require.NoError(t, db.Where("session_id = ?", "sess-1").First(&session).Error)
	require.True(t, session.IsActive)
}

func TestSessionService_DeactivateStale(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewSessionService(db)

	require.NoError(t, svc.Upsert("stale", 10, 1))
	require.NoError(t, svc.Upsert("fresh", 10, 2))

	// stale 세션의 last_seen을 과거로 되돌린다
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&model.CollaborationSession{}).
		Where("session_id = ?", "stale").
		Update("last_seen", old).Error)

	count, err := svc.DeactivateStale(time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	var stale, fresh model.CollaborationSession
	require.NoError(t, db.Where("session_id = ?", "stale").First(&stale).Error)
	require.NoError(t, db.Where("session_id = ?", "fresh").First(&fresh).Error)
	require.False(t, stale.IsActive)
	require.True(t, fresh.IsActive)
}
