package service_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"collab-backend/internal/model"
	"collab-backend/internal/service"
)

func seedCollab(t *testing.T, db *gorm.DB) (*model.Project, *model.User, *model.User) {
	t.Helper()

	owner := model.User{ID: 1, Email: "owner@example.com", Name: "owner"}
	guest := model.User{ID: 2, Email: "guest@example.com", Name: "guest"}
	require.NoError(t, db.Create(&owner).Error)
	require.NoError(t, db.Create(&guest).Error)

	project := model.Project{UserID: owner.ID, Title: "diagram", Content: "{}", Version: 1}
	require.NoError(t, db.Create(&project).Error)
	return &project, &owner, &guest
}

func TestNotifyComment_FansOutToOwnerAndShares(t *testing.T) {
	db := newTestDB(t)
	project, _, guest := seedCollab(t, db)

	third := model.User{ID: 3, Email: "third@example.com", Name: "third"}
	require.NoError(t, db.Create(&third).Error)
	for _, userID := range []int64{guest.ID, third.ID} {
		require.NoError(t, db.Create(&model.ProjectShare{
			ProjectID: project.ID, UserID: userID,
			Permission: string(model.PermissionComment),
			InvitedBy:  1, IsActive: true,
		}).Error)
	}

	svc := service.NewNotificationService(db)
	require.NoError(t, svc.NotifyComment(project, guest))

	// 작성자 제외, 소유자 + 다른 공유 사용자에게 정확히 한 번씩
	var notifications []model.Notification
	require.NoError(t, db.Order("user_id").Find(&notifications).Error)
	require.Len(t, notifications, 2)
	require.Equal(t, int64(1), notifications[0].UserID)
	require.Equal(t, int64(3), notifications[1].UserID)

	for _, n := range notifications {
		require.Equal(t, string(model.NotificationTypeComment), n.Type)
		require.Contains(t, n.Message, "guest")
		require.Contains(t, n.Message, "diagram")
		require.NotNil(t, n.ProjectID)
		require.Equal(t, project.ID, *n.ProjectID)
		require.NotNil(t, n.ActionURL)
		require.False(t, n.IsRead)
	}
}

func TestNotifyComment_OwnerCommentSkipsSelf(t *testing.T) {
	db := newTestDB(t)
	project, owner, guest := seedCollab(t, db)

	require.NoError(t, db.Create(&model.ProjectShare{
		ProjectID: project.ID, UserID: guest.ID,
		Permission: string(model.PermissionView),
		InvitedBy:  1, IsActive: true,
	}).Error)

	svc := service.NewNotificationService(db)
	require.NoError(t, svc.NotifyComment(project, owner))

	var notifications []model.Notification
	require.NoError(t, db.Find(&notifications).Error)
	require.Len(t, notifications, 1)
	require.Equal(t, guest.ID, notifications[0].UserID)
}

func TestNotifyComment_InactiveShareExcluded(t *testing.T) {
	db := newTestDB(t)
	project, _, guest := seedCollab(t, db)

	require.NoError(t, db.Create(&model.ProjectShare{
		ProjectID: project.ID, UserID: guest.ID,
		Permission: string(model.PermissionComment),
		InvitedBy:  1, IsActive: false,
	}).Error)

	commenter := model.User{ID: 5, Email: "c@example.com", Name: "c"}
	require.NoError(t, db.Create(&commenter).Error)

	svc := service.NewNotificationService(db)
	require.NoError(t, svc.NotifyComment(project, &commenter))

	// 해제된 공유 사용자는 받지 않는다 - 소유자만 수신
	var notifications []model.Notification
	require.NoError(t, db.Find(&notifications).Error)
	require.Len(t, notifications, 1)
	require.Equal(t, int64(1), notifications[0].UserID)
}

func TestNotifyShare_TargetsSharedUser(t *testing.T) {
	db := newTestDB(t)
	project, owner, guest := seedCollab(t, db)

	svc := service.NewNotificationService(db)
	require.NoError(t, svc.NotifyShare(project, owner, guest.ID))

	var notifications []model.Notification
	require.NoError(t, db.Find(&notifications).Error)
	require.Len(t, notifications, 1)
	require.Equal(t, guest.ID, notifications[0].UserID)
	require.Equal(t, string(model.NotificationTypeShare), notifications[0].Type)
	require.Contains(t, notifications[0].Message, "owner")
}

func TestActivityService_RecordDetails(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewActivityService(db)

	require.NoError(t, svc.Record(10, 1, model.ActivityActionEdit, map[string]any{"version": 2}))
	require.NoError(t, svc.Record(10, 1, model.ActivityActionComment, nil))

	activities, err := svc.Recent(10, 10)
	require.NoError(t, err)
	require.Len(t, activities, 2)

	var withDetails *model.ProjectActivity
	for i := range activities {
		if activities[i].Action == model.ActivityActionEdit {
			withDetails = &activities[i]
		}
	}
	require.NotNil(t, withDetails)
	require.NotNil(t, withDetails.Details)
	require.JSONEq(t, `{"version":2}`, *withDetails.Details)
}
