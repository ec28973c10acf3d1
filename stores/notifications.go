package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/Frodemaneskold/greenup/gateway"
	"github.com/Frodemaneskold/greenup/models"
)

// NotificationData is the snapshot of the user's notifications, newest first.
type NotificationData struct {
	Notifications []models.Notification
}

// NotificationStore holds server-generated notifications. Rows are created
// remotely as side effects of other mutations; the client only marks them
// read.
type NotificationStore struct {
	*store[NotificationData]
	gw     *gateway.Client
	userID string
}

// NewNotificationStore creates the store for the given signed-in user id.
func NewNotificationStore(gw *gateway.Client, userID string) *NotificationStore {
	s := &NotificationStore{gw: gw, userID: userID}
	s.store = newStore(s.fetchAll)
	return s
}

func (s *NotificationStore) fetchAll(ctx context.Context) (NotificationData, error) {
	var notifications []models.Notification
	err := s.gw.From(models.NotificationsTable).
		Select("*").
		Eq("user_id", s.userID).
		Order("created_at", false).
		ExecuteInto(ctx, &notifications)
	if err != nil {
		return NotificationData{}, fmt.Errorf("fetch notifications: %w", err)
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	return NotificationData{Notifications: notifications}, nil
}

// Unread returns the number of unread notifications.
func (s *NotificationStore) Unread() int {
	var n int
	for _, notif := range s.Get().Notifications {
		if !notif.Read() {
			n++
		}
	}
	return n
}

// MarkRead stamps a notification read, optimistically and then remotely.
func (s *NotificationStore) MarkRead(ctx context.Context, notificationID string) error {
	s.applyLocal(func(data NotificationData) NotificationData {
		notifications := make([]models.Notification, len(data.Notifications))
		copy(notifications, data.Notifications)
		now := time.Now()
		for i := range notifications {
			if notifications[i].ID == notificationID && notifications[i].ReadAt == nil {
				notifications[i].ReadAt = &now
			}
		}
		data.Notifications = notifications
		return data
	})

	_, err := s.gw.From(models.NotificationsTable).
		Eq("id", notificationID).
		Eq("user_id", s.userID).
		Is("read_at", "null").
		ExecuteUpdate(ctx, map[string]any{
			"read_at": time.Now().UTC().Format(time.RFC3339),
		})
	if refreshErr := s.settle(ctx); err == nil {
		err = refreshErr
	}
	return err
}

// bind subscribes to the user's notification rows. An insert triggers a full
// refetch rather than an incremental append, so delivery order and duplicate
// events cannot skew the snapshot.
func (s *NotificationStore) bind(ctx context.Context, feed gateway.ChangeFeed, refresh func()) ([]func(), error) {
	configs := []gateway.ChangeConfig{
		{Table: models.NotificationsTable, Filter: "user_id=eq." + s.userID},
	}
	return subscribeAll(ctx, feed, configs, refresh)
}
