package ledger

import (
	"context"
	"fmt"

	"course-payments/internal/domain/notifications"
	"course-payments/internal/errdefs"
)

func (s *Store) CreateAdminNotification(ctx context.Context, n *notifications.AdminNotification) error {
	if err := s.conn(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create admin notification: %w", err)
	}
	return nil
}

func (s *Store) CreateUserNotification(ctx context.Context, n *notifications.UserNotification) error {
	if err := s.conn(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create user notification: %w", err)
	}
	return nil
}

func (s *Store) ListAdminNotifications(ctx context.Context, unreadOnly bool, limit int) ([]notifications.AdminNotification, error) {
	q := s.conn(ctx).Order("created_at DESC")
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var out []notifications.AdminNotification
	if err := q.Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list admin notifications: %w", err)
	}
	return out, nil
}

func (s *Store) ListUserNotifications(ctx context.Context, userID uint) ([]notifications.UserNotification, error) {
	var out []notifications.UserNotification
	if err := s.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func (s *Store) MarkAdminNotificationRead(ctx context.Context, id uint) error {
	res := s.conn(ctx).Model(&notifications.AdminNotification{}).Where("id = ?", id).Update("read", true)
	if res.Error != nil {
		return fmt.Errorf("mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errdefs.NotFound("admin notification")
	}
	return nil
}
