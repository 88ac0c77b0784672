// Package notification は利用者ごとの通知の追加・参照・既読化を提供する。
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// Service は通知のサービス層。
// 通知は永続化のみで、利用者はポーリングで取得する。
type Service struct {
	repo repository.NotificationRepository
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.NotificationRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Notify は利用者に通知を追加する。
func (s *Service) Notify(ctx context.Context, userID, message string) (*model.Notification, error) {
	n := &model.Notification{
		ID:        model.NewID(),
		UserID:    userID,
		Message:   message,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("通知の追加に失敗しました: %w", err)
	}

	slog.Info("通知を追加しました",
		slog.String("notification_id", n.ID),
		slog.String("user_id", userID),
	)
	return n, nil
}

// List は利用者の通知を新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Notification, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []*model.Notification{}
	}
	return list, nil
}

// UnreadCount は利用者の未読通知数を返す。
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("未読通知数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// MarkRead は利用者本人の通知を既読にする。他人の通知IDの場合は何もしない。
func (s *Service) MarkRead(ctx context.Context, notificationID, userID string) error {
	if err := s.repo.MarkRead(ctx, notificationID, userID); err != nil {
		return fmt.Errorf("通知の既読化に失敗しました: %w", err)
	}
	return nil
}

// MarkAllRead は利用者の全通知を既読にする。
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return fmt.Errorf("全通知の既読化に失敗しました: %w", err)
	}
	slog.Debug("全通知を既読にしました",
		slog.String("user_id", userID),
		slog.Int64("count", n),
	)
	return nil
}
