package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/bookman/internal/model"
)

// 購読者名。メトリクスのラベルとしても使用する。
const (
	HandlerAudit          = "audit"
	HandlerCatalogRefresh = "catalog-refresh"
	HandlerWaitlist       = "waitlist"
)

// CatalogRefresher はカタログキャッシュを再同期するインターフェース。
type CatalogRefresher interface {
	RefreshBook(ctx context.Context, bookID string) error
}

// WaitlistQueue は予約キューの操作インターフェース。
type WaitlistQueue interface {
	NextPending(ctx context.Context, bookID string) (*model.Reservation, error)
	SetStatus(ctx context.Context, reservationID string, status model.ReservationStatus) error
}

// Notifier は利用者への通知インターフェース。
type Notifier interface {
	Notify(ctx context.Context, userID, message string) (*model.Notification, error)
}

// AvailableMessage は予約者に送る貸出可能通知の本文を返す。
func AvailableMessage(title string) string {
	return fmt.Sprintf("Book \"%s\" is now available for you.", title)
}

// NewAuditHandler は返却を監査ログに記録する購読者を生成する。
func NewAuditHandler(logger *slog.Logger) Handler {
	return func(ctx context.Context, evt BookReturned) error {
		logger.InfoContext(ctx, fmt.Sprintf("%s returned %s", evt.UserName, evt.BookTitle),
			slog.String("loan_id", evt.LoanID),
			slog.String("user_id", evt.UserID),
			slog.String("book_id", evt.BookID),
			slog.Time("returned_at", evt.ReturnedAt),
		)
		return nil
	}
}

// NewCatalogRefreshHandler はカタログキャッシュを最新の在庫数に更新する購読者を生成する。
func NewCatalogRefreshHandler(refresher CatalogRefresher) Handler {
	return func(ctx context.Context, evt BookReturned) error {
		return refresher.RefreshBook(ctx, evt.BookID)
	}
}

// NewWaitlistHandler は最も古い待機中の予約者に通知し、予約を通知済みにする購読者を生成する。
func NewWaitlistHandler(queue WaitlistQueue, notifier Notifier) Handler {
	return func(ctx context.Context, evt BookReturned) error {
		next, err := queue.NextPending(ctx, evt.BookID)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		if _, err := notifier.Notify(ctx, next.UserID, AvailableMessage(evt.BookTitle)); err != nil {
			return err
		}
		if err := queue.SetStatus(ctx, next.ID, model.ReservationStatusNotified); err != nil {
			return err
		}

		slog.Info("予約者に貸出可能を通知しました",
			slog.String("reservation_id", next.ID),
			slog.String("user_id", next.UserID),
			slog.String("book_id", evt.BookID),
		)
		return nil
	}
}

// RegisterDefaultSubscribers は返却イベントの3つの購読者を登録する。
func RegisterDefaultSubscribers(bus *Bus, logger *slog.Logger, refresher CatalogRefresher, queue WaitlistQueue, notifier Notifier) {
	bus.Subscribe(HandlerAudit, NewAuditHandler(logger))
	bus.Subscribe(HandlerCatalogRefresh, NewCatalogRefreshHandler(refresher))
	bus.Subscribe(HandlerWaitlist, NewWaitlistHandler(queue, notifier))
}
