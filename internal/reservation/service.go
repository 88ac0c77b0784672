// Package reservation は書籍ごとの予約キューのドメインロジックを提供する。
package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// Service は予約キューのサービス層。
// キューの順序は作成日時の昇順で、先頭の予約者のみが貸出を受けられる。
type Service struct {
	resRepo  repository.ReservationRepository
	userRepo repository.UserRepository
	bookRepo repository.BookRepository
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	resRepo repository.ReservationRepository,
	userRepo repository.UserRepository,
	bookRepo repository.BookRepository,
) *Service {
	return &Service{
		resRepo:  resRepo,
		userRepo: userRepo,
		bookRepo: bookRepo,
		now:      time.Now,
	}
}

// Create は予約を作成する。
// 同じ利用者が同じ書籍に対して待機中の予約を持っている場合はエラーを返す。
func (s *Service) Create(ctx context.Context, userID, bookID string) (*model.Reservation, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	book, err := s.bookRepo.FindByID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("書籍の取得に失敗しました: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(bookID)
	}

	existing, err := s.resRepo.FindPending(ctx, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("既存予約の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyExistsError("この書籍の待機中の予約")
	}

	now := s.now()
	res := &model.Reservation{
		ID:        model.NewID(),
		UserID:    userID,
		BookID:    bookID,
		Status:    model.ReservationStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.resRepo.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("予約の作成に失敗しました: %w", err)
	}

	slog.Info("予約を作成しました",
		slog.String("reservation_id", res.ID),
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
	)
	return res, nil
}

// ListByUser は利用者の予約一覧を書籍情報付きで返す。
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*model.ReservationDetail, error) {
	list, err := s.resRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []*model.ReservationDetail{}
	}
	return list, nil
}

// ListActive は書籍のアクティブな予約をキュー順で返す。
func (s *Service) ListActive(ctx context.Context, bookID string) ([]*model.Reservation, error) {
	list, err := s.resRepo.ListActiveByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("アクティブな予約の取得に失敗しました: %w", err)
	}
	return list, nil
}

// NextPending は書籍の最も古い待機中の予約を返す。存在しない場合はnilを返す。
func (s *Service) NextPending(ctx context.Context, bookID string) (*model.Reservation, error) {
	res, err := s.resRepo.NextPending(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("次の待機中予約の取得に失敗しました: %w", err)
	}
	return res, nil
}

// Cancel は予約者本人の待機中の予約を取り消す。
// 通知済み・取消済みの予約は取り消せない。
func (s *Service) Cancel(ctx context.Context, reservationID, userID string) error {
	res, err := s.resRepo.FindByID(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("予約の取得に失敗しました: %w", err)
	}
	if res == nil {
		return model.NewReservationNotFoundError(reservationID)
	}
	if res.UserID != userID {
		return model.NewForbiddenError("他のユーザーの予約は取り消せません")
	}
	if res.Status != model.ReservationStatusPending {
		return model.NewInvalidReservationStatusError(res.Status)
	}

	if err := s.resRepo.UpdateStatus(ctx, reservationID, model.ReservationStatusCancelled); err != nil {
		return fmt.Errorf("予約の取り消しに失敗しました: %w", err)
	}

	slog.Info("予約を取り消しました",
		slog.String("reservation_id", reservationID),
		slog.String("user_id", userID),
	)
	return nil
}

// SetStatus は予約の状態を更新する。
func (s *Service) SetStatus(ctx context.Context, reservationID string, status model.ReservationStatus) error {
	if err := s.resRepo.UpdateStatus(ctx, reservationID, status); err != nil {
		return fmt.Errorf("予約状態の更新に失敗しました: %w", err)
	}
	return nil
}
