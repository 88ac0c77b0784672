// Package lending は貸出・返却のワークフローを提供する。
//
// 貸出では貸出上限・在庫・予約の優先順位を検証し、在庫の減算と貸出記録の作成を
// 1トランザクションで行う。返却では手数料を計算して在庫を戻し、コミット後に
// 返却イベントを発行する。イベント購読者の失敗は返却結果を取り消さない。
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bookman/internal/event"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// EventPublisher は返却イベントの発行インターフェース。
type EventPublisher interface {
	PublishBookReturned(ctx context.Context, evt event.BookReturned) error
}

// CacheInvalidator はカタログキャッシュの無効化インターフェース。
type CacheInvalidator interface {
	Invalidate(bookID string)
}

// Recorder は貸出・返却のメトリクス記録インターフェース。
type Recorder interface {
	RecordBorrow()
	RecordBorrowRejected(code string)
	RecordReturn(fees model.FeeBreakdown)
}

// Deps はServiceの依存。Cache, Recorderはnilでもよい。
type Deps struct {
	Users        repository.UserRepository
	Books        repository.BookRepository
	Loans        repository.LoanRepository
	Reservations repository.ReservationRepository
	Publisher    EventPublisher
	Cache        CacheInvalidator
	Recorder     Recorder
	LoanPeriod   time.Duration
}

// BorrowResult は貸出の結果。
type BorrowResult struct {
	ID         string
	Book       model.BookSummary
	BorrowDate time.Time
	DueDate    time.Time
}

// ReturnResult は返却の結果。
type ReturnResult struct {
	ID         string
	ReturnDate time.Time
	Fees       model.FeeBreakdown
}

// Service は貸出・返却ワークフローのサービス層。
type Service struct {
	users        repository.UserRepository
	books        repository.BookRepository
	loans        repository.LoanRepository
	reservations repository.ReservationRepository
	publisher    EventPublisher
	cache        CacheInvalidator
	recorder     Recorder
	loanPeriod   time.Duration
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(deps Deps) *Service {
	period := deps.LoanPeriod
	if period <= 0 {
		period = model.DefaultLoanPeriod
	}
	return &Service{
		users:        deps.Users,
		books:        deps.Books,
		loans:        deps.Loans,
		reservations: deps.Reservations,
		publisher:    deps.Publisher,
		cache:        deps.Cache,
		recorder:     deps.Recorder,
		loanPeriod:   period,
		now:          time.Now,
	}
}

// Borrow は書籍を貸し出す。
// フロー: 利用者確認 → 貸出上限 → 在庫 → 予約の優先順位 → 在庫減算と貸出記録作成 → 本人の予約取消
func (s *Service) Borrow(ctx context.Context, userID, bookID string) (*BorrowResult, error) {
	result, err := s.borrow(ctx, userID, bookID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && s.recorder != nil {
			s.recorder.RecordBorrowRejected(apiErr.Code)
		}
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.RecordBorrow()
	}
	return result, nil
}

func (s *Service) borrow(ctx context.Context, userID, bookID string) (*BorrowResult, error) {
	// 1. 利用者の存在確認
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	// 2. 貸出上限
	count, err := s.loans.CountBorrowedByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("貸出数の確認に失敗しました: %w", err)
	}
	if count >= user.MaxBorrowLimit {
		return nil, model.NewBorrowLimitExceededError(user.MaxBorrowLimit)
	}

	// 3. 書籍の存在と在庫
	book, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("書籍の取得に失敗しました: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(bookID)
	}
	if !book.IsAvailable() {
		return nil, model.NewBookUnavailableError()
	}

	// 4. 予約の優先順位: 先頭の予約者のみ貸出可能
	active, err := s.reservations.ListActiveByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("予約の確認に失敗しました: %w", err)
	}
	if len(active) > 0 && active[0].UserID != userID {
		return nil, model.NewReservedByOtherError()
	}

	// 同じ書籍の貸出中の記録は1件まで
	current, err := s.loans.FindBorrowed(ctx, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("貸出状況の確認に失敗しました: %w", err)
	}
	if current != nil {
		return nil, model.NewAlreadyExistsError("この書籍の貸出")
	}

	// 5-6. 貸出記録の作成と在庫の減算
	now := s.now()
	loan := &model.Loan{
		ID:            model.NewID(),
		UserID:        userID,
		BookID:        bookID,
		BorrowDate:    now,
		DueDate:       now.Add(s.loanPeriod),
		Status:        model.LoanStatusBorrowed,
		Fees:          model.FeeBreakdown{BaseFee: book.BaseFee, TotalFee: book.BaseFee},
		PaymentStatus: model.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ok, err := s.loans.Checkout(ctx, loan)
	if err != nil {
		return nil, fmt.Errorf("貸出処理に失敗しました: %w", err)
	}
	if !ok {
		// 在庫確認後に他の貸出で在庫がなくなった
		return nil, model.NewBookUnavailableError()
	}
	s.invalidate(bookID)

	// 7. 本人の予約を取り消す
	// 貸出は確定済みのため、取り消しに失敗しても貸出結果は返す
	for _, r := range active {
		if r.UserID != userID {
			continue
		}
		if err := s.reservations.UpdateStatus(ctx, r.ID, model.ReservationStatusCancelled); err != nil {
			slog.Warn("貸出後の予約取り消しに失敗しました",
				slog.String("loan_id", loan.ID),
				slog.String("reservation_id", r.ID),
				slog.String("error", err.Error()),
			)
		}
		break
	}

	slog.Info("書籍を貸し出しました",
		slog.String("loan_id", loan.ID),
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
		slog.Time("due_date", loan.DueDate),
	)

	// 8. 結果
	return &BorrowResult{
		ID:         loan.ID,
		Book:       book.Summary(),
		BorrowDate: loan.BorrowDate,
		DueDate:    loan.DueDate,
	}, nil
}

// Return は書籍を返却し、手数料の内訳を返す。
// フロー: 貸出記録の確認 → 延滞判定 → 予約有無 → 手数料計算 → 返却と在庫加算 → 返却イベント発行
func (s *Service) Return(ctx context.Context, userID, bookID string) (*ReturnResult, error) {
	// 1. 貸出中の記録
	loan, err := s.loans.FindBorrowed(ctx, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("貸出記録の取得に失敗しました: %w", err)
	}
	if loan == nil {
		return nil, model.NewLoanNotFoundError()
	}
	if loan.Status == model.LoanStatusReturned {
		return nil, model.NewAlreadyReturnedError()
	}

	// 2. 延滞判定（これから設定する返却日時で評価する）
	now := s.now()
	overdue := IsOverdue(loan.ReturnDate, loan.DueDate, now)

	// 3. 書籍にアクティブな予約があるか（予約者が返却者本人でも対象）
	active, err := s.reservations.ListActiveByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("予約の確認に失敗しました: %w", err)
	}

	// 4. 手数料の計算
	fees := CalculateFees(FeeInput{
		BaseFee:              loan.Fees.BaseFee,
		Overdue:              overdue,
		HasActiveReservation: len(active) > 0,
	})
	loan.Fees = fees
	loan.ReturnDate = &now
	loan.Status = model.LoanStatusReturned
	loan.UpdatedAt = now

	// 5. 返却と在庫加算
	ok, err := s.loans.CompleteReturn(ctx, loan)
	if err != nil {
		return nil, fmt.Errorf("返却処理に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewAlreadyReturnedError()
	}
	s.invalidate(bookID)
	if s.recorder != nil {
		s.recorder.RecordReturn(fees)
	}

	slog.Info("書籍が返却されました",
		slog.String("loan_id", loan.ID),
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
		slog.Bool("overdue", overdue),
		slog.Float64("total_fee", fees.TotalFee),
	)

	// 6. 返却イベントの発行（失敗しても返却は取り消さない）
	s.publishReturned(ctx, loan, now)

	// 7. 結果
	return &ReturnResult{
		ID:         loan.ID,
		ReturnDate: now,
		Fees:       fees,
	}, nil
}

// ListLoans は利用者の貸出履歴を返す。
func (s *Service) ListLoans(ctx context.Context, userID string) ([]*model.LoanDetail, error) {
	list, err := s.loans.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("貸出履歴の取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []*model.LoanDetail{}
	}
	return list, nil
}

// ListAllLoans は全利用者の貸出履歴を返す。
func (s *Service) ListAllLoans(ctx context.Context) ([]*model.LoanDetail, error) {
	list, err := s.loans.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("全貸出履歴の取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []*model.LoanDetail{}
	}
	return list, nil
}

func (s *Service) invalidate(bookID string) {
	if s.cache != nil {
		s.cache.Invalidate(bookID)
	}
}

func (s *Service) publishReturned(ctx context.Context, loan *model.Loan, returnedAt time.Time) {
	if s.publisher == nil {
		return
	}

	evt := event.BookReturned{
		LoanID:     loan.ID,
		UserID:     loan.UserID,
		BookID:     loan.BookID,
		ReturnedAt: returnedAt,
	}
	detail, err := s.loans.FindByID(ctx, loan.ID)
	if err != nil {
		slog.Warn("返却イベント用の貸出詳細の取得に失敗しました",
			slog.String("loan_id", loan.ID),
			slog.String("error", err.Error()),
		)
	} else if detail != nil {
		evt.BookTitle = detail.Book.Title
		evt.UserName = detail.User.Name
	}

	if err := s.publisher.PublishBookReturned(ctx, evt); err != nil {
		slog.Error("返却イベントの発行に失敗しました",
			slog.String("loan_id", loan.ID),
			slog.String("error", err.Error()),
		)
	}
}
