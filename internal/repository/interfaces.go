// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// BookRepository は蔵書データの永続化インターフェース。
type BookRepository interface {
	// FindByID は指定IDの書籍を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Book, error)

	// FindByISBN はISBNで書籍を検索する。見つからない場合はnilを返す。
	FindByISBN(ctx context.Context, isbn string) (*model.Book, error)

	// Search はタイトル・著者・ISBNのいずれかに部分一致する書籍をタイトル順で返す。
	// 大文字小文字は区別しない。queryが空の場合は全件を返す。
	Search(ctx context.Context, query string) ([]*model.Book, error)

	// Create は書籍を作成する。
	Create(ctx context.Context, book *model.Book) error

	// Update は書籍の書誌情報と冊数を更新する。
	Update(ctx context.Context, book *model.Book) error

	// DeleteByID は指定IDの書籍を削除する。
	DeleteByID(ctx context.Context, id string) error
}

// UserRepository は利用者データの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDの利用者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスで利用者を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// List は全利用者を作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Create は利用者を作成する。
	Create(ctx context.Context, user *model.User) error

	// Update は利用者の氏名・メールアドレス・Role・貸出上限・パスワードハッシュを更新する。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDの利用者を削除する。
	DeleteByID(ctx context.Context, id string) error
}

// LoanRepository は貸出記録の永続化インターフェース。
type LoanRepository interface {
	// Checkout は在庫を1冊減らし、貸出記録を同一トランザクションで作成する。
	// 在庫が0の場合は何も変更せずfalseを返す。
	Checkout(ctx context.Context, loan *model.Loan) (bool, error)

	// CompleteReturn は貸出記録を返却済みに更新し、在庫を1冊増やす（総冊数が上限）。
	// 貸出記録が既に返却済みの場合は何も変更せずfalseを返す。
	CompleteReturn(ctx context.Context, loan *model.Loan) (bool, error)

	// FindByID は指定IDの貸出記録を書籍・利用者情報付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.LoanDetail, error)

	// FindBorrowed は利用者と書籍の組に対する貸出中の記録を取得する。見つからない場合はnilを返す。
	FindBorrowed(ctx context.Context, userID, bookID string) (*model.Loan, error)

	// CountBorrowedByUser は利用者の貸出中の件数を返す。
	CountBorrowedByUser(ctx context.Context, userID string) (int, error)

	// ListByUser は利用者の貸出履歴を貸出日の降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.LoanDetail, error)

	// ListAll は全利用者の貸出履歴を貸出日の降順で返す。
	ListAll(ctx context.Context) ([]*model.LoanDetail, error)

	// UpdatePayment は支払状態・決済ID・支払日時を更新する。
	UpdatePayment(ctx context.Context, loanID string, status model.PaymentStatus, paymentID string, paidAt time.Time) error

	// ListOverdue は返却期限を過ぎた貸出中の記録のうち、
	// remindedBefore以前に督促していない（または未督促の）ものを最大limit件返す。
	ListOverdue(ctx context.Context, now, remindedBefore time.Time, limit int) ([]*model.LoanDetail, error)

	// MarkReminded は督促日時を記録する。
	MarkReminded(ctx context.Context, loanID string, at time.Time) error
}

// ReservationRepository は予約キューの永続化インターフェース。
type ReservationRepository interface {
	// Create は予約を作成する。
	Create(ctx context.Context, reservation *model.Reservation) error

	// FindByID は指定IDの予約を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Reservation, error)

	// FindPending は利用者と書籍の組に対するPENDINGの予約を取得する。見つからない場合はnilを返す。
	FindPending(ctx context.Context, userID, bookID string) (*model.Reservation, error)

	// ListActiveByBook は書籍のPENDING/NOTIFIEDの予約を作成日時の昇順で返す。
	ListActiveByBook(ctx context.Context, bookID string) ([]*model.Reservation, error)

	// NextPending は書籍の最も古いPENDINGの予約を返す。見つからない場合はnilを返す。
	NextPending(ctx context.Context, bookID string) (*model.Reservation, error)

	// ListByUser は利用者の予約を書籍情報付きで作成日時の降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.ReservationDetail, error)

	// BooksWithActive は指定書籍のうちアクティブな予約が存在する書籍IDの集合を返す。
	BooksWithActive(ctx context.Context, bookIDs []string) (map[string]bool, error)

	// UpdateStatus は予約の状態を更新する。
	UpdateStatus(ctx context.Context, id string, status model.ReservationStatus) error
}

// NotificationRepository は通知の永続化インターフェース。
type NotificationRepository interface {
	// Create は通知を追加する。
	Create(ctx context.Context, notification *model.Notification) error

	// ListByUser は利用者の通知を新しい順に返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Notification, error)

	// CountUnread は利用者の未読通知数を返す。
	CountUnread(ctx context.Context, userID string) (int, error)

	// MarkRead は利用者本人の通知を既読にする。IDと利用者が一致しない場合は何もしない。
	MarkRead(ctx context.Context, id, userID string) error

	// MarkAllRead は利用者の全通知を既読にし、更新件数を返す。
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}
