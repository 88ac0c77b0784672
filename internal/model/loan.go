package model

import "time"

// LoanStatus は貸出記録の状態を表す。
// BORROWED → RETURNED の一方向のみ遷移する。
type LoanStatus string

const (
	// LoanStatusBorrowed は貸出中。
	LoanStatusBorrowed LoanStatus = "BORROWED"
	// LoanStatusReturned は返却済み。
	LoanStatusReturned LoanStatus = "RETURNED"
)

// PaymentStatus は料金の支払状態を表す。
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// DefaultLoanPeriod は貸出期間。
const DefaultLoanPeriod = 14 * 24 * time.Hour

// FeeBreakdown は料金の内訳を表す。各項目は非負。
type FeeBreakdown struct {
	BaseFee        float64
	LateFee        float64
	ReservationFee float64
	TotalFee       float64
}

// Loan は貸出記録を表す。作成後に削除されることはない。
type Loan struct {
	ID            string
	UserID        string
	BookID        string
	BorrowDate    time.Time
	DueDate       time.Time
	ReturnDate    *time.Time
	Status        LoanStatus
	Fees          FeeBreakdown
	PaymentStatus PaymentStatus
	PaymentID     *string
	PaidAt        *time.Time
	RemindedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsOverdue は未返却かつ返却期限を過ぎているかどうかを返す。
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.ReturnDate == nil && now.After(l.DueDate)
}

// LoanDetail は履歴表示用に書籍と利用者の情報を付与した貸出記録。
type LoanDetail struct {
	Loan
	Book BookSummary
	User UserSummary
}

// UserSummary は貸出履歴などに埋め込む利用者の概要。
type UserSummary struct {
	ID    string
	Name  string
	Email string
}
