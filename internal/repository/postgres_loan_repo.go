package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/hitoshi/bookman/internal/model"
)

var loanDetailColumns = []any{
	goqu.I("l.id"), goqu.I("l.user_id"), goqu.I("l.book_id"),
	goqu.I("l.borrow_date"), goqu.I("l.due_date"), goqu.I("l.return_date"), goqu.I("l.status"),
	goqu.I("l.base_fee"), goqu.I("l.late_fee"), goqu.I("l.reservation_fee"),
	goqu.I("l.payment_status"), goqu.I("l.payment_id"), goqu.I("l.paid_at"), goqu.I("l.reminded_at"),
	goqu.I("l.created_at"), goqu.I("l.updated_at"),
	goqu.I("b.title"), goqu.I("b.author"),
	goqu.I("u.name"), goqu.I("u.email"),
}

// PostgresLoanRepo はPostgreSQLを使用した貸出記録リポジトリ。
type PostgresLoanRepo struct {
	db *sql.DB
}

// NewPostgresLoanRepo はPostgresLoanRepoを生成する。
func NewPostgresLoanRepo(db *sql.DB) *PostgresLoanRepo {
	return &PostgresLoanRepo{db: db}
}

// Checkout は在庫を1冊減らし、貸出記録を同一トランザクションで作成する。
// 在庫の減算は条件付きUPDATEで行うため、同時貸出でも在庫が負にならない。
func (r *PostgresLoanRepo) Checkout(ctx context.Context, loan *model.Loan) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE books SET available_copies = available_copies - 1, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL AND available_copies > 0`,
		loan.BookID,
	)
	if err != nil {
		return false, fmt.Errorf("在庫の減算に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO loans (id, user_id, book_id, borrow_date, due_date, status,
		                    base_fee, late_fee, reservation_fee, payment_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		loan.ID, loan.UserID, loan.BookID, loan.BorrowDate, loan.DueDate, string(loan.Status),
		loan.Fees.BaseFee, loan.Fees.LateFee, loan.Fees.ReservationFee,
		string(loan.PaymentStatus), loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("貸出記録の作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// CompleteReturn は貸出記録を返却済みに更新し、在庫を1冊増やす。
// 在庫は総冊数を超えない。
func (r *PostgresLoanRepo) CompleteReturn(ctx context.Context, loan *model.Loan) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE loans
		 SET return_date = $2, status = $3, base_fee = $4, late_fee = $5, reservation_fee = $6, updated_at = $7
		 WHERE id = $1 AND status = 'BORROWED'`,
		loan.ID, loan.ReturnDate, string(loan.Status),
		loan.Fees.BaseFee, loan.Fees.LateFee, loan.Fees.ReservationFee, loan.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("貸出記録の返却更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE books SET available_copies = LEAST(available_copies + 1, total_copies), updated_at = now()
		 WHERE id = $1`,
		loan.BookID,
	)
	if err != nil {
		return false, fmt.Errorf("在庫の加算に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// FindByID は指定IDの貸出記録を書籍・利用者情報付きで取得する。見つからない場合はnilを返す。
func (r *PostgresLoanRepo) FindByID(ctx context.Context, id string) (*model.LoanDetail, error) {
	details, err := r.queryDetails(ctx, goqu.I("l.id").Eq(id), 1)
	if err != nil {
		return nil, fmt.Errorf("貸出記録の取得に失敗しました: %w", err)
	}
	if len(details) == 0 {
		return nil, nil
	}
	return details[0], nil
}

// FindBorrowed は利用者と書籍の組に対する貸出中の記録を取得する。見つからない場合はnilを返す。
func (r *PostgresLoanRepo) FindBorrowed(ctx context.Context, userID, bookID string) (*model.Loan, error) {
	loan := &model.Loan{}
	var status, paymentStatus string
	var returnDate, paidAt, remindedAt sql.NullTime
	var paymentID sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, book_id, borrow_date, due_date, return_date, status,
		        base_fee, late_fee, reservation_fee, payment_status, payment_id, paid_at, reminded_at,
		        created_at, updated_at
		 FROM loans WHERE user_id = $1 AND book_id = $2 AND status = 'BORROWED'
		 ORDER BY borrow_date ASC LIMIT 1`,
		userID, bookID,
	).Scan(
		&loan.ID, &loan.UserID, &loan.BookID, &loan.BorrowDate, &loan.DueDate, &returnDate, &status,
		&loan.Fees.BaseFee, &loan.Fees.LateFee, &loan.Fees.ReservationFee,
		&paymentStatus, &paymentID, &paidAt, &remindedAt,
		&loan.CreatedAt, &loan.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("貸出中記録の取得に失敗しました: %w", err)
	}

	loan.Status = model.LoanStatus(status)
	loan.PaymentStatus = model.PaymentStatus(paymentStatus)
	loan.ReturnDate = nullTimePtr(returnDate)
	loan.PaymentID = nullStringPtr(paymentID)
	loan.PaidAt = nullTimePtr(paidAt)
	loan.RemindedAt = nullTimePtr(remindedAt)
	loan.Fees.TotalFee = loan.Fees.BaseFee + loan.Fees.LateFee + loan.Fees.ReservationFee
	return loan, nil
}

// CountBorrowedByUser は利用者の貸出中の件数を返す。
func (r *PostgresLoanRepo) CountBorrowedByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE user_id = $1 AND status = 'BORROWED'`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("貸出中件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ListByUser は利用者の貸出履歴を貸出日の降順で返す。
func (r *PostgresLoanRepo) ListByUser(ctx context.Context, userID string) ([]*model.LoanDetail, error) {
	details, err := r.queryDetails(ctx, goqu.I("l.user_id").Eq(userID), 0)
	if err != nil {
		return nil, fmt.Errorf("貸出履歴の取得に失敗しました: %w", err)
	}
	return details, nil
}

// ListAll は全利用者の貸出履歴を貸出日の降順で返す。
func (r *PostgresLoanRepo) ListAll(ctx context.Context) ([]*model.LoanDetail, error) {
	details, err := r.queryDetails(ctx, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("全貸出履歴の取得に失敗しました: %w", err)
	}
	return details, nil
}

// UpdatePayment は支払状態・決済ID・支払日時を更新する。
func (r *PostgresLoanRepo) UpdatePayment(ctx context.Context, loanID string, status model.PaymentStatus, paymentID string, paidAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE loans SET payment_status = $2, payment_id = $3, paid_at = $4, updated_at = now()
		 WHERE id = $1`,
		loanID, string(status), paymentID, paidAt,
	)
	if err != nil {
		return fmt.Errorf("支払状態の更新に失敗しました: %w", err)
	}
	return requireAffected(result, "loan", loanID)
}

// ListOverdue は返却期限を過ぎた未督促（または前回督促が古い）貸出記録を返却期限の昇順で返す。
func (r *PostgresLoanRepo) ListOverdue(ctx context.Context, now, remindedBefore time.Time, limit int) ([]*model.LoanDetail, error) {
	cond := goqu.And(
		goqu.I("l.status").Eq(string(model.LoanStatusBorrowed)),
		goqu.I("l.due_date").Lt(now),
		goqu.Or(
			goqu.I("l.reminded_at").IsNull(),
			goqu.I("l.reminded_at").Lt(remindedBefore),
		),
	)
	details, err := r.queryDetails(ctx, cond, limit, goqu.I("l.due_date").Asc())
	if err != nil {
		return nil, fmt.Errorf("延滞貸出の取得に失敗しました: %w", err)
	}
	return details, nil
}

// MarkReminded は督促日時を記録する。
func (r *PostgresLoanRepo) MarkReminded(ctx context.Context, loanID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE loans SET reminded_at = $2 WHERE id = $1`,
		loanID, at,
	)
	if err != nil {
		return fmt.Errorf("督促日時の記録に失敗しました: %w", err)
	}
	return requireAffected(result, "loan", loanID)
}

// buildLoanDetailQuery は書籍・利用者をJOINした貸出記録のSELECT文を構築する。
// orderを省略した場合は貸出日の降順になる。
func buildLoanDetailQuery(where exp.Expression, limit int, order ...exp.OrderedExpression) (string, []any, error) {
	ds := goqu.Dialect(dialectPostgres).
		From(goqu.T("loans").As("l")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.user_id")))).
		Select(loanDetailColumns...)

	if where != nil {
		ds = ds.Where(where)
	}
	if len(order) == 0 {
		order = []exp.OrderedExpression{goqu.I("l.borrow_date").Desc(), goqu.I("l.id").Desc()}
	}
	ds = ds.Order(order...)
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	return ds.Prepared(true).ToSQL()
}

func (r *PostgresLoanRepo) queryDetails(ctx context.Context, where exp.Expression, limit int, order ...exp.OrderedExpression) ([]*model.LoanDetail, error) {
	query, args, err := buildLoanDetailQuery(where, limit, order...)
	if err != nil {
		return nil, fmt.Errorf("failed to build loan query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []*model.LoanDetail
	for rows.Next() {
		d, err := scanLoanDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}

func scanLoanDetail(s rowScanner) (*model.LoanDetail, error) {
	d := &model.LoanDetail{}
	var status, paymentStatus string
	var returnDate, paidAt, remindedAt sql.NullTime
	var paymentID sql.NullString

	err := s.Scan(
		&d.ID, &d.UserID, &d.BookID, &d.BorrowDate, &d.DueDate, &returnDate, &status,
		&d.Fees.BaseFee, &d.Fees.LateFee, &d.Fees.ReservationFee,
		&paymentStatus, &paymentID, &paidAt, &remindedAt,
		&d.CreatedAt, &d.UpdatedAt,
		&d.Book.Title, &d.Book.Author,
		&d.User.Name, &d.User.Email,
	)
	if err != nil {
		return nil, err
	}

	d.Status = model.LoanStatus(status)
	d.PaymentStatus = model.PaymentStatus(paymentStatus)
	d.ReturnDate = nullTimePtr(returnDate)
	d.PaymentID = nullStringPtr(paymentID)
	d.PaidAt = nullTimePtr(paidAt)
	d.RemindedAt = nullTimePtr(remindedAt)
	d.Fees.TotalFee = d.Fees.BaseFee + d.Fees.LateFee + d.Fees.ReservationFee
	d.Book.ID = d.BookID
	d.User.ID = d.UserID
	return d, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// compile-time interface check
var _ LoanRepository = (*PostgresLoanRepo)(nil)
