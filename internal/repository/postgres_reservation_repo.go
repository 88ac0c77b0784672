package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/bookman/internal/model"
)

// PostgresReservationRepo はPostgreSQLを使用した予約キューリポジトリ。
// キューの順序はcreated_at、同時刻の場合はidで決める。
type PostgresReservationRepo struct {
	db *sql.DB
}

// NewPostgresReservationRepo はPostgresReservationRepoを生成する。
func NewPostgresReservationRepo(db *sql.DB) *PostgresReservationRepo {
	return &PostgresReservationRepo{db: db}
}

const reservationSelect = `SELECT id, user_id, book_id, status, created_at, updated_at FROM reservations`

// Create は予約を作成する。
func (r *PostgresReservationRepo) Create(ctx context.Context, reservation *model.Reservation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reservations (id, user_id, book_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		reservation.ID, reservation.UserID, reservation.BookID, string(reservation.Status),
		reservation.CreatedAt, reservation.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("予約の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの予約を取得する。見つからない場合はnilを返す。
func (r *PostgresReservationRepo) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, reservationSelect+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("予約の取得に失敗しました: %w", err)
	}
	return res, nil
}

// FindPending は利用者と書籍の組に対するPENDINGの予約を取得する。見つからない場合はnilを返す。
func (r *PostgresReservationRepo) FindPending(ctx context.Context, userID, bookID string) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx,
		reservationSelect+` WHERE user_id = $1 AND book_id = $2 AND status = 'PENDING'
		ORDER BY created_at ASC, id ASC LIMIT 1`,
		userID, bookID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("待機中予約の取得に失敗しました: %w", err)
	}
	return res, nil
}

// ListActiveByBook は書籍のPENDING/NOTIFIEDの予約を作成日時の昇順で返す。
func (r *PostgresReservationRepo) ListActiveByBook(ctx context.Context, bookID string) ([]*model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		reservationSelect+` WHERE book_id = $1 AND status IN ('PENDING', 'NOTIFIED')
		ORDER BY created_at ASC, id ASC`,
		bookID,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティブな予約の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("予約のスキャンに失敗しました: %w", err)
		}
		list = append(list, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("予約一覧の読み取りに失敗しました: %w", err)
	}
	return list, nil
}

// NextPending は書籍の最も古いPENDINGの予約を返す。見つからない場合はnilを返す。
func (r *PostgresReservationRepo) NextPending(ctx context.Context, bookID string) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx,
		reservationSelect+` WHERE book_id = $1 AND status = 'PENDING'
		ORDER BY created_at ASC, id ASC LIMIT 1`,
		bookID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("次の待機中予約の取得に失敗しました: %w", err)
	}
	return res, nil
}

// ListByUser は利用者の予約を書籍情報付きで作成日時の降順で返す。
func (r *PostgresReservationRepo) ListByUser(ctx context.Context, userID string) ([]*model.ReservationDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.user_id, r.book_id, r.status, r.created_at, r.updated_at, b.title, b.author
		 FROM reservations r
		 JOIN books b ON b.id = r.book_id
		 WHERE r.user_id = $1
		 ORDER BY r.created_at DESC, r.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("利用者の予約一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.ReservationDetail
	for rows.Next() {
		d := &model.ReservationDetail{}
		var status string
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.BookID, &status, &d.CreatedAt, &d.UpdatedAt,
			&d.Book.Title, &d.Book.Author,
		); err != nil {
			return nil, fmt.Errorf("予約のスキャンに失敗しました: %w", err)
		}
		d.Status = model.ReservationStatus(status)
		d.Book.ID = d.BookID
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("予約一覧の読み取りに失敗しました: %w", err)
	}
	return list, nil
}

// BooksWithActive は指定書籍のうちアクティブな予約が存在する書籍IDの集合を返す。
func (r *PostgresReservationRepo) BooksWithActive(ctx context.Context, bookIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(bookIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT book_id FROM reservations
		 WHERE book_id = ANY($1::uuid[]) AND status IN ('PENDING', 'NOTIFIED')`,
		pq.Array(bookIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("予約有無の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("書籍IDのスキャンに失敗しました: %w", err)
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("予約有無の読み取りに失敗しました: %w", err)
	}
	return result, nil
}

// UpdateStatus は予約の状態を更新する。
func (r *PostgresReservationRepo) UpdateStatus(ctx context.Context, id string, status model.ReservationStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("予約状態の更新に失敗しました: %w", err)
	}
	return requireAffected(result, "reservation", id)
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	res := &model.Reservation{}
	var status string
	if err := s.Scan(&res.ID, &res.UserID, &res.BookID, &status, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	res.Status = model.ReservationStatus(status)
	return res, nil
}

// compile-time interface check
var _ ReservationRepository = (*PostgresReservationRepo)(nil)
