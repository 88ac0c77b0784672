package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/hitoshi/bookman/internal/model"
)

const dialectPostgres = "postgres"

var bookColumns = []any{
	"id", "title", "author", "isbn", "total_copies", "available_copies",
	"base_fee", "created_at", "updated_at",
}

// likeEscaper はLIKEパターンのメタ文字をエスケープする。
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresBookRepo はPostgreSQLを使用した蔵書リポジトリ。
type PostgresBookRepo struct {
	db *sql.DB
}

// NewPostgresBookRepo はPostgresBookRepoを生成する。
func NewPostgresBookRepo(db *sql.DB) *PostgresBookRepo {
	return &PostgresBookRepo{db: db}
}

// FindByID は指定IDの書籍を取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	book, err := scanBook(r.db.QueryRowContext(ctx,
		`SELECT id, title, author, isbn, total_copies, available_copies, base_fee, created_at, updated_at
		 FROM books WHERE id = $1 AND deleted_at IS NULL`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("書籍の取得に失敗しました: %w", err)
	}
	return book, nil
}

// FindByISBN はISBNで書籍を検索する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	book, err := scanBook(r.db.QueryRowContext(ctx,
		`SELECT id, title, author, isbn, total_copies, available_copies, base_fee, created_at, updated_at
		 FROM books WHERE isbn = $1 AND deleted_at IS NULL`,
		isbn,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ISBNによる書籍の取得に失敗しました: %w", err)
	}
	return book, nil
}

// Search はタイトル・著者・ISBNのいずれかに部分一致する書籍をタイトル順で返す。
func (r *PostgresBookRepo) Search(ctx context.Context, query string) ([]*model.Book, error) {
	sqlStr, args, err := buildBookSearchQuery(query)
	if err != nil {
		return nil, fmt.Errorf("書籍検索クエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("書籍の検索に失敗しました: %w", err)
	}
	defer rows.Close()

	var books []*model.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("書籍のスキャンに失敗しました: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("書籍検索結果の読み取りに失敗しました: %w", err)
	}

	return books, nil
}

// buildBookSearchQuery は書籍検索のSELECT文を構築する。
// 空白のみのクエリは全件検索として扱う。
func buildBookSearchQuery(query string) (string, []any, error) {
	ds := goqu.Dialect(dialectPostgres).
		From("books").
		Select(bookColumns...).
		Where(goqu.C("deleted_at").IsNull())

	if q := strings.TrimSpace(query); q != "" {
		pattern := "%" + likeEscaper.Replace(q) + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
			goqu.C("isbn").ILike(pattern),
		))
	}

	return ds.
		Order(goqu.C("title").Asc(), goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
}

// Create は書籍を作成する。
func (r *PostgresBookRepo) Create(ctx context.Context, book *model.Book) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO books (id, title, author, isbn, total_copies, available_copies, base_fee, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		book.ID, book.Title, book.Author, book.ISBN, book.TotalCopies, book.AvailableCopies,
		book.BaseFee, book.CreatedAt, book.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("書籍の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は書籍の書誌情報と冊数を更新する。
func (r *PostgresBookRepo) Update(ctx context.Context, book *model.Book) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE books
		 SET title = $2, author = $3, isbn = $4, total_copies = $5, available_copies = $6,
		     base_fee = $7, updated_at = $8
		 WHERE id = $1 AND deleted_at IS NULL`,
		book.ID, book.Title, book.Author, book.ISBN, book.TotalCopies, book.AvailableCopies,
		book.BaseFee, book.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("書籍の更新に失敗しました: %w", err)
	}
	return requireAffected(result, "book", book.ID)
}

// DeleteByID は指定IDの書籍を論理削除し、アクティブな予約を取り消す。
// 貸出履歴から参照されるため行は残す。
func (r *PostgresBookRepo) DeleteByID(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE books SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("書籍の削除に失敗しました: %w", err)
	}
	if err := requireAffected(result, "book", id); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE reservations SET status = 'CANCELLED', updated_at = now()
		 WHERE book_id = $1 AND status IN ('PENDING', 'NOTIFIED')`,
		id,
	)
	if err != nil {
		return fmt.Errorf("削除書籍の予約取り消しに失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(s rowScanner) (*model.Book, error) {
	book := &model.Book{}
	err := s.Scan(
		&book.ID, &book.Title, &book.Author, &book.ISBN,
		&book.TotalCopies, &book.AvailableCopies, &book.BaseFee,
		&book.CreatedAt, &book.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return book, nil
}

// requireAffected は更新件数が0の場合にnot foundエラーを返す。
func requireAffected(result sql.Result, entity, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

// compile-time interface check
var _ BookRepository = (*PostgresBookRepo)(nil)
