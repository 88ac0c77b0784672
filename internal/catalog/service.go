// Package catalog は蔵書の検索・登録・削除のドメインロジックを提供する。
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/security"
)

// AddBookInput は書籍登録の入力。
type AddBookInput struct {
	Title       string
	Author      string
	ISBN        string
	TotalCopies int
	BaseFee     float64
}

// ReservationLookup は書籍ごとの予約有無の取得インターフェース。
type ReservationLookup interface {
	BooksWithActive(ctx context.Context, bookIDs []string) (map[string]bool, error)
}

// Service は蔵書管理のサービス層。
// 読み取りはキャッシュを経由し、更新時はキャッシュを無効化する。
// 書籍ごとの世代番号は無効化のたびに進み、読み込み開始後に無効化された
// スナップショットはキャッシュに書き戻さない。
type Service struct {
	bookRepo  repository.BookRepository
	resLookup ReservationLookup
	cache     BookCache
	sanitizer security.TextSanitizer
	now       func() time.Time

	genMu sync.Mutex
	gens  map[string]uint64
}

// NewService はServiceの新しいインスタンスを生成する。cacheはnilでもよい。
func NewService(
	bookRepo repository.BookRepository,
	resLookup ReservationLookup,
	cache BookCache,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		bookRepo:  bookRepo,
		resLookup: resLookup,
		cache:     cache,
		sanitizer: sanitizer,
		now:       time.Now,
		gens:      make(map[string]uint64),
	}
}

// Search はタイトル・著者・ISBNで書籍を検索し、予約有無を付与して返す。
func (s *Service) Search(ctx context.Context, query string) ([]*model.BookWithReservation, error) {
	books, err := s.bookRepo.Search(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("書籍の検索に失敗しました: %w", err)
	}

	ids := make([]string, 0, len(books))
	for _, b := range books {
		ids = append(ids, b.ID)
	}
	reserved, err := s.resLookup.BooksWithActive(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("予約有無の取得に失敗しました: %w", err)
	}

	result := make([]*model.BookWithReservation, 0, len(books))
	for _, b := range books {
		result = append(result, &model.BookWithReservation{
			Book:            *b,
			HasReservations: reserved[b.ID],
		})
	}
	return result, nil
}

// GetByID は書籍を取得する。キャッシュにない場合はストアから読み込んでキャッシュする。
func (s *Service) GetByID(ctx context.Context, id string) (*model.Book, error) {
	if s.cache != nil {
		if book, ok := s.cache.Get(id); ok {
			return book, nil
		}
	}

	gen := s.generation(id)
	book, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("書籍の取得に失敗しました: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(id)
	}

	if s.cache != nil {
		s.fill(book, gen)
	}
	return book, nil
}

// Add は書籍を登録する。総冊数の省略時は1冊とし、在庫数は総冊数と同じにする。
func (s *Service) Add(ctx context.Context, in AddBookInput) (*model.Book, error) {
	title := s.sanitizer.Sanitize(in.Title)
	author := s.sanitizer.Sanitize(in.Author)
	isbn := s.sanitizer.Sanitize(in.ISBN)

	switch {
	case title == "":
		return nil, model.NewValidationError("title は必須です")
	case author == "":
		return nil, model.NewValidationError("author は必須です")
	case isbn == "":
		return nil, model.NewValidationError("isbn は必須です")
	case in.TotalCopies < 0:
		return nil, model.NewValidationError("totalCopies は0以上で指定してください")
	case in.BaseFee < 0:
		return nil, model.NewValidationError("baseFee は0以上で指定してください")
	}

	existing, err := s.bookRepo.FindByISBN(ctx, isbn)
	if err != nil {
		return nil, fmt.Errorf("ISBNの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyExistsError("ISBN " + isbn)
	}

	total := in.TotalCopies
	if total == 0 {
		total = 1
	}

	now := s.now()
	book := &model.Book{
		ID:              model.NewID(),
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		TotalCopies:     total,
		AvailableCopies: total,
		BaseFee:         in.BaseFee,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.bookRepo.Create(ctx, book); err != nil {
		return nil, fmt.Errorf("書籍の登録に失敗しました: %w", err)
	}

	slog.Info("書籍を登録しました",
		slog.String("book_id", book.ID),
		slog.String("isbn", book.ISBN),
		slog.Int("total_copies", book.TotalCopies),
	)
	return book, nil
}

// Remove は書籍を削除する。アクティブな予約は取り消され、貸出履歴は残る。
func (s *Service) Remove(ctx context.Context, id string) error {
	book, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("書籍の取得に失敗しました: %w", err)
	}
	if book == nil {
		return model.NewBookNotFoundError(id)
	}

	if err := s.bookRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("書籍の削除に失敗しました: %w", err)
	}
	s.Invalidate(id)

	slog.Info("書籍を削除しました", slog.String("book_id", id))
	return nil
}

// Invalidate は書籍のキャッシュを無効化する。
func (s *Service) Invalidate(id string) {
	if s.cache == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gens[id]++
	s.cache.Invalidate(id)
}

func (s *Service) generation(id string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[id]
}

// fill は読み込み開始時点から無効化されていない場合のみキャッシュに保存する。
func (s *Service) fill(book *model.Book, gen uint64) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[book.ID] != gen {
		slog.Debug("無効化済みの書籍スナップショットを破棄しました", slog.String("book_id", book.ID))
		return
	}
	s.cache.Set(book)
}

// RefreshBook はストアの最新状態でキャッシュを更新する。
// 削除済みの書籍はキャッシュから取り除く。
func (s *Service) RefreshBook(ctx context.Context, id string) error {
	if s.cache == nil {
		return nil
	}
	gen := s.generation(id)
	book, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("書籍の再読み込みに失敗しました: %w", err)
	}
	if book == nil {
		s.Invalidate(id)
		return nil
	}
	s.fill(book, gen)
	return nil
}
