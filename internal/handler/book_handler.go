package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bookman/internal/catalog"
	"github.com/hitoshi/bookman/internal/model"
)

// BookServiceInterface は書籍ハンドラーが必要とするサービスインターフェース。
type BookServiceInterface interface {
	Search(ctx context.Context, query string) ([]*model.BookWithReservation, error)
	GetByID(ctx context.Context, id string) (*model.Book, error)
	Add(ctx context.Context, in catalog.AddBookInput) (*model.Book, error)
	Remove(ctx context.Context, id string) error
}

// BookHandler は蔵書検索・管理のHTTPハンドラー。
type BookHandler struct {
	service BookServiceInterface
}

// NewBookHandler はBookHandlerを生成する。
func NewBookHandler(service BookServiceInterface) *BookHandler {
	return &BookHandler{service: service}
}

type addBookRequest struct {
	Title       string  `json:"title" validate:"required,max=500"`
	Author      string  `json:"author" validate:"required,max=300"`
	ISBN        string  `json:"isbn" validate:"required,max=20"`
	TotalCopies int     `json:"totalCopies" validate:"min=0,max=10000"`
	BaseFee     float64 `json:"baseFee" validate:"min=0"`
}

// Search はタイトル・著者・ISBNの部分一致で書籍を検索する。
// GET /api/books?q=
func (h *BookHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	books, err := h.service.Search(r.Context(), query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSearchResponses(books))
}

// GetBook は書籍詳細を返す。
// GET /api/books/{id}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")
	if !validID(bookID) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewBookNotFoundError(bookID))
		return
	}

	book, err := h.service.GetByID(r.Context(), bookID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookResponse(book))
}

// AddBook は書籍を登録する。
// POST /api/books
func (h *BookHandler) AddBook(w http.ResponseWriter, r *http.Request) {
	var req addBookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	book, err := h.service.Add(r.Context(), catalog.AddBookInput{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		TotalCopies: req.TotalCopies,
		BaseFee:     req.BaseFee,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookResponse(book))
}

// RemoveBook は書籍を削除する。
// DELETE /api/books/{id}
func (h *BookHandler) RemoveBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")
	if !validID(bookID) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewBookNotFoundError(bookID))
		return
	}

	if err := h.service.Remove(r.Context(), bookID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
