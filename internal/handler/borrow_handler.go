package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/bookman/internal/lending"
	"github.com/hitoshi/bookman/internal/model"
)

// LendingServiceInterface は貸出ハンドラーが必要とするサービスインターフェース。
type LendingServiceInterface interface {
	Borrow(ctx context.Context, userID, bookID string) (*lending.BorrowResult, error)
	Return(ctx context.Context, userID, bookID string) (*lending.ReturnResult, error)
	ListLoans(ctx context.Context, userID string) ([]*model.LoanDetail, error)
	ListAllLoans(ctx context.Context) ([]*model.LoanDetail, error)
}

// BorrowHandler は貸出・返却のHTTPハンドラー。
type BorrowHandler struct {
	service LendingServiceInterface
}

// NewBorrowHandler はBorrowHandlerを生成する。
func NewBorrowHandler(service LendingServiceInterface) *BorrowHandler {
	return &BorrowHandler{service: service}
}

// bookIDRequest は書籍IDのみを受け取るリクエストボディ。
type bookIDRequest struct {
	BookID string `json:"bookId" validate:"required,uuid"`
}

// Borrow は書籍を貸し出す。
// POST /api/borrow
func (h *BorrowHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req bookIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Borrow(r.Context(), userID, req.BookID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBorrowResponse(result))
}

// Return は書籍を返却し、料金内訳を返す。
// POST /api/borrow/return
func (h *BorrowHandler) Return(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req bookIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Return(r.Context(), userID, req.BookID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReturnResponse(result))
}

// ListLoans は本人の貸出履歴を返す。
// GET /api/borrow
func (h *BorrowHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	loans, err := h.service.ListLoans(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoanResponses(loans, false))
}
