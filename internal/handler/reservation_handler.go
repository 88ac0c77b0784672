package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bookman/internal/model"
)

// ReservationServiceInterface は予約ハンドラーが必要とするサービスインターフェース。
type ReservationServiceInterface interface {
	Create(ctx context.Context, userID, bookID string) (*model.Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]*model.ReservationDetail, error)
	Cancel(ctx context.Context, reservationID, userID string) error
}

// ReservationHandler は予約キューのHTTPハンドラー。
type ReservationHandler struct {
	service ReservationServiceInterface
}

// NewReservationHandler はReservationHandlerを生成する。
func NewReservationHandler(service ReservationServiceInterface) *ReservationHandler {
	return &ReservationHandler{service: service}
}

// CreateReservation は書籍の予約を作成する。
// POST /api/reservations
func (h *ReservationHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req bookIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reservation, err := h.service.Create(r.Context(), userID, req.BookID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toReservationResponse(reservation))
}

// ListReservations は本人の予約一覧を返す。
// GET /api/reservations
func (h *ReservationHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListByUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDetailResponses(list))
}

// CancelReservation はPENDINGの予約を取り消す。本人の予約のみ対象。
// DELETE /api/reservations/{id}
func (h *ReservationHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	reservationID := chi.URLParam(r, "id")
	if !validID(reservationID) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewReservationNotFoundError(reservationID))
		return
	}

	if err := h.service.Cancel(r.Context(), reservationID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Reservation cancelled"})
}
