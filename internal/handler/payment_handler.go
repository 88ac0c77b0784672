package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/payment"
)

// maxWebhookBodySize は決済Webhookボディの上限サイズ。
const maxWebhookBodySize = 64 << 10

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	CreateIntent(ctx context.Context, userID, loanID string) (*payment.IntentResult, error)
	HandleWebhook(ctx context.Context, signature string, body []byte) error
	Verify(ctx context.Context, sessionID string) (*payment.VerifyResult, error)
}

// PaymentHandler は料金支払いのHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: service}
}

type createIntentRequest struct {
	TransactionID string `json:"transactionId" validate:"required,uuid"`
}

type createIntentResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type webhookResponse struct {
	Received bool `json:"received"`
}

type verifyResponse struct {
	Paid          bool   `json:"paid"`
	TransactionID string `json:"transactionId,omitempty"`
	Updated       bool   `json:"updated"`
	PaymentStatus string `json:"paymentStatus"`
}

// CreateIntent は貸出記録の料金を支払うチェックアウトセッションを作成する。
// POST /api/payments/create-intent
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createIntentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.CreateIntent(r.Context(), userID, req.TransactionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createIntentResponse{SessionID: result.SessionID, URL: result.URL})
}

// Webhook は決済プロバイダからのイベント通知を受け取る。署名検証のため生のボディを使う。
// POST /api/payments/webhook
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if err := h.service.HandleWebhook(r.Context(), r.Header.Get("Stripe-Signature"), body); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Received: true})
}

// Verify はチェックアウトセッションの支払い状態を確認し、支払済みなら貸出記録に反映する。
// GET /api/payments/verify?sessionId=
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("sessionId は必須です"))
		return
	}

	result, err := h.service.Verify(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Paid:          result.Paid,
		TransactionID: result.TransactionID,
		Updated:       result.Updated,
		PaymentStatus: result.PaymentStatus,
	})
}
