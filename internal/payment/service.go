package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// Currency は決済に使用する通貨。
const Currency = "usd"

// metadataTransactionID はCheckoutセッションのメタデータに格納する貸出IDのキー。
const metadataTransactionID = "transactionId"

// Provider は決済プロバイダの操作を定義する。
type Provider interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// LoanStore は決済に必要な貸出記録の操作を定義する。
// repository.LoanRepositoryの部分集合として定義する。
type LoanStore interface {
	FindByID(ctx context.Context, id string) (*model.LoanDetail, error)
	UpdatePayment(ctx context.Context, loanID string, status model.PaymentStatus, paymentID string, paidAt time.Time) error
}

// Config は決済サービスの設定。
type Config struct {
	WebhookSecret      string
	FrontendURL        string
	SignatureTolerance time.Duration
}

// IntentResult はCheckoutセッション作成の結果。
type IntentResult struct {
	SessionID string
	URL       string
}

// VerifyResult は支払確認の結果。
type VerifyResult struct {
	Paid          bool
	TransactionID string
	Updated       bool
	PaymentStatus string
}

// Service は貸出料金の決済を扱う。
type Service struct {
	loans    LoanStore
	provider Provider
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(loans LoanStore, provider Provider, cfg Config, logger *slog.Logger) *Service {
	if cfg.SignatureTolerance <= 0 {
		cfg.SignatureTolerance = DefaultSignatureTolerance
	}
	cfg.FrontendURL = normalizeFrontendURL(cfg.FrontendURL)
	return &Service{
		loans:    loans,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateIntent は貸出料金を支払うためのCheckoutセッションを作成する。
// 貸出記録が本人のものであり、未払いかつ料金が0より大きい場合のみ作成する。
func (s *Service) CreateIntent(ctx context.Context, userID, loanID string) (*IntentResult, error) {
	loan, err := s.loans.FindByID(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("貸出記録の取得に失敗しました: %w", err)
	}
	if loan == nil {
		return nil, model.NewLoanNotFoundError()
	}
	if loan.UserID != userID {
		return nil, model.NewForbiddenError("transaction does not belong to user")
	}
	if loan.PaymentStatus == model.PaymentStatusPaid {
		return nil, model.NewAlreadyPaidError()
	}

	total := loan.Fees.BaseFee + loan.Fees.LateFee + loan.Fees.ReservationFee
	if total <= 0 {
		return nil, model.NewNoFeesDueError()
	}

	session, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		AmountCents:   int64(math.Round(total * 100)),
		Currency:      Currency,
		ProductName:   "Library Fees - " + loan.Book.Title,
		Description:   "Late fees and charges for book: " + loan.Book.Title,
		CustomerEmail: loan.User.Email,
		SuccessURL:    s.cfg.FrontendURL + "/transactions?payment=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.cfg.FrontendURL + "/transactions?payment=cancelled",
		Metadata: map[string]string{
			metadataTransactionID: loan.ID,
			"userId":              userID,
		},
	})
	if err != nil {
		return nil, s.providerError("create checkout session", err)
	}

	s.logger.Info("checkout session created",
		slog.String("loan_id", loan.ID),
		slog.String("session_id", session.ID),
	)
	return &IntentResult{SessionID: session.ID, URL: session.URL}, nil
}

// HandleWebhook は署名を検証したうえでWebhookイベントを処理する。
// 支払い完了イベントでメタデータに貸出IDがあれば、その貸出を支払済みにする。
func (s *Service) HandleWebhook(ctx context.Context, signature string, body []byte) error {
	evt, err := ConstructEvent(body, signature, s.cfg.WebhookSecret, s.cfg.SignatureTolerance, s.now())
	if err != nil {
		s.logger.Warn("webhook signature verification failed",
			slog.String("error", err.Error()),
		)
		return model.NewInvalidSignatureError()
	}

	if evt.Type != EventCheckoutCompleted {
		s.logger.Debug("webhook event ignored", slog.String("type", evt.Type))
		return nil
	}

	session := evt.Data.Object
	loanID := session.Metadata[metadataTransactionID]
	if loanID == "" {
		s.logger.Warn("checkout session has no transaction id",
			slog.String("session_id", session.ID),
		)
		return nil
	}

	loan, err := s.loans.FindByID(ctx, loanID)
	if err != nil {
		return fmt.Errorf("貸出記録の取得に失敗しました: %w", err)
	}
	if loan == nil {
		return model.NewLoanNotFoundError()
	}
	return s.markPaid(ctx, loanID, session.ID)
}

// Verify はCheckoutセッションの支払状況を確認する。
// 支払済みで貸出が未払いのままであれば支払済みに更新する。
func (s *Service) Verify(ctx context.Context, sessionID string) (*VerifyResult, error) {
	session, err := s.provider.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, s.providerError("retrieve checkout session", err)
	}
	if !session.IsPaid() {
		return &VerifyResult{Paid: false}, nil
	}

	loanID := session.Metadata[metadataTransactionID]
	if loanID == "" {
		s.logger.Warn("checkout session has no transaction id",
			slog.String("session_id", session.ID),
		)
		return &VerifyResult{Paid: true}, nil
	}

	loan, err := s.loans.FindByID(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("貸出記録の取得に失敗しました: %w", err)
	}
	if loan == nil {
		return &VerifyResult{Paid: true, TransactionID: loanID}, nil
	}
	if loan.PaymentStatus == model.PaymentStatusPaid {
		return &VerifyResult{
			Paid:          true,
			TransactionID: loanID,
			PaymentStatus: string(model.PaymentStatusPaid),
		}, nil
	}

	if err := s.markPaid(ctx, loanID, session.ID); err != nil {
		return nil, err
	}
	return &VerifyResult{
		Paid:          true,
		TransactionID: loanID,
		Updated:       true,
		PaymentStatus: string(model.PaymentStatusPaid),
	}, nil
}

func (s *Service) markPaid(ctx context.Context, loanID, sessionID string) error {
	if err := s.loans.UpdatePayment(ctx, loanID, model.PaymentStatusPaid, sessionID, s.now()); err != nil {
		return fmt.Errorf("支払状態の更新に失敗しました: %w", err)
	}
	s.logger.Info("loan marked as paid",
		slog.String("loan_id", loanID),
		slog.String("session_id", sessionID),
	)
	return nil
}

func (s *Service) providerError(op string, err error) error {
	s.logger.Error("payment provider call failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, ErrProviderUnavailable) {
		return model.NewPaymentFailedError("provider temporarily unavailable")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return model.NewPaymentFailedError(apiErr.Message)
	}
	return model.NewPaymentFailedError(op)
}

// normalizeFrontendURL はスキームが無い場合にhttp://を補い、末尾のスラッシュを取り除く。
func normalizeFrontendURL(u string) string {
	if u == "" {
		u = "http://localhost:5173"
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "http://" + u
	}
	return strings.TrimRight(u, "/")
}
