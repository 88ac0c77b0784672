// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, lending, catalog, payment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeBookNotFound        = "BOOK_NOT_FOUND"
	ErrCodeLoanNotFound        = "LOAN_NOT_FOUND"
	ErrCodeReservationNotFound = "RESERVATION_NOT_FOUND"
	ErrCodeBorrowLimitExceeded = "BORROW_LIMIT_EXCEEDED"
	ErrCodeBookUnavailable     = "BOOK_UNAVAILABLE"
	ErrCodeReservedByOther     = "RESERVED_BY_OTHER"
	ErrCodeAlreadyReturned     = "ALREADY_RETURNED"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeInvalidStatus       = "INVALID_STATUS"
	ErrCodeAlreadyPaid         = "ALREADY_PAID"
	ErrCodeNoFeesDue           = "NO_FEES_DUE"
	ErrCodePaymentFailed       = "PAYMENT_FAILED"
	ErrCodeInvalidSignature    = "INVALID_SIGNATURE"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", reason),
		Category: "auth",
		Action:   "権限を持つアカウントでログインしてください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", detail),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewBookNotFoundError は書籍が見つからない場合のエラーを生成する。
func NewBookNotFoundError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookNotFound,
		Message:  fmt.Sprintf("指定された書籍が見つかりません: %s", bookID),
		Category: "catalog",
		Action:   "書籍IDを確認してください。",
	}
}

// NewLoanNotFoundError は貸出記録が見つからない場合のエラーを生成する。
func NewLoanNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeLoanNotFound,
		Message:  "該当する貸出記録が見つかりません。",
		Category: "lending",
		Action:   "貸出中の書籍かどうか確認してください。",
	}
}

// NewReservationNotFoundError は予約が見つからない場合のエラーを生成する。
func NewReservationNotFoundError(reservationID string) *APIError {
	return &APIError{
		Code:     ErrCodeReservationNotFound,
		Message:  fmt.Sprintf("指定された予約が見つかりません: %s", reservationID),
		Category: "lending",
		Action:   "予約IDを確認してください。",
	}
}

// NewBorrowLimitExceededError は貸出上限超過エラーを生成する。
func NewBorrowLimitExceededError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeBorrowLimitExceeded,
		Message:  fmt.Sprintf("貸出上限（%d冊）に達しています。", limit),
		Category: "lending",
		Action:   "貸出中の書籍を返却してから再度お試しください。",
	}
}

// NewBookUnavailableError は貸出可能な在庫がない場合のエラーを生成する。
func NewBookUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeBookUnavailable,
		Message:  "この書籍は現在貸出可能な在庫がありません。",
		Category: "lending",
		Action:   "予約して返却を待つか、しばらくしてから再度お試しください。",
	}
}

// NewReservedByOtherError は他のユーザーの予約が優先される場合のエラーを生成する。
func NewReservedByOtherError() *APIError {
	return &APIError{
		Code:     ErrCodeReservedByOther,
		Message:  "この書籍は他のユーザーが予約しています。",
		Category: "lending",
		Action:   "予約して順番を待ってください。",
	}
}

// NewAlreadyReturnedError は返却済みの貸出を再度返却しようとした場合のエラーを生成する。
func NewAlreadyReturnedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyReturned,
		Message:  "この書籍は既に返却されています。",
		Category: "lending",
		Action:   "貸出履歴を確認してください。",
	}
}

// NewAlreadyExistsError は重複登録エラーを生成する。
func NewAlreadyExistsError(what string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyExists,
		Message:  fmt.Sprintf("既に登録されています: %s", what),
		Category: "validation",
		Action:   "既存の登録内容を確認してください。",
	}
}

// NewInvalidReservationStatusError は予約の状態遷移が許可されない場合のエラーを生成する。
func NewInvalidReservationStatusError(status ReservationStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("この予約は取り消せません（現在の状態: %s）。", status),
		Category: "lending",
		Action:   "取り消しは待機中（PENDING）の予約に対してのみ実行できます。",
	}
}

// NewAlreadyPaidError は支払済みの貸出に再度支払いを作成しようとした場合のエラーを生成する。
func NewAlreadyPaidError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyPaid,
		Message:  "この貸出の料金は支払済みです。",
		Category: "payment",
		Action:   "貸出履歴で支払状況を確認してください。",
	}
}

// NewNoFeesDueError は支払うべき料金がない場合のエラーを生成する。
func NewNoFeesDueError() *APIError {
	return &APIError{
		Code:     ErrCodeNoFeesDue,
		Message:  "支払うべき料金はありません。",
		Category: "payment",
		Action:   "貸出履歴で料金を確認してください。",
	}
}

// NewPaymentFailedError は決済プロバイダとの通信失敗エラーを生成する。
func NewPaymentFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePaymentFailed,
		Message:  fmt.Sprintf("決済処理に失敗しました: %s", reason),
		Category: "payment",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidSignatureError はWebhook署名の検証失敗エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "Webhook署名の検証に失敗しました。",
		Category: "payment",
		Action:   "署名シークレットの設定を確認してください。",
	}
}
