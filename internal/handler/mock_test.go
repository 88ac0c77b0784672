package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/hitoshi/bookman/internal/auth"
	"github.com/hitoshi/bookman/internal/catalog"
	"github.com/hitoshi/bookman/internal/lending"
	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/payment"
	"github.com/hitoshi/bookman/internal/user"
)

const (
	testUserID      = "0190a1b2-0000-7000-8000-000000000001"
	testLibrarianID = "0190a1b2-0000-7000-8000-000000000002"
	testBookID      = "0190a1b2-0000-7000-8000-0000000000b1"
	testLoanID      = "0190a1b2-0000-7000-8000-0000000000c1"
	testResID       = "0190a1b2-0000-7000-8000-0000000000d1"
	testNotifID     = "0190a1b2-0000-7000-8000-0000000000e1"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn    func(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
	loginFn       func(ctx context.Context, email, password string) (*auth.Result, error)
	currentUserFn func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Result, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockAuthService) TokenTTL() time.Duration {
	return 168 * time.Hour
}

// mockBookService はBookServiceInterfaceのモック実装。
type mockBookService struct {
	searchFn  func(ctx context.Context, query string) ([]*model.BookWithReservation, error)
	getByIDFn func(ctx context.Context, id string) (*model.Book, error)
	addFn     func(ctx context.Context, in catalog.AddBookInput) (*model.Book, error)
	removeFn  func(ctx context.Context, id string) error
}

func (m *mockBookService) Search(ctx context.Context, query string) ([]*model.BookWithReservation, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return []*model.BookWithReservation{}, nil
}

func (m *mockBookService) GetByID(ctx context.Context, id string) (*model.Book, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.NewBookNotFoundError(id)
}

func (m *mockBookService) Add(ctx context.Context, in catalog.AddBookInput) (*model.Book, error) {
	if m.addFn != nil {
		return m.addFn(ctx, in)
	}
	return &model.Book{ID: testBookID, Title: in.Title}, nil
}

func (m *mockBookService) Remove(ctx context.Context, id string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, id)
	}
	return nil
}

// mockLendingService はLendingServiceInterfaceのモック実装。
type mockLendingService struct {
	borrowFn       func(ctx context.Context, userID, bookID string) (*lending.BorrowResult, error)
	returnFn       func(ctx context.Context, userID, bookID string) (*lending.ReturnResult, error)
	listLoansFn    func(ctx context.Context, userID string) ([]*model.LoanDetail, error)
	listAllLoansFn func(ctx context.Context) ([]*model.LoanDetail, error)
}

func (m *mockLendingService) Borrow(ctx context.Context, userID, bookID string) (*lending.BorrowResult, error) {
	if m.borrowFn != nil {
		return m.borrowFn(ctx, userID, bookID)
	}
	return &lending.BorrowResult{ID: testLoanID}, nil
}

func (m *mockLendingService) Return(ctx context.Context, userID, bookID string) (*lending.ReturnResult, error) {
	if m.returnFn != nil {
		return m.returnFn(ctx, userID, bookID)
	}
	return &lending.ReturnResult{ID: testLoanID}, nil
}

func (m *mockLendingService) ListLoans(ctx context.Context, userID string) ([]*model.LoanDetail, error) {
	if m.listLoansFn != nil {
		return m.listLoansFn(ctx, userID)
	}
	return []*model.LoanDetail{}, nil
}

func (m *mockLendingService) ListAllLoans(ctx context.Context) ([]*model.LoanDetail, error) {
	if m.listAllLoansFn != nil {
		return m.listAllLoansFn(ctx)
	}
	return []*model.LoanDetail{}, nil
}

// mockReservationService はReservationServiceInterfaceのモック実装。
type mockReservationService struct {
	createFn     func(ctx context.Context, userID, bookID string) (*model.Reservation, error)
	listByUserFn func(ctx context.Context, userID string) ([]*model.ReservationDetail, error)
	cancelFn     func(ctx context.Context, reservationID, userID string) error
}

func (m *mockReservationService) Create(ctx context.Context, userID, bookID string) (*model.Reservation, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, bookID)
	}
	return &model.Reservation{ID: testResID, UserID: userID, BookID: bookID, Status: model.ReservationStatusPending}, nil
}

func (m *mockReservationService) ListByUser(ctx context.Context, userID string) ([]*model.ReservationDetail, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return []*model.ReservationDetail{}, nil
}

func (m *mockReservationService) Cancel(ctx context.Context, reservationID, userID string) error {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, reservationID, userID)
	}
	return nil
}

// mockNotificationService はNotificationServiceInterfaceのモック実装。
type mockNotificationService struct {
	listFn        func(ctx context.Context, userID string) ([]*model.Notification, error)
	unreadCountFn func(ctx context.Context, userID string) (int, error)
	markReadFn    func(ctx context.Context, notificationID, userID string) error
	markAllReadFn func(ctx context.Context, userID string) error
}

func (m *mockNotificationService) List(ctx context.Context, userID string) ([]*model.Notification, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []*model.Notification{}, nil
}

func (m *mockNotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	if m.unreadCountFn != nil {
		return m.unreadCountFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockNotificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, notificationID, userID)
	}
	return nil
}

func (m *mockNotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if m.markAllReadFn != nil {
		return m.markAllReadFn(ctx, userID)
	}
	return nil
}

// mockUserService はUserServiceInterfaceとUserAdminServiceInterfaceのモック実装。
type mockUserService struct {
	getProfileFn     func(ctx context.Context, userID string) (*model.User, error)
	borrowedCountFn  func(ctx context.Context, userID string) (int, error)
	updateProfileFn  func(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
	changePasswordFn func(ctx context.Context, userID, currentPassword, newPassword string) (*model.User, error)
	listFn           func(ctx context.Context) ([]*model.User, error)
	createFn         func(ctx context.Context, in user.CreateInput) (*model.User, error)
	updateFn         func(ctx context.Context, userID string, in user.UserUpdate) (*model.User, error)
	deleteFn         func(ctx context.Context, actorID, userID string) error
	updateRoleFn     func(ctx context.Context, actorID, userID, role string) (*model.User, error)
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return testUser(userID, model.RoleStudent), nil
}

func (m *mockUserService) BorrowedCount(ctx context.Context, userID string) (int, error) {
	if m.borrowedCountFn != nil {
		return m.borrowedCountFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in)
	}
	return testUser(userID, model.RoleStudent), nil
}

func (m *mockUserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (*model.User, error) {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, userID, currentPassword, newPassword)
	}
	return testUser(userID, model.RoleStudent), nil
}

func (m *mockUserService) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []*model.User{}, nil
}

func (m *mockUserService) Create(ctx context.Context, in user.CreateInput) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return testUser(testUserID, model.RoleStudent), nil
}

func (m *mockUserService) Update(ctx context.Context, userID string, in user.UserUpdate) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, in)
	}
	return testUser(userID, model.RoleStudent), nil
}

func (m *mockUserService) Delete(ctx context.Context, actorID, userID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actorID, userID)
	}
	return nil
}

func (m *mockUserService) UpdateRole(ctx context.Context, actorID, userID, role string) (*model.User, error) {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, actorID, userID, role)
	}
	r, _ := model.ParseRole(role)
	return testUser(userID, r), nil
}

// mockPaymentService はPaymentServiceInterfaceのモック実装。
type mockPaymentService struct {
	createIntentFn  func(ctx context.Context, userID, loanID string) (*payment.IntentResult, error)
	handleWebhookFn func(ctx context.Context, signature string, body []byte) error
	verifyFn        func(ctx context.Context, sessionID string) (*payment.VerifyResult, error)
}

func (m *mockPaymentService) CreateIntent(ctx context.Context, userID, loanID string) (*payment.IntentResult, error) {
	if m.createIntentFn != nil {
		return m.createIntentFn(ctx, userID, loanID)
	}
	return &payment.IntentResult{SessionID: "cs_test_1", URL: "https://checkout.example.com/cs_test_1"}, nil
}

func (m *mockPaymentService) HandleWebhook(ctx context.Context, signature string, body []byte) error {
	if m.handleWebhookFn != nil {
		return m.handleWebhookFn(ctx, signature, body)
	}
	return nil
}

func (m *mockPaymentService) Verify(ctx context.Context, sessionID string) (*payment.VerifyResult, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, sessionID)
	}
	return &payment.VerifyResult{PaymentStatus: "unpaid"}, nil
}

// --- テストヘルパー ---

func testUser(id string, role model.Role) *model.User {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return model.NewUser(id, "Test User", "test@example.com", role, "hash", now)
}

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeBody はレスポンスボディを任意の型にデコードするヘルパー。
func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}
