package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/user"
)

// UserAdminServiceInterface は司書による利用者管理のサービスインターフェース。
type UserAdminServiceInterface interface {
	List(ctx context.Context) ([]*model.User, error)
	Create(ctx context.Context, in user.CreateInput) (*model.User, error)
	Update(ctx context.Context, userID string, in user.UserUpdate) (*model.User, error)
	Delete(ctx context.Context, actorID, userID string) error
	UpdateRole(ctx context.Context, actorID, userID, role string) (*model.User, error)
}

// UserLoansLister は指定利用者の貸出履歴を取得するインターフェース。
type UserLoansLister interface {
	ListUserLoans(ctx context.Context, userID string) ([]*model.LoanDetail, error)
}

// LibrarianHandler は司書向け管理画面のHTTPハンドラー。
type LibrarianHandler struct {
	users     UserAdminServiceInterface
	books     BookServiceInterface
	lending   LendingServiceInterface
	userLoans UserLoansLister
}

// NewLibrarianHandler はLibrarianHandlerを生成する。
func NewLibrarianHandler(users UserAdminServiceInterface, books BookServiceInterface, lending LendingServiceInterface, userLoans UserLoansLister) *LibrarianHandler {
	return &LibrarianHandler{
		users:     users,
		books:     books,
		lending:   lending,
		userLoans: userLoans,
	}
}

type createUserRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password"`
	Role     string `json:"role" validate:"omitempty,oneof=STUDENT FACULTY LIBRARIAN student faculty librarian"`
}

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=200"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password"`
	Role     *string `json:"role" validate:"omitempty,oneof=STUDENT FACULTY LIBRARIAN student faculty librarian"`
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=STUDENT FACULTY LIBRARIAN student faculty librarian"`
}

// ListBooks は全蔵書を予約有無付きで返す。
// GET /api/librarians/books
func (h *LibrarianHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.Search(r.Context(), "")
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSearchResponses(books))
}

// ListAllLoans は全利用者の貸出履歴を返す。
// GET /api/librarians/borrows
func (h *LibrarianHandler) ListAllLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.lending.ListAllLoans(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponses(loans, true))
}

// ListUserLoans は指定利用者の貸出履歴を返す。
// GET /api/librarians/users/{id}/borrows
func (h *LibrarianHandler) ListUserLoans(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if !validID(userID) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	loans, err := h.userLoans.ListUserLoans(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponses(loans, false))
}

// ListUsers は全利用者を返す。
// GET /api/librarians/users
func (h *LibrarianHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}

// CreateUser は利用者を作成する。パスワード省略時は既定のパスワードを設定する。
// POST /api/librarians/users
func (h *LibrarianHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.users.Create(r.Context(), user.CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// UpdateUser は利用者情報を更新する。Role変更時は貸出上限も再計算される。
// PUT /api/librarians/users/{id}
func (h *LibrarianHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if !validID(userID) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.users.Update(r.Context(), userID, user.UserUpdate{
		ProfileUpdate: user.ProfileUpdate{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
		},
		Role: req.Role,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// DeleteUser は利用者を削除する。自分自身は削除できない。
// DELETE /api/librarians/users/{id}
func (h *LibrarianHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "id")
	if !validID(userID) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	if err := h.users.Delete(r.Context(), actorID, userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateUserRole は利用者のRoleを変更する。自分自身のRoleは変更できない。
// PATCH /api/librarians/users/{id}/role
func (h *LibrarianHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "id")
	if !validID(userID) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	var req updateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.users.UpdateRole(r.Context(), actorID, userID, req.Role)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}
