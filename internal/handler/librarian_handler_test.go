package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/user"
)

func newTestLibrarianHandler(users *mockUserService, lendingSvc *mockLendingService) *LibrarianHandler {
	return NewLibrarianHandler(users, &mockBookService{}, lendingSvc, NewUserLoansAdapter(users, lendingSvc))
}

func TestLibrarianHandler_ListAllLoans_EmbedsUser(t *testing.T) {
	lendingSvc := &mockLendingService{
		listAllLoansFn: func(ctx context.Context) ([]*model.LoanDetail, error) {
			return []*model.LoanDetail{
				{
					Loan: model.Loan{ID: testLoanID, Status: model.LoanStatusBorrowed, PaymentStatus: model.PaymentStatusPending},
					Book: model.BookSummary{ID: testBookID, Title: "Dune"},
					User: model.UserSummary{ID: testUserID, Name: "Alice", Email: "alice@example.com"},
				},
			}, nil
		},
	}
	h := newTestLibrarianHandler(&mockUserService{}, lendingSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/librarians/borrows", nil)
	w := httptest.NewRecorder()

	h.ListAllLoans(w, req)

	got := decodeBody[[]loanResponse](t, w)
	if len(got) != 1 || got[0].User == nil || got[0].User.Email != "alice@example.com" {
		t.Fatalf("loans = %+v", got)
	}
}

func TestLibrarianHandler_ListUserLoans_UnknownUser(t *testing.T) {
	users := &mockUserService{
		getProfileFn: func(ctx context.Context, userID string) (*model.User, error) {
			return nil, model.NewUserNotFoundError()
		},
	}
	lendingSvc := &mockLendingService{
		listLoansFn: func(ctx context.Context, userID string) ([]*model.LoanDetail, error) {
			t.Error("loans must not be listed for an unknown user")
			return nil, nil
		},
	}
	h := newTestLibrarianHandler(users, lendingSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/librarians/users/"+testUserID+"/borrows", nil)
	req = withChiURLParam(req, "id", testUserID)
	w := httptest.NewRecorder()

	h.ListUserLoans(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestLibrarianHandler_CreateUser_DefaultsPasswordInService(t *testing.T) {
	users := &mockUserService{
		createFn: func(ctx context.Context, in user.CreateInput) (*model.User, error) {
			if in.Password != "" {
				t.Errorf("password = %q, want empty (service applies default)", in.Password)
			}
			r, _ := model.ParseRole(in.Role)
			return testUser(testUserID, r), nil
		},
	}
	h := newTestLibrarianHandler(users, &mockLendingService{})

	req := httptest.NewRequest(http.MethodPost, "/api/librarians/users",
		strings.NewReader(`{"name":"Prof. X","email":"x@example.com","role":"FACULTY"}`))
	w := httptest.NewRecorder()

	h.CreateUser(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := decodeBody[userResponse](t, w); got.MaxBorrowLimit != model.FacultyBorrowLimit {
		t.Errorf("maxBorrowLimit = %d, want %d", got.MaxBorrowLimit, model.FacultyBorrowLimit)
	}
}

func TestLibrarianHandler_UpdateUser_PassesRole(t *testing.T) {
	users := &mockUserService{
		updateFn: func(ctx context.Context, userID string, in user.UserUpdate) (*model.User, error) {
			if in.Role == nil || *in.Role != "LIBRARIAN" {
				t.Errorf("role = %v, want LIBRARIAN", in.Role)
			}
			return testUser(userID, model.RoleLibrarian), nil
		},
	}
	h := newTestLibrarianHandler(users, &mockLendingService{})

	req := httptest.NewRequest(http.MethodPut, "/api/librarians/users/"+testUserID, strings.NewReader(`{"role":"LIBRARIAN"}`))
	req = withChiURLParam(req, "id", testUserID)
	w := httptest.NewRecorder()

	h.UpdateUser(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decodeBody[userResponse](t, w); got.MaxBorrowLimit != model.LibrarianBorrowLimit {
		t.Errorf("maxBorrowLimit = %d", got.MaxBorrowLimit)
	}
}

func TestLibrarianHandler_DeleteUser_PassesActor(t *testing.T) {
	users := &mockUserService{
		deleteFn: func(ctx context.Context, actorID, userID string) error {
			if actorID == userID {
				return model.NewForbiddenError("自分自身のアカウントは削除できません")
			}
			return nil
		},
	}
	h := newTestLibrarianHandler(users, &mockLendingService{})

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"other user", testUserID, http.StatusNoContent},
		{"self", testLibrarianID, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/librarians/users/"+tt.target, nil)
			req = withChiURLParam(withUserID(req, testLibrarianID), "id", tt.target)
			w := httptest.NewRecorder()

			h.DeleteUser(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestLibrarianHandler_UpdateUserRole_InvalidRole(t *testing.T) {
	h := newTestLibrarianHandler(&mockUserService{}, &mockLendingService{})

	req := httptest.NewRequest(http.MethodPatch, "/api/librarians/users/"+testUserID+"/role", strings.NewReader(`{"role":"ADMIN"}`))
	req = withChiURLParam(withUserID(req, testLibrarianID), "id", testUserID)
	w := httptest.NewRecorder()

	h.UpdateUserRole(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
