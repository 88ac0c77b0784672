package reservation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// --- モック ---

type mockReservationRepo struct {
	repository.ReservationRepository

	createFn       func(ctx context.Context, r *model.Reservation) error
	findByIDFn     func(ctx context.Context, id string) (*model.Reservation, error)
	findPendingFn  func(ctx context.Context, userID, bookID string) (*model.Reservation, error)
	listByUserFn   func(ctx context.Context, userID string) ([]*model.ReservationDetail, error)
	updateStatusFn func(ctx context.Context, id string, status model.ReservationStatus) error
}

func (m *mockReservationRepo) Create(ctx context.Context, r *model.Reservation) error {
	if m.createFn != nil {
		return m.createFn(ctx, r)
	}
	return nil
}
func (m *mockReservationRepo) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockReservationRepo) FindPending(ctx context.Context, userID, bookID string) (*model.Reservation, error) {
	if m.findPendingFn != nil {
		return m.findPendingFn(ctx, userID, bookID)
	}
	return nil, nil
}
func (m *mockReservationRepo) ListByUser(ctx context.Context, userID string) ([]*model.ReservationDetail, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}
func (m *mockReservationRepo) UpdateStatus(ctx context.Context, id string, status model.ReservationStatus) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return nil
}

type mockUserRepo struct {
	repository.UserRepository
	user *model.User
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.user, nil
}

type mockBookRepo struct {
	repository.BookRepository
	book *model.Book
}

func (m *mockBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	return m.book, nil
}

func newTestService(resRepo *mockReservationRepo) *Service {
	return NewService(
		resRepo,
		&mockUserRepo{user: &model.User{ID: "u1", Role: model.RoleStudent}},
		&mockBookRepo{book: &model.Book{ID: "b1", Title: "Dune", TotalCopies: 1}},
	)
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, code, apiErr.Code)
}

// --- テスト ---

func TestService_Create(t *testing.T) {
	var created *model.Reservation
	svc := newTestService(&mockReservationRepo{
		createFn: func(ctx context.Context, r *model.Reservation) error {
			created = r
			return nil
		},
	})

	res, err := svc.Create(context.Background(), "u1", "b1")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, model.ReservationStatusPending, res.Status)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, "b1", res.BookID)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.CreatedAt.IsZero())
}

func TestService_Create_DuplicatePending(t *testing.T) {
	svc := newTestService(&mockReservationRepo{
		findPendingFn: func(ctx context.Context, userID, bookID string) (*model.Reservation, error) {
			return &model.Reservation{ID: "r1", UserID: userID, BookID: bookID, Status: model.ReservationStatusPending}, nil
		},
		createFn: func(ctx context.Context, r *model.Reservation) error {
			t.Fatal("重複予約を作成してはならない")
			return nil
		},
	})

	_, err := svc.Create(context.Background(), "u1", "b1")
	assertAPIErrorCode(t, err, model.ErrCodeAlreadyExists)
}

func TestService_Create_NotFound(t *testing.T) {
	t.Run("利用者が存在しない", func(t *testing.T) {
		svc := NewService(&mockReservationRepo{}, &mockUserRepo{}, &mockBookRepo{book: &model.Book{ID: "b1"}})
		_, err := svc.Create(context.Background(), "ghost", "b1")
		assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
	})

	t.Run("書籍が存在しない", func(t *testing.T) {
		svc := NewService(&mockReservationRepo{}, &mockUserRepo{user: &model.User{ID: "u1"}}, &mockBookRepo{})
		_, err := svc.Create(context.Background(), "u1", "ghost")
		assertAPIErrorCode(t, err, model.ErrCodeBookNotFound)
	})
}

func TestService_Cancel(t *testing.T) {
	stored := &model.Reservation{ID: "r1", UserID: "u1", BookID: "b1", Status: model.ReservationStatusPending}
	repo := &mockReservationRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Reservation, error) {
			if id != stored.ID {
				return nil, nil
			}
			copied := *stored
			return &copied, nil
		},
		updateStatusFn: func(ctx context.Context, id string, status model.ReservationStatus) error {
			stored.Status = status
			return nil
		},
	}
	svc := newTestService(repo)

	require.NoError(t, svc.Cancel(context.Background(), "r1", "u1"))
	assert.Equal(t, model.ReservationStatusCancelled, stored.Status)

	// 2回目の取り消しは冪等ではなくエラーになる
	err := svc.Cancel(context.Background(), "r1", "u1")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidStatus)
}

func TestService_Cancel_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		stored   *model.Reservation
		userID   string
		wantCode string
	}{
		{
			name:     "存在しない予約",
			stored:   nil,
			userID:   "u1",
			wantCode: model.ErrCodeReservationNotFound,
		},
		{
			name:     "他人の予約",
			stored:   &model.Reservation{ID: "r1", UserID: "u2", Status: model.ReservationStatusPending},
			userID:   "u1",
			wantCode: model.ErrCodeForbidden,
		},
		{
			name:     "通知済みの予約",
			stored:   &model.Reservation{ID: "r1", UserID: "u1", Status: model.ReservationStatusNotified},
			userID:   "u1",
			wantCode: model.ErrCodeInvalidStatus,
		},
		{
			name:     "取消済みの予約",
			stored:   &model.Reservation{ID: "r1", UserID: "u1", Status: model.ReservationStatusCancelled},
			userID:   "u1",
			wantCode: model.ErrCodeInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&mockReservationRepo{
				findByIDFn: func(ctx context.Context, id string) (*model.Reservation, error) {
					return tt.stored, nil
				},
				updateStatusFn: func(ctx context.Context, id string, status model.ReservationStatus) error {
					t.Fatal("状態を更新してはならない")
					return nil
				},
			})
			err := svc.Cancel(context.Background(), "r1", tt.userID)
			assertAPIErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestService_ListByUser_EmptyIsNotNil(t *testing.T) {
	svc := newTestService(&mockReservationRepo{})

	list, err := svc.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
