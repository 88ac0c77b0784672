package handler

import (
	"context"

	"github.com/hitoshi/bookman/internal/model"
)

// UserFinder は利用者の存在確認に使うインターフェース。user.Serviceが満たす。
type UserFinder interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
}

// LoanLister は利用者の貸出履歴取得に使うインターフェース。lending.Serviceが満たす。
type LoanLister interface {
	ListLoans(ctx context.Context, userID string) ([]*model.LoanDetail, error)
}

// UserLoansAdapter は user.Service と lending.Service を UserLoansLister に適合させるアダプタ。
// 存在しない利用者にはUSER_NOT_FOUNDを返す。
type UserLoansAdapter struct {
	users UserFinder
	loans LoanLister
}

// NewUserLoansAdapter はUserLoansAdapterを生成する。
func NewUserLoansAdapter(users UserFinder, loans LoanLister) *UserLoansAdapter {
	return &UserLoansAdapter{users: users, loans: loans}
}

// ListUserLoans は利用者の存在を確認してから貸出履歴を返す。
func (a *UserLoansAdapter) ListUserLoans(ctx context.Context, userID string) ([]*model.LoanDetail, error) {
	if _, err := a.users.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	return a.loans.ListLoans(ctx, userID)
}
