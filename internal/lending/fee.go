package lending

import (
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// 返却時に加算される手数料。
const (
	LateFee        = 5.0
	ReservationFee = 2.0
)

// FeeInput は手数料計算の入力。
type FeeInput struct {
	BaseFee              float64
	Overdue              bool
	HasActiveReservation bool
}

// CalculateFees は手数料の内訳を計算する。
// 各項目は独立に加算され、延滞日数には依存しない。
func CalculateFees(in FeeInput) model.FeeBreakdown {
	fees := model.FeeBreakdown{BaseFee: in.BaseFee}
	if fees.BaseFee < 0 {
		fees.BaseFee = 0
	}
	if in.Overdue {
		fees.LateFee = LateFee
	}
	if in.HasActiveReservation {
		fees.ReservationFee = ReservationFee
	}
	fees.TotalFee = fees.BaseFee + fees.LateFee + fees.ReservationFee
	return fees
}

// IsOverdue は未返却かつ期限を過ぎているかを判定する。
func IsOverdue(returnDate *time.Time, due, now time.Time) bool {
	return returnDate == nil && now.After(due)
}
