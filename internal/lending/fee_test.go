package lending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateFees(t *testing.T) {
	tests := []struct {
		name  string
		input FeeInput
		want  [4]float64 // base, late, reservation, total
	}{
		{"手数料なし", FeeInput{}, [4]float64{0, 0, 0, 0}},
		{"延滞のみ", FeeInput{Overdue: true}, [4]float64{0, 5, 0, 5}},
		{"予約のみ", FeeInput{HasActiveReservation: true}, [4]float64{0, 0, 2, 2}},
		{"延滞と予約", FeeInput{Overdue: true, HasActiveReservation: true}, [4]float64{0, 5, 2, 7}},
		{"基本料金あり", FeeInput{BaseFee: 1.5, Overdue: true}, [4]float64{1.5, 5, 0, 6.5}},
		{"負の基本料金は0として扱う", FeeInput{BaseFee: -3}, [4]float64{0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateFees(tt.input)
			assert.Equal(t, tt.want[0], got.BaseFee)
			assert.Equal(t, tt.want[1], got.LateFee)
			assert.Equal(t, tt.want[2], got.ReservationFee)
			assert.Equal(t, tt.want[3], got.TotalFee)
		})
	}
}

func TestIsOverdue(t *testing.T) {
	due := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	returned := due.Add(-time.Hour)

	assert.False(t, IsOverdue(nil, due, due), "期限ちょうどは延滞ではない")
	assert.True(t, IsOverdue(nil, due, due.Add(time.Second)))
	assert.True(t, IsOverdue(nil, due, due.AddDate(0, 0, 6)))
	assert.False(t, IsOverdue(&returned, due, due.AddDate(0, 0, 6)), "返却済みは延滞扱いしない")
}

func TestLateFee_IndependentOfDays(t *testing.T) {
	due := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, days := range []int{1, 6, 30, 365} {
		fees := CalculateFees(FeeInput{Overdue: IsOverdue(nil, due, due.AddDate(0, 0, days))})
		assert.Equal(t, LateFee, fees.LateFee, "days=%d", days)
	}
}
