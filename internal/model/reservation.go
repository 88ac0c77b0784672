package model

import "time"

// ReservationStatus は予約の状態を表す。
type ReservationStatus string

const (
	// ReservationStatusPending は順番待ち。
	ReservationStatusPending ReservationStatus = "PENDING"
	// ReservationStatusNotified は返却により貸出可能になったことを通知済み。
	ReservationStatusNotified ReservationStatus = "NOTIFIED"
	// ReservationStatusCancelled は取り消し済み、または予約者本人が貸出済み。
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// IsActive はPENDINGまたはNOTIFIEDかどうかを返す。
func (s ReservationStatus) IsActive() bool {
	return s == ReservationStatusPending || s == ReservationStatusNotified
}

// Reservation は書籍ごとのFIFO予約キューの1エントリを表す。
// 順序はCreatedAtで決まる。
type Reservation struct {
	ID        string
	UserID    string
	BookID    string
	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReservationDetail は一覧表示用に書籍情報を付与した予約。
type ReservationDetail struct {
	Reservation
	Book BookSummary
}
