package model

import "time"

// Notification は利用者宛ての通知を表す。
type Notification struct {
	ID        string
	UserID    string
	Message   string
	Read      bool
	CreatedAt time.Time
}
