package model

import "github.com/google/uuid"

// NewID はエンティティIDとして使用するUUIDv7文字列を生成する。
// UUIDv7は生成時刻順に並ぶため、同時刻の予約キューの並び順にも使用できる。
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
