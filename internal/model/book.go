package model

import "time"

// Book は蔵書を表す。
// 不変条件: 0 <= AvailableCopies <= TotalCopies
type Book struct {
	ID              string
	Title           string
	Author          string
	ISBN            string
	TotalCopies     int
	AvailableCopies int
	BaseFee         float64 // 貸出ごとの基本料金
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsAvailable は貸出可能な在庫があるかどうかを返す。
func (b *Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}

// BookSummary は貸出記録などに埋め込む書籍の概要。
type BookSummary struct {
	ID     string
	Title  string
	Author string
}

// Summary は書籍の概要を返す。
func (b *Book) Summary() BookSummary {
	return BookSummary{ID: b.ID, Title: b.Title, Author: b.Author}
}

// BookWithReservation は検索結果に予約有無を付与した書籍。
type BookWithReservation struct {
	Book
	HasReservations bool
}
