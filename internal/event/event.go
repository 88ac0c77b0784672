// Package event は返却イベントのファンアウトを提供する。
//
// 返却処理のコミット後にBookReturnedを発行し、登録された各購読者
// （監査ログ・カタログキャッシュ更新・予約待ち通知）が独立に処理する。
// 購読者の失敗はログとメトリクスに記録され、返却処理には影響しない。
package event

import "time"

// TopicBookReturned は返却イベントのトピック名。
const TopicBookReturned = "book.returned"

// BookReturned は書籍が返却されたことを表すイベント。
type BookReturned struct {
	LoanID     string    `json:"loanId"`
	UserID     string    `json:"userId"`
	BookID     string    `json:"bookId"`
	BookTitle  string    `json:"bookTitle"`
	UserName   string    `json:"userName"`
	ReturnedAt time.Time `json:"returnedAt"`
}
