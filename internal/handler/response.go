package handler

import (
	"time"

	"github.com/hitoshi/bookman/internal/lending"
	"github.com/hitoshi/bookman/internal/model"
)

// userResponse は利用者情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	MaxBorrowLimit int       `json:"maxBorrowLimit"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           string(u.Role),
		MaxBorrowLimit: u.MaxBorrowLimit,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func toUserResponses(users []*model.User) []userResponse {
	results := make([]userResponse, len(users))
	for i, u := range users {
		results[i] = toUserResponse(u)
	}
	return results
}

// bookResponse は書籍情報のAPIレスポンス。
type bookResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	BaseFee         float64   `json:"baseFee"`
	HasReservations *bool     `json:"hasReservations,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toBookResponse(b *model.Book) bookResponse {
	return bookResponse{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		BaseFee:         b.BaseFee,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func toSearchResponses(books []*model.BookWithReservation) []bookResponse {
	results := make([]bookResponse, len(books))
	for i, b := range books {
		resp := toBookResponse(&b.Book)
		has := b.HasReservations
		resp.HasReservations = &has
		results[i] = resp
	}
	return results
}

// bookSummaryResponse は貸出記録・予約に埋め込む書籍の概要。
type bookSummaryResponse struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

func toBookSummaryResponse(b model.BookSummary) bookSummaryResponse {
	return bookSummaryResponse{ID: b.ID, Title: b.Title, Author: b.Author}
}

// userSummaryResponse は貸出記録に埋め込む利用者の概要。
type userSummaryResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// feesResponse は料金内訳のAPIレスポンス。
type feesResponse struct {
	BaseFee        float64 `json:"baseFee"`
	LateFee        float64 `json:"lateFee"`
	ReservationFee float64 `json:"reservationFee"`
	TotalFee       float64 `json:"totalFee"`
}

func toFeesResponse(f model.FeeBreakdown) feesResponse {
	return feesResponse{
		BaseFee:        f.BaseFee,
		LateFee:        f.LateFee,
		ReservationFee: f.ReservationFee,
		TotalFee:       f.TotalFee,
	}
}

// borrowResponse は貸出処理のAPIレスポンス。
type borrowResponse struct {
	ID         string              `json:"id"`
	Book       bookSummaryResponse `json:"book"`
	BorrowDate time.Time           `json:"borrowDate"`
	DueDate    time.Time           `json:"dueDate"`
}

func toBorrowResponse(r *lending.BorrowResult) borrowResponse {
	return borrowResponse{
		ID:         r.ID,
		Book:       toBookSummaryResponse(r.Book),
		BorrowDate: r.BorrowDate,
		DueDate:    r.DueDate,
	}
}

// returnResponse は返却処理のAPIレスポンス。
type returnResponse struct {
	ID         string       `json:"id"`
	ReturnDate time.Time    `json:"returnDate"`
	Fees       feesResponse `json:"fees"`
}

func toReturnResponse(r *lending.ReturnResult) returnResponse {
	return returnResponse{
		ID:         r.ID,
		ReturnDate: r.ReturnDate,
		Fees:       toFeesResponse(r.Fees),
	}
}

// loanResponse は貸出履歴のAPIレスポンス。
type loanResponse struct {
	ID            string               `json:"id"`
	Book          bookSummaryResponse  `json:"book"`
	User          *userSummaryResponse `json:"user,omitempty"`
	BorrowDate    time.Time            `json:"borrowDate"`
	DueDate       time.Time            `json:"dueDate"`
	ReturnDate    *time.Time           `json:"returnDate"`
	Status        string               `json:"status"`
	Fees          feesResponse         `json:"fees"`
	PaymentStatus string               `json:"paymentStatus"`
	PaymentID     *string              `json:"paymentId"`
	PaidAt        *time.Time           `json:"paidAt"`
}

func toLoanResponses(loans []*model.LoanDetail, withUser bool) []loanResponse {
	results := make([]loanResponse, len(loans))
	for i, l := range loans {
		resp := loanResponse{
			ID:            l.ID,
			Book:          toBookSummaryResponse(l.Book),
			BorrowDate:    l.BorrowDate,
			DueDate:       l.DueDate,
			ReturnDate:    l.ReturnDate,
			Status:        string(l.Status),
			Fees:          toFeesResponse(l.Fees),
			PaymentStatus: string(l.PaymentStatus),
			PaymentID:     l.PaymentID,
			PaidAt:        l.PaidAt,
		}
		if withUser {
			resp.User = &userSummaryResponse{ID: l.User.ID, Name: l.User.Name, Email: l.User.Email}
		}
		results[i] = resp
	}
	return results
}

// reservationResponse は予約のAPIレスポンス。
type reservationResponse struct {
	ID        string               `json:"id"`
	UserID    string               `json:"userId"`
	BookID    string               `json:"bookId"`
	Status    string               `json:"status"`
	Book      *bookSummaryResponse `json:"book,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

func toReservationResponse(r *model.Reservation) reservationResponse {
	return reservationResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		BookID:    r.BookID,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toReservationDetailResponses(list []*model.ReservationDetail) []reservationResponse {
	results := make([]reservationResponse, len(list))
	for i, d := range list {
		resp := toReservationResponse(&d.Reservation)
		book := toBookSummaryResponse(d.Book)
		resp.Book = &book
		results[i] = resp
	}
	return results
}

// notificationResponse は通知のAPIレスポンス。
type notificationResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

func toNotificationResponses(list []*model.Notification) []notificationResponse {
	results := make([]notificationResponse, len(list))
	for i, n := range list {
		results[i] = notificationResponse{
			ID:        n.ID,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		}
	}
	return results
}
