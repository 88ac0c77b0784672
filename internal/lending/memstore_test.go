package lending

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/bookman/internal/event"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// memStore はテスト用のインメモリストア。
// 利用者・書籍・貸出・予約の各リポジトリを1つの構造体で実装する。
type memStore struct {
	mu           sync.Mutex
	users        map[string]*model.User
	books        map[string]*model.Book
	loans        []*model.Loan
	reservations []*model.Reservation
	seq          int
}

func newMemStore() *memStore {
	return &memStore{
		users: map[string]*model.User{},
		books: map[string]*model.Book{},
	}
}

func (m *memStore) addUser(id string, role model.Role) *model.User {
	u := model.NewUser(id, "name-"+id, id+"@example.com", role, "hash", time.Now())
	m.users[id] = u
	return u
}

func (m *memStore) addBook(id, title string, copies int) *model.Book {
	b := &model.Book{ID: id, Title: title, Author: "author", ISBN: "isbn-" + id, TotalCopies: copies, AvailableCopies: copies}
	m.books[id] = b
	return b
}

// reserve は作成順を保った予約を追加する。
func (m *memStore) reserve(userID, bookID string) *model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	r := &model.Reservation{
		ID:        model.NewID(),
		UserID:    userID,
		BookID:    bookID,
		Status:    model.ReservationStatusPending,
		CreatedAt: time.Unix(int64(m.seq), 0),
	}
	m.reservations = append(m.reservations, r)
	return r
}

func (m *memStore) book(id string) model.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.books[id]
}

func (m *memStore) reservation(id string) model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.ID == id {
			return *r
		}
	}
	return model.Reservation{}
}

// --- UserRepository ---

type memUsers struct {
	repository.UserRepository
	*memStore
}

func (m memUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

// --- BookRepository ---

type memBooks struct {
	repository.BookRepository
	*memStore
}

func (m memBooks) FindByID(ctx context.Context, id string) (*model.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

// --- LoanRepository ---

type memLoans struct {
	repository.LoanRepository
	*memStore
}

func (m memLoans) Checkout(ctx context.Context, loan *model.Loan) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.books[loan.BookID]
	if b == nil || b.AvailableCopies <= 0 {
		return false, nil
	}
	b.AvailableCopies--
	copied := *loan
	m.loans = append(m.loans, &copied)
	return true, nil
}

func (m memLoans) CompleteReturn(ctx context.Context, loan *model.Loan) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.ID != loan.ID {
			continue
		}
		if l.Status != model.LoanStatusBorrowed {
			return false, nil
		}
		*l = *loan
		b := m.books[loan.BookID]
		if b.AvailableCopies < b.TotalCopies {
			b.AvailableCopies++
		}
		return true, nil
	}
	return false, nil
}

func (m memLoans) FindByID(ctx context.Context, id string) (*model.LoanDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.ID == id {
			return m.detail(l), nil
		}
	}
	return nil, nil
}

func (m memLoans) FindBorrowed(ctx context.Context, userID, bookID string) (*model.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.UserID == userID && l.BookID == bookID && l.Status == model.LoanStatusBorrowed {
			copied := *l
			return &copied, nil
		}
	}
	return nil, nil
}

func (m memLoans) CountBorrowedByUser(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, l := range m.loans {
		if l.UserID == userID && l.Status == model.LoanStatusBorrowed {
			count++
		}
	}
	return count, nil
}

func (m memLoans) ListByUser(ctx context.Context, userID string) ([]*model.LoanDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*model.LoanDetail
	for i := len(m.loans) - 1; i >= 0; i-- {
		if m.loans[i].UserID == userID {
			list = append(list, m.detail(m.loans[i]))
		}
	}
	return list, nil
}

func (m memLoans) ListAll(ctx context.Context) ([]*model.LoanDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*model.LoanDetail
	for i := len(m.loans) - 1; i >= 0; i-- {
		list = append(list, m.detail(m.loans[i]))
	}
	return list, nil
}

func (m *memStore) detail(l *model.Loan) *model.LoanDetail {
	d := &model.LoanDetail{Loan: *l}
	if b := m.books[l.BookID]; b != nil {
		d.Book = b.Summary()
	}
	if u := m.users[l.UserID]; u != nil {
		d.User = model.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	return d
}

// --- ReservationRepository ---

type memReservations struct {
	repository.ReservationRepository
	*memStore
}

func (m memReservations) ListActiveByBook(ctx context.Context, bookID string) ([]*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*model.Reservation
	for _, r := range m.reservations {
		if r.BookID == bookID && r.Status.IsActive() {
			copied := *r
			list = append(list, &copied)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (m memReservations) NextPending(ctx context.Context, bookID string) (*model.Reservation, error) {
	active, _ := m.ListActiveByBook(ctx, bookID)
	for _, r := range active {
		if r.Status == model.ReservationStatusPending {
			return r, nil
		}
	}
	return nil, nil
}

func (m memReservations) UpdateStatus(ctx context.Context, id string, status model.ReservationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.ID == id {
			r.Status = status
			return nil
		}
	}
	return nil
}

func (m memReservations) SetStatus(ctx context.Context, id string, status model.ReservationStatus) error {
	return m.UpdateStatus(ctx, id, status)
}

// --- 発行・キャッシュ・メトリクス ---

// syncPublisher は購読者を同期的に呼び出す発行者。
type syncPublisher struct {
	mu        sync.Mutex
	handlers  []event.Handler
	published []event.BookReturned
	err       error
}

func (p *syncPublisher) PublishBookReturned(ctx context.Context, evt event.BookReturned) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.published = append(p.published, evt)
	p.mu.Unlock()
	for _, h := range p.handlers {
		_ = h(ctx, evt)
	}
	return nil
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
}

// recordingMetrics は並行する貸出から呼ばれるためロックで保護する。
type recordingMetrics struct {
	mu       sync.Mutex
	borrows  int
	rejected []string
	returns  []model.FeeBreakdown
}

func (r *recordingMetrics) RecordBorrow() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.borrows++
}

func (r *recordingMetrics) RecordBorrowRejected(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, code)
}

func (r *recordingMetrics) RecordReturn(fees model.FeeBreakdown) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.returns = append(r.returns, fees)
}

// memNotifier は通知を記録する。
type memNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
}

func (n *memNotifier) Notify(ctx context.Context, userID, message string) (*model.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.messages == nil {
		n.messages = map[string][]string{}
	}
	n.messages[userID] = append(n.messages[userID], message)
	return &model.Notification{UserID: userID, Message: message}, nil
}

// testClock はテストから進められる時計。
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
