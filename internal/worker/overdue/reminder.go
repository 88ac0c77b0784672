// Package overdue は返却期限を過ぎた貸出の督促ジョブを提供する。
// 一定間隔で延滞中の貸出を取得し、semaphoreパターンで並列数を制御しながら
// 利用者に督促通知を追加する。
package overdue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// DefaultBatchSize は1回の実行で処理する延滞貸出の上限。
const DefaultBatchSize = 500

// LoanSource は延滞貸出の取得と督促日時の記録を行うインターフェース。
type LoanSource interface {
	ListOverdue(ctx context.Context, now, remindedBefore time.Time, limit int) ([]*model.LoanDetail, error)
	MarkReminded(ctx context.Context, loanID string, at time.Time) error
}

// Notifier は利用者への通知インターフェース。
type Notifier interface {
	Notify(ctx context.Context, userID, message string) (*model.Notification, error)
}

// ReminderRecorder は送信した督促数を記録するインターフェース。
type ReminderRecorder interface {
	RecordRemindersSent(count int)
}

// Message は延滞者に送る督促通知の本文を返す。
func Message(title string) string {
	return fmt.Sprintf("Book \"%s\" is overdue. Please return it.", title)
}

// Reminder は延滞貸出の督促ジョブ。
// 前回の督促からInterval以上経過した貸出のみを対象にするため、
// 実行間隔より短い周期で再実行しても同じ貸出に重複して通知しない。
type Reminder struct {
	loans          LoanSource
	notifier       Notifier
	recorder       ReminderRecorder
	logger         *slog.Logger
	interval       time.Duration
	maxConcurrency int
	batchSize      int
	now            func() time.Time
}

// Option はReminderの任意設定。
type Option func(*Reminder)

// WithRecorder は督促数の記録先を設定する。
func WithRecorder(r ReminderRecorder) Option {
	return func(rm *Reminder) { rm.recorder = r }
}

// WithBatchSize は1回の実行で処理する件数の上限を設定する。
func WithBatchSize(n int) Option {
	return func(rm *Reminder) {
		if n > 0 {
			rm.batchSize = n
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(rm *Reminder) { rm.now = now }
}

// NewReminder はReminderを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewReminder(loans LoanSource, notifier Notifier, logger *slog.Logger, interval time.Duration, maxConcurrency int, opts ...Option) *Reminder {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reminder{
		loans:          loans,
		notifier:       notifier,
		logger:         logger,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		batchSize:      DefaultBatchSize,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run は延滞貸出を1回取得し、並列で督促通知を追加する。
// 個別の通知失敗はログに記録して処理を続行し、督促日時は記録しない。
func (r *Reminder) Run(ctx context.Context) error {
	start := r.now()

	loans, err := r.loans.ListOverdue(ctx, start, start.Add(-r.interval), r.batchSize)
	if err != nil {
		return fmt.Errorf("延滞貸出の取得に失敗しました: %w", err)
	}
	if len(loans) == 0 {
		r.logger.Info("督促対象の貸出はありません")
		return nil
	}

	r.logger.Info("督促処理を開始します", slog.Int("loan_count", len(loans)))

	sem := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup
	var sent atomic.Int64

	for _, loan := range loans {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(l *model.LoanDetail) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := r.remind(ctx, l, start); err != nil {
				r.logger.Error("督促通知に失敗しました",
					slog.String("loan_id", l.ID),
					slog.String("user_id", l.UserID),
					slog.String("error", err.Error()),
				)
				return
			}
			sent.Add(1)
		}(loan)
	}

	wg.Wait()

	count := int(sent.Load())
	if r.recorder != nil && count > 0 {
		r.recorder.RecordRemindersSent(count)
	}
	r.logger.Info("督促処理が完了しました",
		slog.Int("loan_count", len(loans)),
		slog.Int("sent_count", count),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return ctx.Err()
}

func (r *Reminder) remind(ctx context.Context, l *model.LoanDetail, at time.Time) error {
	if _, err := r.notifier.Notify(ctx, l.UserID, Message(l.Book.Title)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	if err := r.loans.MarkReminded(ctx, l.ID, at); err != nil {
		return fmt.Errorf("failed to mark reminded: %w", err)
	}
	return nil
}
