package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
)

// Handler は返却イベントの購読者。
type Handler func(ctx context.Context, evt BookReturned) error

// FailureRecorder は購読者の失敗回数を記録するインターフェース。
type FailureRecorder interface {
	RecordEventHandlerFailure(handler string)
}

// BusConfig はイベントバスの設定。
type BusConfig struct {
	Buffer       int64
	CloseTimeout time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

// DefaultBusConfig はデフォルトのバス設定を返す。
func DefaultBusConfig() BusConfig {
	return BusConfig{
		Buffer:       64,
		CloseTimeout: 10 * time.Second,
		MaxRetries:   2,
		RetryDelay:   100 * time.Millisecond,
	}
}

// Bus はwatermillのgochannel Pub/Subとルーターを使用したプロセス内イベントバス。
// 購読者ごとに独立したハンドラとして登録されるため、1つの失敗が他に影響しない。
type Bus struct {
	pubsub   *gochannel.GoChannel
	router   *message.Router
	logger   *slog.Logger
	failures FailureRecorder
}

// NewBus はBusを生成する。failuresはnilでもよい。
func NewBus(cfg BusConfig, logger *slog.Logger, failures FailureRecorder) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	wmLogger := watermill.NewSlogLogger(logger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.Buffer,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event router: %w", err)
	}

	b := &Bus{
		pubsub:   pubsub,
		router:   router,
		logger:   logger,
		failures: failures,
	}

	// 外側から: 失敗の記録 → パニック回復 → 再試行
	router.AddMiddleware(b.recordFailure)
	router.AddMiddleware(middleware.Recoverer)
	if cfg.MaxRetries > 0 {
		retry := middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.RetryDelay,
			MaxInterval:     cfg.RetryDelay * 4,
			Multiplier:      2,
			Logger:          wmLogger,
		}
		router.AddMiddleware(retry.Middleware)
	}

	return b, nil
}

// Subscribe は返却イベントの購読者を登録する。Runの前に呼び出すこと。
func (b *Bus) Subscribe(name string, h Handler) {
	b.router.AddConsumerHandler(name, TopicBookReturned, b.pubsub, func(msg *message.Message) error {
		var evt BookReturned
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("failed to decode event payload: %w", err)
		}
		return h(msg.Context(), evt)
	})
}

// PublishBookReturned は返却イベントを発行する。購読者の処理完了は待たない。
func (b *Bus) PublishBookReturned(ctx context.Context, evt BookReturned) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("loan_id", evt.LoanID)

	if err := b.pubsub.Publish(TopicBookReturned, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", TopicBookReturned, err)
	}
	return nil
}

// Run はルーターを起動し、ctxがキャンセルされるまでブロックする。
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running はルーターが購読を開始したときにクローズされるチャネルを返す。
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// Close はルーターとPub/Subを停止する。
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return fmt.Errorf("failed to close event router: %w", err)
	}
	return b.pubsub.Close()
}

// recordFailure は再試行後も失敗した購読者をログとメトリクスに記録し、メッセージをAckする。
// gochannelはNackされたメッセージを即座に再送するため、ここで打ち切る。
func (b *Bus) recordFailure(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err == nil {
			return out, nil
		}

		name := message.HandlerNameFromCtx(msg.Context())
		b.logger.Error("イベント購読者の処理に失敗しました",
			slog.String("handler", name),
			slog.String("message_id", msg.UUID),
			slog.String("loan_id", msg.Metadata.Get("loan_id")),
			slog.String("error", err.Error()),
		)
		if b.failures != nil {
			b.failures.RecordEventHandlerFailure(name)
		}
		return nil, nil
	}
}
