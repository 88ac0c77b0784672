package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
)

// HTTPServer は*http.Serverの起動・停止メソッド。
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService はHTTPサーバーを監視対象サービスとして扱う。
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService はHTTPServerServiceを生成する。
// shutdownTimeoutが0以下の場合は10秒。
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve はListenAndServeを起動し、ctxのキャンセルでグレースフルシャットダウンする。
func (s *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *HTTPServerService) String() string { return "http-server" }

// EventRouter はイベントバスの起動・停止メソッド。
type EventRouter interface {
	Run(ctx context.Context) error
	Close() error
}

// EventBusService はイベントバスを監視対象サービスとして扱う。
// watermillのルーターは停止後に再起動できないため、
// ctx以外の理由で停止した場合はツリー全体を停止させる。
type EventBusService struct {
	bus EventRouter
}

// NewEventBusService はEventBusServiceを生成する。
func NewEventBusService(bus EventRouter) *EventBusService {
	return &EventBusService{bus: bus}
}

// Serve はイベントルーターを起動し、ctxがキャンセルされるまでブロックする。
func (s *EventBusService) Serve(ctx context.Context) error {
	err := s.bus.Run(ctx)
	if ctx.Err() != nil {
		if cerr := s.bus.Close(); cerr != nil {
			return fmt.Errorf("failed to close event bus: %w", cerr)
		}
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("event router stopped unexpectedly")
	}
	return fmt.Errorf("%w: %w", suture.ErrTerminateSupervisorTree, err)
}

func (s *EventBusService) String() string { return "event-bus" }

// Job は定期実行される処理。
type Job interface {
	Run(ctx context.Context) error
}

// PeriodicService はJobを一定間隔で実行するサービス。
// 起動直後に1回実行し、以降はintervalごとに実行する。
// Jobのエラーはログに記録し、サービス自体は停止しない。
type PeriodicService struct {
	name     string
	job      Job
	interval time.Duration
	logger   *slog.Logger
}

// NewPeriodicService はPeriodicServiceを生成する。
func NewPeriodicService(name string, job Job, interval time.Duration, logger *slog.Logger) *PeriodicService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodicService{name: name, job: job, interval: interval, logger: logger}
}

// Serve はctxがキャンセルされるまでJobを定期実行する。
func (s *PeriodicService) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive: %w", s.name, suture.ErrDoNotRestart)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("定期ジョブを開始しました",
		slog.String("job", s.name),
		slog.Duration("interval", s.interval),
	)

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("定期ジョブを停止しました", slog.String("job", s.name))
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *PeriodicService) runOnce(ctx context.Context) {
	if err := s.job.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("定期ジョブの実行に失敗しました",
			slog.String("job", s.name),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PeriodicService) String() string { return s.name }
