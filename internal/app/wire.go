package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/thejerf/suture/v4"

	"github.com/hitoshi/bookman/internal/auth"
	"github.com/hitoshi/bookman/internal/authz"
	"github.com/hitoshi/bookman/internal/catalog"
	"github.com/hitoshi/bookman/internal/config"
	"github.com/hitoshi/bookman/internal/event"
	"github.com/hitoshi/bookman/internal/handler"
	"github.com/hitoshi/bookman/internal/lending"
	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/notification"
	"github.com/hitoshi/bookman/internal/payment"
	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/reservation"
	"github.com/hitoshi/bookman/internal/security"
	"github.com/hitoshi/bookman/internal/supervisor"
	"github.com/hitoshi/bookman/internal/user"
	"github.com/hitoshi/bookman/internal/worker/cleanup"
	"github.com/hitoshi/bookman/internal/worker/overdue"
)

// cleanupInterval は既読通知クリーンアップの実行間隔。
const cleanupInterval = 24 * time.Hour

// server はserveコマンドで起動する構成要素。
type server struct {
	handler     http.Handler
	bus         *event.Bus
	cache       *catalog.RistrettoCache
	rateLimiter *middleware.RateLimiter
}

// Close はキャッシュとレートリミッターのバックグラウンド処理を停止する。
// イベントバスは監視ツリーが停止させる。
func (s *server) Close() {
	s.rateLimiter.Stop()
	s.cache.Close()
}

// buildServer はリポジトリ、サービス、イベントバス、ルーターを構築する。
func buildServer(db *sql.DB, cfg *config.Config, logger *slog.Logger) (*server, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	bookRepo := repository.NewPostgresBookRepo(db)
	loanRepo := repository.NewPostgresLoanRepo(db)
	resRepo := repository.NewPostgresReservationRepo(db)
	notifRepo := repository.NewPostgresNotificationRepo(db)

	// 3. 横断的な構成要素
	sanitizer := security.NewTextSanitizer()
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization enforcer: %w", err)
	}
	cache, err := catalog.NewRistrettoCache(cfg.CatalogCacheMaxCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog cache: %w", err)
	}

	busCfg := event.DefaultBusConfig()
	busCfg.Buffer = cfg.EventBuffer
	bus, err := event.NewBus(busCfg, logger, collector)
	if err != nil {
		cache.Close()
		return nil, err
	}

	// 4. ドメインサービス
	authService := auth.NewService(userRepo, auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn), sanitizer)
	catalogService := catalog.NewService(bookRepo, resRepo, cache, sanitizer)
	reservationService := reservation.NewService(resRepo, userRepo, bookRepo)
	notificationService := notification.NewService(notifRepo)
	userService := user.NewService(userRepo, loanRepo, sanitizer)
	lendingService := lending.NewService(lending.Deps{
		Users:        userRepo,
		Books:        bookRepo,
		Loans:        loanRepo,
		Reservations: resRepo,
		Publisher:    bus,
		Cache:        catalogService,
		Recorder:     collector,
		LoanPeriod:   cfg.LoanPeriod,
	})

	// 5. 返却イベントの購読者
	event.RegisterDefaultSubscribers(bus, logger, catalogService, reservationService, notificationService)

	// 6. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral))
	deps := &handler.RouterDeps{
		Logger:          logger,
		HealthChecker:   db,
		MetricsGatherer: registry,
		HTTPRecorder:    collector,

		Authenticator:          authService,
		Enforcer:               enforcer,
		CORSAllowedOrigin:      cfg.CORSAllowedOrigin,
		RateLimiter:            rateLimiter,
		AuthRateLimitPerMinute: cfg.RateLimitAuth,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},
		BookService:         catalogService,
		LendingService:      lendingService,
		ReservationService:  reservationService,
		NotificationService: notificationService,
		UserService:         userService,
		UserAdminService:    userService,
		UserLoans:           handler.NewUserLoansAdapter(userService, lendingService),
	}
	if cfg.CSRFEnabled {
		deps.CSRF = &middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		}
	}
	if cfg.PaymentEnabled() {
		client := payment.NewStripeClient(payment.ClientConfig{
			SecretKey: cfg.StripeSecretKey,
			APIBase:   cfg.StripeAPIBase,
			Timeout:   cfg.PaymentTimeout,
		}, logger)
		deps.PaymentService = payment.NewService(loanRepo, client, payment.Config{
			WebhookSecret: cfg.StripeWebhookSecret,
			FrontendURL:   cfg.FrontendURL,
		}, logger)
	}

	return &server{
		handler:     handler.NewRouter(deps),
		bus:         bus,
		cache:       cache,
		rateLimiter: rateLimiter,
	}, nil
}

// buildWorkerServices はworkerコマンドで起動する定期ジョブと、
// /health と /metrics のみを公開する運用サーバーを構築する。
func buildWorkerServices(db *sql.DB, cfg *config.Config, logger *slog.Logger) []suture.Service {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	mux := http.NewServeMux()
	mux.Handle("/health", handler.NewHealthHandler(db))
	mux.Handle("/metrics", metrics.Handler(registry))
	opsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	reminder := overdue.NewReminder(
		repository.NewPostgresLoanRepo(db),
		notification.NewService(repository.NewPostgresNotificationRepo(db)),
		logger,
		cfg.OverdueReminderInterval,
		cfg.OverdueMaxConcurrent,
		overdue.WithRecorder(collector),
	)
	cleanupJob := cleanup.NewCleanupJob(db, logger, cfg.NotificationRetention)

	return []suture.Service{
		supervisor.NewPeriodicService("overdue-reminder", reminder, cfg.OverdueReminderInterval, logger),
		supervisor.NewPeriodicService("notification-cleanup", cleanupJob, cleanupInterval, logger),
		supervisor.NewHTTPServerService(opsServer, 5*time.Second),
	}
}
