package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/middleware"
)

// APIPrefix は全APIエンドポイントの共通パス。
const APIPrefix = "/api"

// webhookPath はCSRF検証と認証の対象外となる決済Webhookの経路。
const webhookPath = APIPrefix + "/payments/webhook"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// 運用エンドポイント
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer
	HTTPRecorder    middleware.HTTPRecorder

	// ミドルウェア依存
	Authenticator          middleware.TokenAuthenticator
	Enforcer               middleware.PolicyEnforcer
	CORSAllowedOrigin      string
	CSRF                   *middleware.CSRFConfig // nilの場合はCSRF検証を行わない
	RateLimiter            *middleware.RateLimiter
	AuthRateLimitPerMinute int

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 蔵書・貸出
	BookService         BookServiceInterface
	LendingService      LendingServiceInterface
	ReservationService  ReservationServiceInterface
	NotificationService NotificationServiceInterface

	// 利用者
	UserService      UserServiceInterface
	UserAdminService UserAdminServiceInterface
	UserLoans        UserLoansLister

	// 決済（nilの場合は決済エンドポイントを公開しない）
	PaymentService PaymentServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → CSRF
//	  公開ルート:   (/auth/* のみ) AuthRateLimit
//	  保護ルート:   Auth → Authz → RateLimit(General)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.HTTPRecorder))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.SetupMetricsRoute(deps.MetricsGatherer))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	bookHandler := NewBookHandler(deps.BookService)
	borrowHandler := NewBorrowHandler(deps.LendingService)
	reservationHandler := NewReservationHandler(deps.ReservationService)
	notificationHandler := NewNotificationHandler(deps.NotificationService)
	userHandler := NewUserHandler(deps.UserService)
	librarianHandler := NewLibrarianHandler(deps.UserAdminService, deps.BookService, deps.LendingService, deps.UserLoans)

	var paymentHandler *PaymentHandler
	if deps.PaymentService != nil {
		paymentHandler = NewPaymentHandler(deps.PaymentService)
	}

	r.Route(APIPrefix, func(r chi.Router) {
		if deps.CSRF != nil {
			csrfCfg := *deps.CSRF
			csrfCfg.ExemptPaths = append(csrfCfg.ExemptPaths, webhookPath)
			r.Use(middleware.NewCSRFMiddleware(csrfCfg))
			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(csrfCfg))
		}

		// --- 認証不要のルート ---

		r.Group(func(r chi.Router) {
			if deps.AuthRateLimitPerMinute > 0 {
				r.Use(middleware.NewAuthRateLimit(deps.AuthRateLimitPerMinute))
			}
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/logout", authHandler.Logout)
		})

		r.Get("/books", bookHandler.Search)
		r.Get("/books/{id}", bookHandler.GetBook)

		if paymentHandler != nil {
			r.Post("/payments/webhook", paymentHandler.Webhook)
		}

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Auth → Authz → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
			r.Use(middleware.NewAuthzMiddleware(deps.Enforcer, APIPrefix))
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.GeneralMiddleware())
			}

			r.Get("/auth/me", authHandler.Me)

			// 蔵書管理（司書のみ）
			r.Post("/books", bookHandler.AddBook)
			r.Delete("/books/{id}", bookHandler.RemoveBook)

			// 貸出・返却
			r.Route("/borrow", func(r chi.Router) {
				r.Get("/", borrowHandler.ListLoans)
				r.Post("/", borrowHandler.Borrow)
				r.Post("/return", borrowHandler.Return)
			})

			// 予約
			r.Route("/reservations", func(r chi.Router) {
				r.Get("/", reservationHandler.ListReservations)
				r.Post("/", reservationHandler.CreateReservation)
				r.Delete("/{id}", reservationHandler.CancelReservation)
			})

			// 通知
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.ListNotifications)
				r.Get("/unread-count", notificationHandler.UnreadCount)
				r.Patch("/read-all", notificationHandler.MarkAllRead)
				r.Patch("/{id}/read", notificationHandler.MarkRead)
			})

			// 利用者本人
			r.Route("/users", func(r chi.Router) {
				r.Get("/profile", userHandler.GetProfile)
				r.Put("/profile", userHandler.UpdateProfile)
				r.Patch("/profile/password", userHandler.ChangePassword)
				r.Get("/borrowed-count", userHandler.BorrowedCount)
			})

			// 司書向け管理
			r.Route("/librarians", func(r chi.Router) {
				r.Get("/books", librarianHandler.ListBooks)
				r.Get("/borrows", librarianHandler.ListAllLoans)
				r.Route("/users", func(r chi.Router) {
					r.Get("/", librarianHandler.ListUsers)
					r.Post("/", librarianHandler.CreateUser)
					r.Put("/{id}", librarianHandler.UpdateUser)
					r.Delete("/{id}", librarianHandler.DeleteUser)
					r.Patch("/{id}/role", librarianHandler.UpdateUserRole)
					r.Get("/{id}/borrows", librarianHandler.ListUserLoans)
				})
			})

			// 決済
			if paymentHandler != nil {
				r.Post("/payments/create-intent", paymentHandler.CreateIntent)
				r.Get("/payments/verify", paymentHandler.Verify)
			}
		})
	})

	return r
}
