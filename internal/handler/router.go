package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/authflow/internal/metrics"
	"github.com/hitoshi/authflow/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter // nilの場合はレート制限しない
	CSRF              middleware.CSRFConfig
	HSTS              bool

	// 運用
	HealthChecker  HealthChecker
	Metrics        metrics.MetricsCollector // nilの場合は記録しない
	MetricsHandler http.Handler             // nilの場合は/metricsを登録しない

	// 認証
	AuthService    AuthServiceInterface
	SessionService SessionGetter
	StateIssuer    StateIssuer
	GoogleEnabled  bool
	AuthConfig     AuthHandlerConfig

	// アクション・フォーム
	Actions     ActionRunner
	SuccessPath string

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → Logging → Metrics → CORS → CSRF
//
// /healthと/metricsはCSRFの外に配置する。
// サインイン・サインアップのPOSTにはクライアントIPごとのレート制限をかける。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	cookies := deps.AuthConfig.Cookies
	authHandler := NewAuthHandler(deps.AuthService, deps.StateIssuer, deps.AuthConfig)
	sessionHandler := NewSessionHandler(deps.SessionService, deps.Metrics)
	actionHandler := NewActionHandler(deps.Actions, cookies)
	formHandler := NewFormHandler(deps.Actions, FormHandlerConfig{
		SuccessPath:   deps.SuccessPath,
		GoogleEnabled: deps.GoogleEnabled,
		Cookies:       cookies,
	})
	userHandler := NewUserHandler(deps.UserService, cookies)

	limited := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		limited = deps.RateLimiter.Middleware()
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
		r.Get("/api/auth/session", sessionHandler.GetSession)

		// アクション（JSON）
		r.Route("/api/actions", func(r chi.Router) {
			r.Use(limited)
			r.Post("/sign-in", actionHandler.SignIn)
			r.Post("/sign-up", actionHandler.SignUp)
		})

		// フォーム（HTML）
		r.Get("/sign-up", formHandler.SignUpPage)
		r.With(limited).Post("/sign-up", formHandler.SignUpSubmit)
		r.Get("/sign-in", formHandler.SignInPage)
		r.With(limited).Post("/sign-in", formHandler.SignInSubmit)

		// 認証ルート
		r.Route("/auth", func(r chi.Router) {
			if deps.GoogleEnabled {
				r.Get("/google/login", authHandler.Login)
				r.Get("/google/callback", authHandler.Callback)
			}
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// 認証が必要なルート
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
			r.Delete("/api/users/me", userHandler.Withdraw)
		})
	})

	return r
}
