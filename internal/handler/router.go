package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gfbay/internal/middleware"
)

// SessionManagerInterface はルーター構築に必要なセッションマネージャのインターフェース。
// session.Managerが満たす。
type SessionManagerInterface interface {
	middleware.SessionManager
	SessionDestroyer
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionManager     SessionManagerInterface
	CredentialResolver middleware.CredentialResolver
	ClientFactory      middleware.ClientFactory
	CORSAllowedOrigin  string
	Logger             *slog.Logger

	// アカウント
	AccountService AccountServiceInterface

	// 写真ソースURLのSSRF事前検証
	PhotoURLValidator PhotoURLValidator

	// メトリクス公開用ハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → Recovery → Session → Logging → (RequireAuth / Credentials → RequireClient)
//
// Loggingはセッションより内側に置き、認証済みリクエストのuser_idを記録できるようにする。
// /health と /metrics はセッションミドルウェアの外に配置し、ログにも出力しない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())

	authHandler := NewAuthHandler(deps.SessionManager)
	accountHandler := NewAccountHandler(deps.AccountService)
	credentialHandler := NewCredentialHandler()
	listingHandler := NewListingHandler(deps.PhotoURLValidator)

	// --- セッション不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- セッション付きルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionManager))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.With(middleware.RequireAuth).Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// アカウント管理（ログイン必須、上流クレデンシャルは不要）
		r.Route("/api/accounts", func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.Get("/", accountHandler.List)
			r.Post("/", accountHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", accountHandler.Update)
				r.Delete("/", accountHandler.Delete)
				r.Post("/activate", accountHandler.Activate)
			})
		})

		// クレデンシャル解決が必要なルート
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCredentialsMiddleware(deps.CredentialResolver, deps.ClientFactory))

			// 解決状態の照会（未解決でも200で応答するためゲートなし）
			r.Get("/api/credentials", credentialHandler.Show)

			// 出品管理（署名付きクライアント必須）
			r.Route("/api/listings", func(r chi.Router) {
				r.Use(middleware.RequireClient)

				r.Get("/", listingHandler.List)
				r.Post("/", listingHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", listingHandler.Get)
					r.Delete("/", listingHandler.Delete)
				})
			})
		})
	})

	return r
}
