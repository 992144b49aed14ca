package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/gfbay/internal/credential"
	"github.com/hitoshi/gfbay/internal/gfapi"
	"github.com/hitoshi/gfbay/internal/model"
)

// clientContextKey はリクエストコンテキストにAPIクライアントを格納するためのキー。
var clientContextKey = contextKey("gf_client")

// identityContextKey はリクエストコンテキストにクレデンシャル記述子を格納するためのキー。
var identityContextKey = contextKey("gf_identity")

// CredentialResolver はクレデンシャル解決に必要なインターフェース。
// credential.Resolverの部分集合として定義する。
type CredentialResolver interface {
	Resolve(ctx context.Context, sess credential.SessionReader, headerKey, headerSecret string) (*credential.Bundle, error)
}

// ClientFactory は解決済みクレデンシャルからAPIクライアントを構築する。
// アプリケーション初期化時に環境・ロガー・メトリクスを束縛して渡す。
type ClientFactory func(apiKey, apiSecret string) (*gfapi.Client, error)

// NewCredentialsMiddleware はリクエストごとにGameFlipクレデンシャルを解決し、
// 署名付きAPIクライアントをコンテキストに注入するミドルウェアを返す。
// クレデンシャルが解決できない場合もリクエストは通過させる。
// クライアントを必須とするルートはRequireClientでゲートする。
func NewCredentialsMiddleware(resolver CredentialResolver, factory ClientFactory) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := SessionFromContext(r.Context())
			if err != nil {
				// セッションミドルウェアが先に適用されていない構成ミス
				slog.Error("credentials middleware requires session middleware")
				WriteInternalServerError(w)
				return
			}

			bundle, err := resolver.Resolve(
				r.Context(),
				sess,
				r.Header.Get(credential.HeaderAPIKey),
				r.Header.Get(credential.HeaderAPISecret),
			)
			if err != nil {
				slog.Error("failed to resolve credentials",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusInternalServerError, model.NewDecryptionFailedError())
				return
			}

			if bundle == nil {
				// クレデンシャルなしで通過。ゲートは後続に委ねる。
				next.ServeHTTP(w, r)
				return
			}

			client, err := factory(bundle.APIKey, bundle.APISecret)
			if err != nil {
				slog.Error("failed to build API client",
					slog.String("error", err.Error()),
					slog.String("source", string(bundle.Source)),
				)
				WriteInternalServerError(w)
				return
			}

			ctx := context.WithValue(r.Context(), clientContextKey, client)
			ctx = context.WithValue(ctx, identityContextKey, bundle.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientFromContext はリクエストコンテキストからAPIクライアントを取得する。
func ClientFromContext(ctx context.Context) (*gfapi.Client, error) {
	client, ok := ctx.Value(clientContextKey).(*gfapi.Client)
	if !ok || client == nil {
		return nil, fmt.Errorf("API client not found in context")
	}
	return client, nil
}

// IdentityFromContext はリクエストコンテキストからクレデンシャル記述子を取得する。
func IdentityFromContext(ctx context.Context) (credential.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(credential.Identity)
	if !ok {
		return credential.Identity{}, fmt.Errorf("credential identity not found in context")
	}
	return identity, nil
}

// ContextWithClient はコンテキストにAPIクライアントと記述子を注入する。
// テストで使用する。
func ContextWithClient(ctx context.Context, client *gfapi.Client, identity credential.Identity) context.Context {
	ctx = context.WithValue(ctx, clientContextKey, client)
	return context.WithValue(ctx, identityContextKey, identity)
}

// RequireClient はAPIクライアントが解決済みであることを要求するミドルウェアを返す。
// クライアントがない場合は401とAUTH_MISSINGエラーを返す。
func RequireClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := ClientFromContext(r.Context()); err != nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthMissingError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth は認証済みセッション（ユーザーIDあり）を要求するミドルウェアを返す。
// 未認証の場合は401とUNAUTHORIZEDエラーを返す。
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := SessionFromContext(r.Context())
		if err != nil || sess.UserID() == "" {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}
