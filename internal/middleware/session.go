// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/gfbay/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionManager はセッションの読み込み・保存に必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionManager interface {
	Load(ctx context.Context, r *http.Request) (*session.Session, bool, error)
	Save(ctx context.Context, sess *session.Session) error
	IssueCookie(w http.ResponseWriter, sess *session.Session)
}

// NewSessionMiddleware はCookieからセッションを読み込み、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、または署名検証に失敗した場合は新しい空セッションを発行する。
// ハンドラー実行後、セッションが変更されていればストアに書き戻す。
func NewSessionMiddleware(manager SessionManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, isNew, err := manager.Load(r.Context(), r)
			if err != nil {
				slog.Error("failed to load session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			// 新規セッションには署名付きCookieを発行
			if isNew {
				manager.IssueCookie(w, sess)
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))

			// 変更があった場合のみ書き戻す
			if sess.Dirty() {
				if err := manager.Save(r.Context(), sess); err != nil {
					// レスポンスは送信済みのためログのみ
					slog.Error("failed to save session",
						slog.String("error", err.Error()),
					)
				}
			}
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*session.Session, error) {
	sess, ok := ctx.Value(sessionContextKey).(*session.Session)
	if !ok || sess == nil {
		return nil, fmt.Errorf("session not found in context")
	}
	return sess, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}
