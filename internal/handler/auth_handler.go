// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hitoshi/gfbay/internal/middleware"
	"github.com/hitoshi/gfbay/internal/session"
)

// SessionDestroyer はセッション破棄に必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionDestroyer interface {
	Destroy(ctx context.Context, w http.ResponseWriter, s *session.Session) error
}

// AuthHandler はログイン・ログアウト関連のHTTPハンドラー。
// 外部IdPは使わず、セッションにユーザーIDを発行するだけの軽量な認証を提供する。
type AuthHandler struct {
	sessions SessionDestroyer
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions SessionDestroyer) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// Login はセッションにユーザーIDを発行する。
// すでにログイン済みの場合は既存のユーザーIDをそのまま返す（冪等）。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	userID := sess.UserID()
	if userID == "" {
		userID = uuid.New().String()
		sess.Set(session.AttrUserID, userID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId": userID,
	})
}

// Logout はセッションを破棄し、Cookieを失効させる。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	if err := h.sessions.Destroy(r.Context(), w, sess); err != nil {
		slog.Error("failed to destroy session", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loggedOut": true,
	})
}

// Me は現在のセッション情報を返す。未ログインでも200で応答する。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	userID := sess.UserID()
	body := map[string]any{
		"authenticated": userID != "",
	}
	if userID != "" {
		body["userId"] = userID
	}
	if activeID := sess.ActiveAccountID(); activeID != "" {
		body["activeAccountId"] = activeID
	}

	writeJSON(w, http.StatusOK, body)
}

// writeJSON はJSONレスポンスを書き込む共通ヘルパー。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
