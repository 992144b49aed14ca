package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gfbay/internal/account"
	"github.com/hitoshi/gfbay/internal/middleware"
	"github.com/hitoshi/gfbay/internal/model"
	"github.com/hitoshi/gfbay/internal/session"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	List(ctx context.Context, userID string) ([]model.Account, error)
	Find(ctx context.Context, userID, accountID string) (*model.Account, error)
	Create(ctx context.Context, userID, name, apiKey, apiSecretPlain string) (*model.Account, error)
	Update(ctx context.Context, userID, accountID string, params account.UpdateParams) (*model.Account, error)
	Delete(ctx context.Context, userID, accountID string) (bool, error)
}

// AccountHandler は保存済みクレデンシャルプロファイルのHTTPハンドラー。
// レスポンスには暗号化済みシークレットを含めない。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// createAccountRequest はアカウント作成リクエストのボディ。
type createAccountRequest struct {
	Name      string `json:"name"`
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

// updateAccountRequest はアカウント更新リクエストのボディ。
// 省略されたフィールドは既存値を維持する。
type updateAccountRequest struct {
	Name      *string `json:"name"`
	APIKey    *string `json:"apiKey"`
	APISecret *string `json:"apiSecret"`
}

// List はユーザーのアカウント一覧をシークレット抜きで返す。
// GET /api/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	accounts, err := h.service.List(r.Context(), sess.UserID())
	if err != nil {
		slog.Error("failed to list accounts", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	scrubbed := make([]model.ScrubbedAccount, 0, len(accounts))
	for i := range accounts {
		scrubbed = append(scrubbed, account.Scrub(&accounts[i]))
	}
	writeJSON(w, http.StatusOK, scrubbed)
}

// Create は新しいアカウントプロファイルを作成する。
// POST /api/accounts
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの形式が不正です。"))
		return
	}
	if req.Name == "" || req.APIKey == "" || req.APISecret == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("name、apiKey、apiSecretは必須です。"))
		return
	}

	created, err := h.service.Create(r.Context(), sess.UserID(), req.Name, req.APIKey, req.APISecret)
	if err != nil {
		slog.Error("failed to create account", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusCreated, account.Scrub(created))
}

// Update はアカウントを部分的に更新する。
// PATCH /api/accounts/{id}
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	accountID := chi.URLParam(r, "id")

	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの形式が不正です。"))
		return
	}

	updated, err := h.service.Update(r.Context(), sess.UserID(), accountID, account.UpdateParams{
		Name:      req.Name,
		APIKey:    req.APIKey,
		APISecret: req.APISecret,
	})
	if err != nil {
		slog.Error("failed to update account", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if updated == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewAccountNotFoundError(accountID))
		return
	}

	writeJSON(w, http.StatusOK, account.Scrub(updated))
}

// Delete はアカウントを削除する。
// 削除対象がアクティブアカウントだった場合はセッションの選択も解除する。
// DELETE /api/accounts/{id}
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	accountID := chi.URLParam(r, "id")

	removed, err := h.service.Delete(r.Context(), sess.UserID(), accountID)
	if err != nil {
		slog.Error("failed to delete account", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if !removed {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewAccountNotFoundError(accountID))
		return
	}

	if sess.ActiveAccountID() == accountID {
		sess.Delete(session.AttrActiveAccountID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": true,
	})
}

// Activate はアカウントをセッションのアクティブアカウントとして選択する。
// 所有していないアカウントは404を返す。
// POST /api/accounts/{id}/activate
func (h *AccountHandler) Activate(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	accountID := chi.URLParam(r, "id")

	found, err := h.service.Find(r.Context(), sess.UserID(), accountID)
	if err != nil {
		slog.Error("failed to find account", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if found == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewAccountNotFoundError(accountID))
		return
	}

	sess.Set(session.AttrActiveAccountID, accountID)
	writeJSON(w, http.StatusOK, account.Scrub(found))
}
