package handler

import (
	"net/http"

	"github.com/hitoshi/gfbay/internal/middleware"
)

// CredentialHandler はクレデンシャル解決状態のHTTPハンドラー。
type CredentialHandler struct{}

// NewCredentialHandler はCredentialHandlerを生成する。
func NewCredentialHandler() *CredentialHandler {
	return &CredentialHandler{}
}

// Show は現在のリクエストで解決されたクレデンシャルの記述子を返す。
// シークレットの値は決して含めない。解決できなかった場合もエラーではなく
// configured:false で応答する。
// GET /api/credentials
func (h *CredentialHandler) Show(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"configured": false,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"configured": true,
		"identity":   identity,
	})
}
