package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gfbay/internal/gfapi"
	"github.com/hitoshi/gfbay/internal/middleware"
	"github.com/hitoshi/gfbay/internal/model"
)

// PhotoURLValidator は呼び出し元から渡される写真ソースURLの事前検証インターフェース。
// security.SSRFGuardServiceが実装する。
type PhotoURLValidator interface {
	ValidateURL(rawURL string) error
}

// ListingHandler は出品管理のHTTPハンドラー。
// リクエストコンテキストに注入された署名付きクライアントで上流APIを呼び出す。
type ListingHandler struct {
	photoURLValidator PhotoURLValidator
}

// NewListingHandler はListingHandlerを生成する。
func NewListingHandler(photoURLValidator PhotoURLValidator) *ListingHandler {
	return &ListingHandler{photoURLValidator: photoURLValidator}
}

// createListingRequest は出品作成リクエストのボディ。
// Listingは上流にそのまま転送する出品ペイロード。
type createListingRequest struct {
	Listing      json.RawMessage `json:"listing"`
	PhotoURL     string          `json:"photoUrl"`
	DisplayOrder *int            `json:"displayOrder"`
}

// List は自分の出品を全ページ取得して返す。
// GET /api/listings
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	client, err := middleware.ClientFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthMissingError())
		return
	}

	query := url.Values{}
	query.Set("owner", "me")
	query.Set("v2", "true")

	items, err := client.ListAll(r.Context(), "listing", query)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"listings": items,
		"count":    len(items),
	})
}

// Get は出品を1件取得する。
// GET /api/listings/{id}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	client, err := middleware.ClientFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthMissingError())
		return
	}

	listing, err := client.ListingGet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, listing)
}

// Create は出品を作成する。photoUrlが指定されている場合は写真もアップロードする。
// 写真アップロードの失敗は出品作成の失敗にはしない。
// 出品は作成済みのまま、photoErrorで失敗を通知する。
// POST /api/listings
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	client, err := middleware.ClientFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthMissingError())
		return
	}

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの形式が不正です。"))
		return
	}
	if len(req.Listing) == 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("listingは必須です。"))
		return
	}

	// 写真ソースURLは取得前に静的検証する。出品を作る前に弾く。
	if req.PhotoURL != "" {
		if err := h.photoURLValidator.ValidateURL(req.PhotoURL); err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("photoUrlが許可されていません: "+err.Error()))
			return
		}
	}

	created, err := client.ListingPost(r.Context(), req.Listing)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	body := map[string]any{
		"listing": created,
	}

	if req.PhotoURL != "" {
		listingID := extractListingID(created)
		if listingID == "" {
			slog.Warn("created listing has no id, skipping photo upload")
			body["photoError"] = "could not determine listing ID"
			writeJSON(w, http.StatusCreated, body)
			return
		}

		displayOrder := -1
		if req.DisplayOrder != nil {
			displayOrder = *req.DisplayOrder
		}

		patched, err := client.UploadPhoto(r.Context(), listingID, req.PhotoURL, displayOrder)
		if err != nil {
			slog.Warn("photo upload failed, listing created without photo",
				slog.String("listing_id", listingID),
				slog.String("error", err.Error()),
			)
			body["photoError"] = err.Error()
		} else {
			body["listing"] = patched
		}
	}

	writeJSON(w, http.StatusCreated, body)
}

// Delete は出品を削除する。
// DELETE /api/listings/{id}
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	client, err := middleware.ClientFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthMissingError())
		return
	}

	if _, err := client.ListingDelete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": true,
	})
}

// extractListingID は上流の出品レスポンスからIDを取り出す。
func extractListingID(raw json.RawMessage) string {
	var listing struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &listing); err != nil {
		return ""
	}
	return listing.ID
}

// writeUpstreamError は上流APIのエラーを統一フォーマットに変換して書き込む。
// 上流のエラーコードがHTTPステータスとして妥当な場合はそのまま使用する。
func writeUpstreamError(w http.ResponseWriter, err error) {
	var upstreamErr *gfapi.UpstreamError
	if errors.As(err, &upstreamErr) {
		statusCode := upstreamErr.Code
		if statusCode < 400 || statusCode > 599 {
			statusCode = http.StatusBadGateway
		}
		middleware.WriteErrorResponse(w, statusCode, model.NewUpstreamError(upstreamErr.Code, upstreamErr.Message))
		return
	}

	var transportErr *gfapi.TransportError
	if errors.As(err, &transportErr) {
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewNoResponseError())
		return
	}

	slog.Error("upstream call failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// writeRawJSON はエンコード済みのJSONをそのまま書き込む。
func writeRawJSON(w http.ResponseWriter, statusCode int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(raw)
}
