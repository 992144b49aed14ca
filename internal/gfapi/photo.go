package gfapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxPhotoBytes は写真ソースのダウンロード上限サイズ。
const maxPhotoBytes = 20 << 20 // 20MB

// photoSlot はアップロード許可レスポンス。
type photoSlot struct {
	ID        string `json:"id"`
	UploadURL string `json:"upload_url"`
}

// UploadPhoto は出品に写真をアップロードする3段階のフローを実行する。
//  1. アップロード許可を要求する（署名付きPOST）
//  2. ソースURLから画像バイト列を取得する（SSRF対策済みクライアント、認証なし）
//  3. 発行されたupload_urlにバイト列をPUTする（事前認可済み、認証なし）
//
// コンテンツタイプはURLの拡張子ではなくバイト列から判定する。
// 最後に出品をJSON Patchで更新して写真を有効化する。
// displayOrderが負の場合はカバー写真として設定する。
// ステップ2・3はレート制限の対象外（上流APIへの呼び出しではない）。
func (c *Client) UploadPhoto(ctx context.Context, listingID, photoURL string, displayOrder int) (json.RawMessage, error) {
	// 1. アップロード許可の要求
	raw, err := c.Post(ctx, "listing/"+listingID+"/photo", nil)
	if err != nil {
		return nil, err
	}

	var slot photoSlot
	if err := json.Unmarshal(raw, &slot); err != nil || slot.UploadURL == "" {
		return nil, fmt.Errorf("gfapi: failed to get photo upload URL for listing %s", listingID)
	}

	// 2. ソースURLから画像を取得
	image, err := c.fetchPhotoSource(ctx, photoURL)
	if err != nil {
		return nil, err
	}

	contentType := http.DetectContentType(image)

	// 3. 発行先への書き込み
	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, slot.UploadURL, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("gfapi: failed to create upload request: %w", err)
	}
	putReq.Header.Set("Content-Type", contentType)

	putResp, err := c.httpClient.Do(putReq)
	if err != nil {
		return nil, &TransportError{URL: slot.UploadURL, Err: err}
	}
	defer putResp.Body.Close()
	io.Copy(io.Discard, putResp.Body)

	if putResp.StatusCode < 200 || putResp.StatusCode >= 300 {
		return nil, &UpstreamError{Code: putResp.StatusCode, Message: "photo upload failed"}
	}

	c.logger.Debug("photo uploaded",
		slog.String("listing_id", listingID),
		slog.String("photo_id", slot.ID),
		slog.String("content_type", contentType),
	)

	// 写真を有効化するパッチを適用
	ops := []PatchOp{{
		Op:    "replace",
		Path:  fmt.Sprintf("/photo/%s/status", slot.ID),
		Value: "active",
	}}
	if displayOrder >= 0 {
		ops = append(ops, PatchOp{
			Op:    "replace",
			Path:  fmt.Sprintf("/photo/%s/display_order", slot.ID),
			Value: displayOrder,
		})
	} else {
		ops = append(ops, PatchOp{
			Op:    "replace",
			Path:  "/cover_photo",
			Value: slot.ID,
		})
	}

	return c.ListingPatch(ctx, listingID, ops)
}

// fetchPhotoSource はソースURLから画像バイト列を取得する。
// 呼び出し元から渡されたURLにアクセスするため、SSRF対策済みのクライアントを使用する。
func (c *Client) fetchPhotoSource(ctx context.Context, photoURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gfapi: invalid photo source URL: %w", err)
	}

	resp, err := c.sourceClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: photoURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Code: resp.StatusCode, Message: "failed to fetch photo source"}
	}

	image, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return nil, fmt.Errorf("gfapi: failed to read photo source: %w", err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("gfapi: photo source is empty: %s", photoURL)
	}
	return image, nil
}
