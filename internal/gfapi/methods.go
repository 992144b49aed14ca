package gfapi

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// ProfileGet はアカウントのプロフィールを取得する。idは "me" も指定できる。
func (c *Client) ProfileGet(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		id = "me"
	}
	return c.Get(ctx, "account/"+id+"/profile", nil)
}

// WalletOptions はウォレット取得のオプション。
type WalletOptions struct {
	BalanceOnly bool   // 残高のみ取得（履歴なし）
	FLP         *bool  // 通貨ごとの残高マップを返す。nilの場合は有効。
	Pending     bool   // 保留中のトランザクションを含める
	Held        bool   // ホールド中のトランザクションを含める
	YearMonth   string // 対象年月（yyyy-mm）
}

// WalletGet はウォレット残高と取引履歴を取得する。
// YearMonth未指定の場合はBalanceOnlyがデフォルトで有効になる。
// FLPは未指定（nil）の場合のみ有効がデフォルトになり、明示的なfalseは尊重される。
// フラグ系パラメータは値なし（?balance_only&flp）で送信する必要があるため、
// クエリ文字列を手組みする。
func (c *Client) WalletGet(ctx context.Context, owner string, opts WalletOptions) (json.RawMessage, error) {
	if owner == "" {
		owner = "me"
	}

	if opts.YearMonth == "" {
		opts.BalanceOnly = true
	}
	flp := true
	if opts.FLP != nil {
		flp = *opts.FLP
	}

	var parts []string
	if opts.BalanceOnly {
		parts = append(parts, "balance_only")
	}
	if flp {
		parts = append(parts, "flp")
	}
	if opts.Pending {
		parts = append(parts, "pending")
	}
	if opts.Held {
		parts = append(parts, "held")
	}
	if opts.YearMonth != "" {
		parts = append(parts, "year_month="+url.QueryEscape(opts.YearMonth))
	}

	endpoint := "account/" + owner + "/wallet_history"
	if len(parts) > 0 {
		endpoint += "?" + strings.Join(parts, "&")
	}
	return c.Get(ctx, endpoint, nil)
}

// ListingOf は指定ユーザーの出品一覧の最初のページを取得する。
func (c *Client) ListingOf(ctx context.Context, owner string) (*Page, error) {
	if owner == "" {
		owner = "me"
	}
	query := url.Values{}
	query.Set("owner", owner)
	query.Set("v2", "true")
	return c.GetPage(ctx, "listing", query, FirstPage())
}

// ListingSearch は出品を検索する。v2フォーマットを強制する。
func (c *Client) ListingSearch(ctx context.Context, query url.Values, cursor Cursor) (*Page, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("v2", "true")
	return c.GetPage(ctx, "listing", query, cursor)
}

// ListingSearchAll は出品検索の全ページを取得する。
func (c *Client) ListingSearchAll(ctx context.Context, query url.Values) ([]json.RawMessage, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("v2", "true")
	return c.ListAll(ctx, "listing", query)
}

// ListingGet は出品を1件取得する。
func (c *Client) ListingGet(ctx context.Context, id string) (json.RawMessage, error) {
	return c.Get(ctx, "listing/"+id, nil)
}

// ListingPost は新しい出品を作成する。
func (c *Client) ListingPost(ctx context.Context, listing any) (json.RawMessage, error) {
	return c.Post(ctx, "listing", listing)
}

// ListingPatch は出品をJSON Patchで更新する。
func (c *Client) ListingPatch(ctx context.Context, id string, ops []PatchOp) (json.RawMessage, error) {
	return c.Patch(ctx, "listing/"+id, ops)
}

// ListingStatus は出品のステータスを変更する（draft / ready / onsale / sold）。
func (c *Client) ListingStatus(ctx context.Context, id, status string) (json.RawMessage, error) {
	return c.ListingPatch(ctx, id, []PatchOp{{
		Op:    "replace",
		Path:  "/status",
		Value: status,
	}})
}

// ListingDelete は出品を削除する。
// 上流の制約により、削除前に一度draftステータスに戻す必要がある。
func (c *Client) ListingDelete(ctx context.Context, id string) (json.RawMessage, error) {
	if _, err := c.ListingStatus(ctx, id, "draft"); err != nil {
		return nil, err
	}
	return c.Delete(ctx, "listing/"+id)
}

// DigitalGoodsGet はデジタル出品のコンテンツを取得する。
func (c *Client) DigitalGoodsGet(ctx context.Context, listingID string) (json.RawMessage, error) {
	return c.Get(ctx, "listing/"+listingID+"/digital_goods", nil)
}

// DigitalGoodsPut はデジタル出品のコンテンツ（コード等）を設定する。
func (c *Client) DigitalGoodsPut(ctx context.Context, listingID, code string) (json.RawMessage, error) {
	return c.Put(ctx, "listing/"+listingID+"/digital_goods", map[string]string{"code": code})
}

// ExchangeSearch は取引（購入・販売）を検索する。
func (c *Client) ExchangeSearch(ctx context.Context, query url.Values, cursor Cursor) (*Page, error) {
	return c.GetPage(ctx, "exchange", query, cursor)
}
