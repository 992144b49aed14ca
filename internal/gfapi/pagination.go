package gfapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sort"
	"strings"
)

// maxPages はカーソル追跡の上限ページ数。
// 上流がカーソルを返し続ける・循環させるなどの異常時に無限ループを防ぐ。
// 上限到達時はエラーにせず、それまでに蓄積した結果を返す。
const maxPages = 100

// Cursor はページネーションの継続トークンを表す。
// 値は上流が発行する不透明な文字列で、発行元のエンドポイントにのみ返送される。
// 終端カーソル（terminal）はそれ以上ページがないことを示す。
type Cursor struct {
	value    string
	terminal bool
}

// FirstPage は最初のページを指すカーソルを返す。
func FirstPage() Cursor {
	return Cursor{}
}

// Terminal は終端カーソルかどうかを返す。
func (c Cursor) Terminal() bool {
	return c.terminal
}

// String はカーソルの不透明な値を返す。最初のページでは空文字列。
func (c Cursor) String() string {
	return c.value
}

// cursorOf はレスポンスのnext_page値からカーソルを構築する。
// 空の場合は終端カーソルになる。
func cursorOf(nextPage string) Cursor {
	if nextPage == "" {
		return Cursor{terminal: true}
	}
	return Cursor{value: nextPage}
}

// Page はリスト系エンドポイントの1ページ分の結果。
type Page struct {
	Items []json.RawMessage // ページ内の結果配列
	Next  Cursor            // 次ページのカーソル。なければ終端。
	Raw   json.RawMessage   // エンベロープ解除後のデータ全体
}

// GetPage はリスト系エンドポイントの1ページを取得する。
// 終端カーソルを渡された場合はネットワーク呼び出しをせず空のページを返す。
// next_pageはエンベロープのトップレベルまたはdata内のどちらからも読み取る。
// カーソル値は完全なURLの場合とパスの場合の両方がある。
func (c *Client) GetPage(ctx context.Context, uri string, query url.Values, cursor Cursor) (*Page, error) {
	if cursor.Terminal() {
		return &Page{Next: Cursor{terminal: true}}, nil
	}

	var fullURL string
	if cursor.value != "" {
		// カーソル使用時は元のクエリパラメータを引き継がない（カーソルに内包されている）
		if strings.HasPrefix(cursor.value, "http") {
			fullURL = cursor.value
		} else {
			fullURL = c.baseURL + "/" + strings.TrimPrefix(cursor.value, "/")
		}
	} else {
		fullURL = c.buildURL(uri, query)
	}

	env, err := c.do(ctx, "GET", fullURL, nil, "application/json")
	if err != nil {
		return nil, err
	}

	c.metrics.RecordPageFetched()

	nextPage := env.NextPage
	items, nestedNext := extractItems(env.Data)
	if nextPage == "" {
		nextPage = nestedNext
	}

	return &Page{
		Items: items,
		Next:  cursorOf(nextPage),
		Raw:   env.Data,
	}, nil
}

// ListAll はカーソルを終端まで追跡して全ページの結果を連結して返す。
// maxPagesに到達した場合は警告ログを出し、それまでの結果を部分結果として返す。
// コンテキストのキャンセルはループを中断する（部分結果はエラーとともに返る）。
func (c *Client) ListAll(ctx context.Context, uri string, query url.Values) ([]json.RawMessage, error) {
	var items []json.RawMessage

	cursor := FirstPage()
	for page := 0; page < maxPages; page++ {
		p, err := c.GetPage(ctx, uri, query, cursor)
		if err != nil {
			return items, err
		}

		items = append(items, p.Items...)

		if p.Next.Terminal() {
			return items, nil
		}
		cursor = p.Next
	}

	c.metrics.RecordPaginationCeiling()
	c.logger.Warn("pagination ceiling reached, returning partial results",
		slog.String("uri", uri),
		slog.Int("pages", maxPages),
		slog.Int("items", len(items)),
	)
	return items, nil
}

// extractItems はエンベロープ解除後のデータから結果配列とネストされたnext_pageを取り出す。
// データがトップレベル配列の場合はそのまま、オブジェクトの場合は
// 配列値を持つ最初のフィールド（キー名昇順）を結果とみなす。
func extractItems(data json.RawMessage) ([]json.RawMessage, string) {
	if len(data) == 0 {
		return nil, ""
	}

	trimmed := strings.TrimLeft(string(data), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, ""
		}
		return items, ""
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, ""
	}

	nextPage := ""
	if raw, ok := obj["next_page"]; ok {
		_ = json.Unmarshal(raw, &nextPage)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := obj[k]
		if strings.HasPrefix(strings.TrimLeft(string(v), " \t\r\n"), "[") {
			var items []json.RawMessage
			if err := json.Unmarshal(v, &items); err == nil {
				return items, nextPage
			}
		}
	}

	return nil, nextPage
}
