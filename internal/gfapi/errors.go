package gfapi

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// UpstreamError はGameFlip APIから返された正規化済みエラーを表す。
// Codeはレスポンスのerror.code、なければHTTPステータス、いずれもなければ500。
// 呼び出し側が分岐してよいエラー形状はこれとTransportErrorのみ。
type UpstreamError struct {
	Code    int
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gfapi: API error %d: %s", e.Code, e.Message)
}

// TransportError はサーバーから応答が得られなかったことを表す。
// タイムアウト・接続失敗などHTTPレスポンス以前の失敗がこれに分類される。
type TransportError struct {
	URL string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	return fmt.Sprintf("gfapi: no response from server: %s: %v", e.URL, e.Err)
}

// Unwrap は元の転送エラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// envelope はGameFlip APIのレスポンスラッパー。
// すべてのレスポンスは {status, data} または {status, error: {code, message}} の形を取る。
type envelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Error    *envelopeError  `json:"error"`
	NextPage string          `json:"next_page"`
}

// envelopeError はレスポンス内のエラーオブジェクト。
// codeは数値・文字列のどちらでも返りうるため、RawMessageで受けて後から解釈する。
type envelopeError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// normalizeError はエンベロープとHTTPステータスから正規化済みエラーを構築する。
// エラーコードは error.code → HTTPステータス → 500 の順でフォールバックする。
func normalizeError(env *envelope, httpStatus int) *UpstreamError {
	code := 0
	message := ""
	if env != nil && env.Error != nil {
		code = coerceCode(env.Error.Code)
		message = env.Error.Message
	}
	if code == 0 {
		code = httpStatus
	}
	if code == 0 {
		code = 500
	}
	if message == "" {
		message = "Unknown error"
	}
	return &UpstreamError{Code: code, Message: message}
}

// coerceCode はJSON上のエラーコード（数値または文字列）をintに変換する。
// 解釈できない場合は0を返す。
func coerceCode(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}
