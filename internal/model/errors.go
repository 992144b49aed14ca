// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, credential, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeAuthMissing       = "AUTH_MISSING"
	ErrCodeDecryptionFailed  = "DECRYPTION_FAILED"
	ErrCodeUpstreamError     = "UPSTREAM_ERROR"
	ErrCodeNoResponse        = "NO_RESPONSE"
	ErrCodeAccountNotFound   = "ACCOUNT_NOT_FOUND"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
)

// NewUnauthorizedError は未ログインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAuthMissingError はGameFlip APIクレデンシャル未解決エラーを生成する。
// セッション・ヘッダー・環境変数のいずれからもクレデンシャルを解決できなかった場合に使用する。
func NewAuthMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthMissing,
		Message:  "Missing GameFlip credentials",
		Category: "credential",
		Action:   "アカウントを選択するか、APIキーとシークレットを設定してください。",
	}
}

// NewDecryptionFailedError はシークレット復号失敗エラーを生成する。
// 保存されたアカウントレコードが破損しているか、暗号鍵が変更された場合に発生する。
func NewDecryptionFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeDecryptionFailed,
		Message:  "保存されたAPIシークレットを復号できませんでした。",
		Category: "credential",
		Action:   "アカウントを削除して登録し直してください。",
	}
}

// NewUpstreamError はGameFlip APIの正規化済みエラーを生成する。
func NewUpstreamError(code int, message string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamError,
		Message:  fmt.Sprintf("GameFlip API error %d: %s", code, message),
		Category: "upstream",
		Action:   "リクエスト内容を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewNoResponseError はGameFlip APIから応答が得られなかった場合のエラーを生成する。
func NewNoResponseError() *APIError {
	return &APIError{
		Code:     ErrCodeNoResponse,
		Message:  "GameFlip APIから応答がありませんでした。",
		Category: "upstream",
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewAccountNotFoundError はアカウントが見つからない場合のエラーを生成する。
func NewAccountNotFoundError(accountID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("指定されたアカウントが見つかりません: %s", accountID),
		Category: "validation",
		Action:   "アカウントIDを確認してください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}
