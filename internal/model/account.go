package model

import "time"

// Account は保存されたGameFlipクレデンシャルプロファイルを表す。
// APISecretはsecret.Cipherで暗号化済みのblob（base64文字列）であり、
// ストア外では不透明な値として扱う。平文シークレットは永続化しない。
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"apiKey"`
	APISecret string    `json:"apiSecret"` // 暗号化済み
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ScrubbedAccount は外部に返却してよいアカウント表現。
// 暗号化済みシークレットを含むいかなるシークレット情報も持たない。
type ScrubbedAccount struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"apiKey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
