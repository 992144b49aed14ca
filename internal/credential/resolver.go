// Package credential はリクエストごとのGameFlip APIクレデンシャル解決を提供する。
// セッションで選択されたアカウント、開発用ヘッダー、プロセス設定の
// 厳密な優先順位でクレデンシャルバンドルを決定する。
package credential

import (
	"context"
	"fmt"

	"github.com/hitoshi/gfbay/internal/account"
	"github.com/hitoshi/gfbay/internal/config"
)

// 開発用ヘッダーの名前。本番環境では無視される。
const (
	HeaderAPIKey    = "X-GF-API-Key"
	HeaderAPISecret = "X-GF-API-Secret"
)

// Source はクレデンシャルの出所を表す。
type Source string

const (
	// SourceSession はセッションで選択されたアカウント由来を示す。
	SourceSession Source = "session"
	// SourceHeader は開発用ヘッダー由来を示す。
	SourceHeader Source = "header"
	// SourceEnv はプロセス設定（環境変数）由来を示す。
	SourceEnv Source = "env"
)

// Bundle は解決済みのクレデンシャルバンドル。
// リクエストごとに新規構築され、永続化されない。
// AccountIDとNameはSourceSessionの場合のみ設定される。
type Bundle struct {
	Source    Source
	AccountID string
	Name      string
	APIKey    string
	APISecret string
}

// Identity はログ・テレメトリ向けの非シークレットなクレデンシャル記述子。
type Identity struct {
	Source    Source `json:"source"`
	AccountID string `json:"accountId,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Identity はバンドルからシークレットを含まない記述子を生成する。
func (b *Bundle) Identity() Identity {
	return Identity{
		Source:    b.Source,
		AccountID: b.AccountID,
		Name:      b.Name,
	}
}

// SessionReader は解決時にセッションから読み取る値のインターフェース。
// session.Sessionの部分集合として定義する。
type SessionReader interface {
	UserID() string
	ActiveAccountID() string
}

// Resolver はリクエストごとのクレデンシャル解決を行う。
// 解決は読み取りのみで、セッション・アカウント状態を変更しない。
type Resolver struct {
	accounts *account.AccountStore
	config   *config.Config
}

// NewResolver はResolverを生成する。
func NewResolver(accounts *account.AccountStore, cfg *config.Config) *Resolver {
	return &Resolver{
		accounts: accounts,
		config:   cfg,
	}
}

// Resolve はクレデンシャルバンドルを優先順位に従って決定する。
// 最初に一致した枝が勝つ:
//  1. セッション選択アカウント（ユーザーIDとアクティブアカウントIDの両方がある場合）
//  2. 開発用ヘッダー（非本番環境でキー・シークレット両方がある場合）
//  3. プロセス設定のデフォルトクレデンシャル
//
// いずれにも該当しない場合は (nil, nil) を返し、ゲート処理は呼び出し側が行う。
// セッション選択アカウントの復号失敗はエラーとして伝播する（黙って無視しない）。
func (r *Resolver) Resolve(ctx context.Context, sess SessionReader, headerKey, headerSecret string) (*Bundle, error) {
	// 1. セッションで選択されたアカウント
	if sess != nil && sess.UserID() != "" && sess.ActiveAccountID() != "" {
		acct, err := r.accounts.Find(ctx, sess.UserID(), sess.ActiveAccountID())
		if err != nil {
			return nil, fmt.Errorf("credential: failed to look up active account: %w", err)
		}
		if acct != nil {
			secret, err := r.accounts.DecryptSecret(acct)
			if err != nil {
				return nil, fmt.Errorf("credential: failed to decrypt account secret: %w", err)
			}
			return &Bundle{
				Source:    SourceSession,
				AccountID: acct.ID,
				Name:      acct.Name,
				APIKey:    acct.APIKey,
				APISecret: secret,
			}, nil
		}
	}

	// 2. 開発用ヘッダー（本番環境では受け付けない）
	if !r.config.IsProduction() && headerKey != "" && headerSecret != "" {
		return &Bundle{
			Source:    SourceHeader,
			APIKey:    headerKey,
			APISecret: headerSecret,
		}, nil
	}

	// 3. プロセス設定
	if r.config.GameflipAPIKey != "" && r.config.GameflipAPISecret != "" {
		return &Bundle{
			Source:    SourceEnv,
			APIKey:    r.config.GameflipAPIKey,
			APISecret: r.config.GameflipAPISecret,
		}, nil
	}

	// 4. クレデンシャルなし
	return nil, nil
}
