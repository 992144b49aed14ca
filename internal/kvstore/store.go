// Package kvstore はセッション・アカウントの永続化に使うキーバリューストアを提供する。
// 耐久性のあるローカルファイルストアとRedisストアの2実装があり、
// 利用側はStoreインターフェースのみに依存する。
package kvstore

import (
	"context"
	"path/filepath"
	"time"

	"github.com/hitoshi/gfbay/internal/config"
)

// Store はキーバリューストアのインターフェース。
// Getはキーが存在しない場合に (nil, nil) を返す。存在しないことはエラーではない。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// NewFromConfig は設定に応じたStoreを生成する。
// REDIS_URLが設定されている場合はRedisストア、未設定の場合は
// DATA_DIR配下のファイルストアにフォールバックする。
// ttlはRedisストアのキー有効期限（0で無期限）。ファイルストアでは無視される。
func NewFromConfig(cfg *config.Config, filename string, ttl time.Duration) (Store, error) {
	if cfg.RedisURL != "" {
		return NewRedisStore(cfg.RedisURL, ttl)
	}
	return NewFileStore(filepath.Join(cfg.DataDir, filename)), nil
}
