package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore はRedisをバックエンドとするストア。
// キー単位の操作はRedisサーバー側でアトミックに実行されるため、
// 複数リクエストの同時書き込みでもファイルストアのような更新消失は起きない。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // 0で無期限。Setのたびに有効期限が延長される。
}

// NewRedisStore は接続URL（redis:// または rediss://）からRedisStoreを生成する。
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("kvstore: invalid redis URL: %w", err)
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}, nil
}

// Get はキーに対応する値を返す。キーが存在しない場合は (nil, nil) を返す。
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("kvstore: redis GET failed: %w", err)
	}
	return v, nil
}

// Set はキーに値を保存する。TTLが設定されている場合は有効期限付きで保存する。
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("kvstore: redis SET failed: %w", err)
	}
	return nil
}

// Delete はキーを削除する。キーが存在しない場合も成功として扱う。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kvstore: redis DEL failed: %w", err)
	}
	return nil
}

// Close はRedis接続を閉じる。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
