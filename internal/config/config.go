package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// 環境名の定義。
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// リクエスト処理中に環境変数を直接参照してはならない。
type Config struct {
	// Environment
	AppEnv string // development / test / production

	// Server
	ServerPort string
	BaseURL    string

	// Session
	SessionSecret string
	SessionMaxAge int // セッションCookieの有効期間（秒）

	// Credential encryption
	CredentialsEncryptionKey string // hexまたはbase64エンコードされた32バイト鍵

	// Store
	RedisURL string // 未設定の場合はファイルストアにフォールバック
	DataDir  string // ファイルストアの保存先ディレクトリ

	// GameFlip API
	GameflipAPIKey    string
	GameflipAPISecret string
	GameflipEnv       string // production / test / development

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 本番環境で必須の環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.AppEnv = getEnvString("APP_ENV", EnvDevelopment)

	// 本番環境でのみ必須のフィールド
	var missing []string

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		if cfg.IsProduction() {
			missing = append(missing, "SESSION_SECRET")
		} else {
			// 開発環境向けの固定シークレット。署名済みCookieを再起動後も検証できるよう一定にする。
			cfg.SessionSecret = "dev-session-secret"
		}
	}

	cfg.CredentialsEncryptionKey = os.Getenv("CREDENTIALS_ENCRYPTION_KEY")
	if cfg.CredentialsEncryptionKey == "" && cfg.IsProduction() {
		missing = append(missing, "CREDENTIALS_ENCRYPTION_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 60*60*24*7)
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.DataDir = getEnvString("DATA_DIR", "data")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// GameFlip APIのプロセス既定クレデンシャル。
	// 旧名のGFAPI_KEY / GFAPI_SECRETもフォールバックとして受け付ける。
	cfg.GameflipAPIKey = getEnvString("GAMEFLIP_API_KEY", os.Getenv("GFAPI_KEY"))
	cfg.GameflipAPISecret = getEnvString("GAMEFLIP_API_SECRET", os.Getenv("GFAPI_SECRET"))
	cfg.GameflipEnv = resolveGameflipEnv(cfg.AppEnv)

	return cfg, nil
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// resolveGameflipEnv はGameFlip API側の環境名を決定する。
// GAMEFLIP_ENVが明示されていればそれを使用する。
// APP_ENV=testの場合のみtest環境、それ以外は常にproduction環境とする
// （APP_ENV=developmentはこのサーバー自身の環境であり、API接続先とは独立）。
func resolveGameflipEnv(appEnv string) string {
	if v := os.Getenv("GAMEFLIP_ENV"); v != "" {
		return v
	}
	if appEnv == EnvTest {
		return EnvTest
	}
	return EnvProduction
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
