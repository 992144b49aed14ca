package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// CookieName はセッションIDを保持する署名付きCookieの名前。
const CookieName = "gfapp.sid"

// keyPrefix はストア上のセッションレコードのキープレフィックス。
const keyPrefix = "gf:sessions:"

// Store はセッションの永続化に必要なストア操作のインターフェース。
// kvstore.Storeの部分集合として定義する。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Config はセッションマネージャの設定。
type Config struct {
	Secret       string // Cookie署名用のHMACシークレット
	MaxAge       int    // Cookieの有効期間（秒）
	CookieSecure bool
	CookieDomain string
}

// Manager はセッションのロード・保存・破棄と署名付きCookieの発行・検証を行う。
type Manager struct {
	store  Store
	config Config
}

// NewManager はManagerを生成する。
func NewManager(store Store, config Config) *Manager {
	return &Manager{
		store:  store,
		config: config,
	}
}

// Load はリクエストの署名付きCookieからセッションを復元する。
// 有効なCookieがない場合は新しいセッションIDを発行し、
// 書き戻し対象（dirty）の新規セッションを返す。isNewは新規発行かどうかを示す。
// 改ざんされたCookieはCookieなしと同一に扱い、その区別は呼び出し側に伝えない。
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, bool, error) {
	sessionID := ""
	if cookie, err := r.Cookie(CookieName); err == nil {
		sessionID = m.verify(cookie.Value)
	}

	if sessionID == "" {
		id, err := generateSessionID()
		if err != nil {
			return nil, false, fmt.Errorf("session: failed to generate session ID: %w", err)
		}
		return &Session{id: id, values: make(map[string]any), dirty: true}, true, nil
	}

	raw, err := m.store.Get(ctx, keyPrefix+sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("session: failed to load session: %w", err)
	}

	values := make(map[string]any)
	if raw != nil {
		if err := json.Unmarshal(raw, &values); err != nil {
			// レコード破損時は空セッションとして扱う
			values = make(map[string]any)
		}
	}

	return &Session{id: sessionID, values: values}, false, nil
}

// Save はセッション属性をストアに書き込み、dirtyフラグを落とす。
// 新規作成と更新は同一の書き込みパスを共有する。
func (m *Manager) Save(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("session: failed to encode session: %w", err)
	}
	if err := m.store.Set(ctx, keyPrefix+s.id, raw); err != nil {
		return fmt.Errorf("session: failed to save session: %w", err)
	}
	s.dirty = false
	return nil
}

// Destroy はセッションレコードを削除し、Cookieを失効させる。
// バックグラウンドでの期限切れ掃除は行わない設計のため、破棄は明示的にのみ起きる。
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Delete(ctx, keyPrefix+s.id); err != nil {
		return fmt.Errorf("session: failed to delete session: %w", err)
	}
	s.dirty = false

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// IssueCookie は署名付きセッションCookieをレスポンスに設定する。
// 有効期間は発行時のみ更新される（アクセスごとの延長はしない）。
func (m *Manager) IssueCookie(w http.ResponseWriter, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    m.sign(s.id),
		Path:     "/",
		Domain:   m.config.CookieDomain,
		MaxAge:   m.config.MaxAge,
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sign はペイロードに署名を付与した `payload.signature` 形式の値を返す。
// 署名はHMAC-SHA256のhex表現。
func (m *Manager) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(m.config.Secret))
	mac.Write([]byte(payload))
	return payload + "." + hex.EncodeToString(mac.Sum(nil))
}

// verify は署名付きCookie値を検証し、ペイロードを返す。
// 形式不正・署名不一致の場合は空文字列を返す。
// 署名比較は定数時間で行う。
func (m *Manager) verify(value string) string {
	payload, signature, ok := strings.Cut(value, ".")
	if !ok || payload == "" || signature == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(m.config.Secret))
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ""
	}
	return payload
}

// generateSessionID は暗号的に安全な128ビットのセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
