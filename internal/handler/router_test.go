package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/time/rate"

	"github.com/hitoshi/gfbay/internal/account"
	"github.com/hitoshi/gfbay/internal/config"
	"github.com/hitoshi/gfbay/internal/credential"
	"github.com/hitoshi/gfbay/internal/gfapi"
	"github.com/hitoshi/gfbay/internal/secret"
	"github.com/hitoshi/gfbay/internal/security"
	"github.com/hitoshi/gfbay/internal/session"
)

// memStore はセッション・アカウント共用のインメモリストア。
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (s *memStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// newTestServer は実物のセッション・アカウント・クレデンシャル解決を
// 組み立てたAPIサーバーとCookie保持クライアントを返す。
func newTestServer(t *testing.T, upstreamURL string) (*httptest.Server, *http.Client) {
	t.Helper()
	return newTestServerWithLogger(t, upstreamURL, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func newTestServerWithLogger(t *testing.T, upstreamURL string, logger *slog.Logger) (*httptest.Server, *http.Client) {
	t.Helper()

	store := newMemStore()

	cipher, err := secret.New([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("secret.New error: %v", err)
	}
	accounts := account.NewAccountStore(store, cipher)

	sessions := session.NewManager(store, session.Config{
		Secret: "test-session-secret",
		MaxAge: 3600,
	})

	cfg := &config.Config{AppEnv: config.EnvDevelopment}
	resolver := credential.NewResolver(accounts, cfg)

	router := NewRouter(&RouterDeps{
		SessionManager:     sessions,
		CredentialResolver: resolver,
		ClientFactory: func(apiKey, apiSecret string) (*gfapi.Client, error) {
			return gfapi.NewClient(apiKey, apiSecret, gfapi.Config{
				BaseURL: upstreamURL + "/api/v1",
				Limiter: rate.NewLimiter(rate.Inf, 0),
			})
		},
		CORSAllowedOrigin: "http://localhost:3000",
		Logger:            logger,
		AccountService:    accounts,
		PhotoURLValidator: security.NewSSRFGuard(),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar error: %v", err)
	}
	return server, &http.Client{Jar: jar}
}

func doJSON(t *testing.T, client *http.Client, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s error: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// --- テスト ---

func TestRouter_Health(t *testing.T) {
	server, client := newTestServer(t, "http://example.invalid")

	resp, body := doJSON(t, client, http.MethodGet, server.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestRouter_AccountsRequireLogin(t *testing.T) {
	server, client := newTestServer(t, "http://example.invalid")

	resp, body := doJSON(t, client, http.MethodGet, server.URL+"/api/accounts", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if body["code"] != "UNAUTHORIZED" {
		t.Errorf("error code = %v, want UNAUTHORIZED", body["code"])
	}
}

func TestRouter_ListingsWithoutCredentials_Returns401(t *testing.T) {
	server, client := newTestServer(t, "http://example.invalid")

	doJSON(t, client, http.MethodPost, server.URL+"/auth/login", "")

	resp, body := doJSON(t, client, http.MethodGet, server.URL+"/api/listings", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if body["code"] != "AUTH_MISSING" {
		t.Errorf("error code = %v, want AUTH_MISSING", body["code"])
	}
}

func TestRouter_CredentialsWithoutAccount(t *testing.T) {
	server, client := newTestServer(t, "http://example.invalid")

	doJSON(t, client, http.MethodPost, server.URL+"/auth/login", "")

	resp, body := doJSON(t, client, http.MethodGet, server.URL+"/api/credentials", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if body["configured"] != false {
		t.Errorf("configured = %v, want false", body["configured"])
	}
}

// ログインからアカウント登録、アクティブ化、上流呼び出しまでの一連のフロー。
func TestRouter_FullFlow(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "GFAPI key-1:") {
			t.Errorf("Authorization = %q, want GFAPI key-1:<totp>", auth)
		}
		writeEnvelope(w, map[string]any{
			"listings": []map[string]any{{"id": "l1"}},
		})
	}))
	defer upstream.Close()

	server, client := newTestServer(t, upstream.URL)

	// 1. ログイン
	resp, body := doJSON(t, client, http.MethodPost, server.URL+"/auth/login", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	userID, _ := body["userId"].(string)
	if userID == "" {
		t.Fatal("login should mint a userId")
	}

	// 2. セッションがCookie経由で維持される
	resp, body = doJSON(t, client, http.MethodGet, server.URL+"/auth/me", "")
	if body["authenticated"] != true || body["userId"] != userID {
		t.Fatalf("me = %v, want authenticated as %s", body, userID)
	}

	// 3. アカウント登録
	resp, body = doJSON(t, client, http.MethodPost, server.URL+"/api/accounts",
		`{"name":"Main","apiKey":"key-1","apiSecret":"`+testAPISecret+`"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create account status = %d", resp.StatusCode)
	}
	accountID, _ := body["id"].(string)
	if accountID == "" {
		t.Fatal("created account should have an id")
	}

	// 4. アクティブ化
	resp, _ = doJSON(t, client, http.MethodPost, server.URL+"/api/accounts/"+accountID+"/activate", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d", resp.StatusCode)
	}

	// 5. クレデンシャルがセッションアカウントから解決される
	resp, body = doJSON(t, client, http.MethodGet, server.URL+"/api/credentials", "")
	if body["configured"] != true {
		t.Fatalf("credentials = %v, want configured", body)
	}
	identity, _ := body["identity"].(map[string]any)
	if identity["source"] != "session" || identity["accountId"] != accountID {
		t.Errorf("identity = %v", identity)
	}

	// 6. 復号済みクレデンシャルで署名された上流呼び出し
	resp, body = doJSON(t, client, http.MethodGet, server.URL+"/api/listings", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("listings status = %d, body = %v", resp.StatusCode, body)
	}
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

// アクティブアカウントの削除後はクレデンシャルが未解決に戻る。
func TestRouter_DeleteActiveAccount_DropsCredentials(t *testing.T) {
	server, client := newTestServer(t, "http://example.invalid")

	doJSON(t, client, http.MethodPost, server.URL+"/auth/login", "")
	_, body := doJSON(t, client, http.MethodPost, server.URL+"/api/accounts",
		`{"name":"Main","apiKey":"key-1","apiSecret":"`+testAPISecret+`"}`)
	accountID, _ := body["id"].(string)

	doJSON(t, client, http.MethodPost, server.URL+"/api/accounts/"+accountID+"/activate", "")
	resp, _ := doJSON(t, client, http.MethodDelete, server.URL+"/api/accounts/"+accountID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	_, body = doJSON(t, client, http.MethodGet, server.URL+"/api/credentials", "")
	if body["configured"] != false {
		t.Errorf("credentials = %v, want configured:false after deleting the active account", body)
	}
}

// リクエストログには認証済みセッションのuser_idが載る。
func TestRouter_RequestLog_IncludesUserID(t *testing.T) {
	logBuf := &syncBuffer{}
	server, client := newTestServerWithLogger(t, "http://example.invalid", slog.New(slog.NewJSONHandler(logBuf, nil)))

	_, body := doJSON(t, client, http.MethodPost, server.URL+"/auth/login", "")
	userID, _ := body["userId"].(string)
	if userID == "" {
		t.Fatal("login should mint a userId")
	}

	logBuf.Reset()
	doJSON(t, client, http.MethodGet, server.URL+"/auth/me", "")

	var entry map[string]any
	if err := json.Unmarshal(logBuf.Bytes(), &entry); err != nil {
		t.Fatalf("Unmarshal error: %v (log = %s)", err, logBuf.String())
	}
	if entry["msg"] != "http_request" || entry["path"] != "/auth/me" {
		t.Fatalf("log entry = %v", entry)
	}
	if entry["user_id"] != userID {
		t.Errorf("user_id = %v, want %s", entry["user_id"], userID)
	}
}

// syncBuffer はハンドラーゴルーチンからの書き込みを許すロック付きバッファ。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func (b *syncBuffer) String() string {
	return string(b.Bytes())
}

// ログアウト後はセッションが破棄され、認証が要求される。
func TestRouter_Logout(t *testing.T) {
	server, client := newTestServer(t, "http://example.invalid")

	doJSON(t, client, http.MethodPost, server.URL+"/auth/login", "")

	resp, body := doJSON(t, client, http.MethodPost, server.URL+"/auth/logout", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	if body["loggedOut"] != true {
		t.Errorf("body = %v, want loggedOut:true", body)
	}

	_, body = doJSON(t, client, http.MethodGet, server.URL+"/auth/me", "")
	if body["authenticated"] != false {
		t.Errorf("me after logout = %v, want authenticated:false", body)
	}
}
