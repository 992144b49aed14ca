package gfapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// newTestClient はテストサーバーに向けたレート制限なしのクライアントを生成する。
func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient("test-key", rfcSecret, Config{
		BaseURL: serverURL,
		Limiter: rate.NewLimiter(rate.Inf, 0),
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return client
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient("", "secret", Config{}); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := NewClient("key", "", Config{}); err == nil {
		t.Error("expected error for empty API secret")
	}
}

func TestClient_Get_SuccessEnvelope_ReturnsData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"SUCCESS","data":{"owner":"me","display_name":"tester"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	data, err := client.Get(context.Background(), "account/me/profile", nil)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}

	var profile struct {
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(data, &profile); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if profile.Owner != "me" {
		t.Errorf("owner = %q, want %q", profile.Owner, "me")
	}
}

func TestClient_SignsEveryRequest(t *testing.T) {
	authPattern := regexp.MustCompile(`^GFAPI test-key:\d{6}$`)

	var captured []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = append(captured, r.Header.Get("Authorization"))
		w.Write([]byte(`{"status":"SUCCESS","data":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	if _, err := client.Get(ctx, "listing/abc", nil); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if _, err := client.Post(ctx, "listing", map[string]string{"kind": "item"}); err != nil {
		t.Fatalf("Post error: %v", err)
	}

	for i, auth := range captured {
		if !authPattern.MatchString(auth) {
			t.Errorf("request %d Authorization = %q, want GFAPI <key>:<6 digit TOTP>", i, auth)
		}
	}
}

func TestClient_TOTP_RecomputedPerCall(t *testing.T) {
	var captured []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = append(captured, r.Header.Get("Authorization"))
		w.Write([]byte(`{"status":"SUCCESS","data":{}}`))
	}))
	defer server.Close()

	// 呼び出しごとにウィンドウをまたぐ時計を注入する
	current := time.Unix(0, 0)
	client, err := NewClient("test-key", rfcSecret, Config{
		BaseURL: server.URL,
		Limiter: rate.NewLimiter(rate.Inf, 0),
		Now: func() time.Time {
			current = current.Add(30 * time.Second)
			return current
		},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.Get(ctx, "listing", nil); err != nil {
			t.Fatalf("Get error: %v", err)
		}
	}

	if len(captured) != 2 {
		t.Fatalf("requests = %d, want 2", len(captured))
	}
	if captured[0] == captured[1] {
		t.Error("token should change across TOTP windows")
	}
}

func TestClient_FailureEnvelope_NormalizedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"FAILURE","error":{"code":"404","message":"listing not found"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Get(context.Background(), "listing/missing", nil)
	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if upstreamErr.Code != 404 {
		t.Errorf("Code = %d, want 404", upstreamErr.Code)
	}
	if upstreamErr.Message != "listing not found" {
		t.Errorf("Message = %q, want %q", upstreamErr.Message, "listing not found")
	}
}

func TestClient_NonEnvelopeResponse_UsesHTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Get(context.Background(), "listing", nil)
	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if upstreamErr.Code != http.StatusBadGateway {
		t.Errorf("Code = %d, want %d", upstreamErr.Code, http.StatusBadGateway)
	}
}

func TestClient_NoResponse_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close() // 接続先を落とす

	client := newTestClient(t, serverURL)

	_, err := client.Get(context.Background(), "listing", nil)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
}

func TestClient_Patch_SendsJSONPatchContentType(t *testing.T) {
	var contentType string
	var got []PatchOp
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"status":"SUCCESS","data":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	ops := []PatchOp{{Op: "replace", Path: "/status", Value: "onsale"}}
	if _, err := client.Patch(context.Background(), "listing/abc", ops); err != nil {
		t.Fatalf("Patch error: %v", err)
	}

	if contentType != "application/json-patch+json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json-patch+json")
	}
	if len(got) != 1 || got[0].Op != "replace" || got[0].Path != "/status" {
		t.Errorf("patch ops = %+v", got)
	}
}

func TestClient_RateLimiter_BurstThenBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"SUCCESS","data":{}}`))
	}))
	defer server.Close()

	// 既定のリミッター（3リクエスト/60秒、バースト3）を使用する
	client, err := NewClient("test-key", rfcSecret, Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	ctx := context.Background()

	// バースト分の3リクエストは即時に通る
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.Get(ctx, "listing", nil); err != nil {
			t.Fatalf("request %d error: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("burst of 3 took %v, want near-immediate", elapsed)
	}

	// 4リクエスト目はトークン補充待ちになる。短い期限のコンテキストで
	// 待機が発生していることを確認する。
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := client.Get(shortCtx, "listing", nil); err == nil {
		t.Error("4th request should be throttled beyond the context deadline")
	}
}

func TestClient_BuildURL(t *testing.T) {
	client := newTestClient(t, "https://api.example.com/api/v1")

	got := client.buildURL("listing/abc", nil)
	if got != "https://api.example.com/api/v1/listing/abc" {
		t.Errorf("buildURL = %q", got)
	}

	got = client.buildURL("/listing", nil)
	if got != "https://api.example.com/api/v1/listing" {
		t.Errorf("buildURL with leading slash = %q", got)
	}
}
