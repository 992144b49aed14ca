// Package gfapi はGameFlip APIの署名付きクライアントを提供する。
// TOTPによるリクエスト署名、トークンバケットレート制限、
// カーソルページネーション、レスポンス・エラーの正規化を含む。
package gfapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// 環境ごとのAPIベースURL。
const (
	baseURLProduction  = "https://production-gameflip.fingershock.com/api/v1"
	baseURLTest        = "https://test-gameflip.fingershock.com/api/v1"
	baseURLDevelopment = "http://localhost:3000/api/v1"
)

// レート制限: 60秒あたり3リクエスト、バースト3。
// リミッターはクライアントインスタンスごとに持つ。リクエストごとに
// 新しいクライアントを構築する場合、プロセス全体のスロットリングには
// ならない点に注意（クレデンシャル解決ミドルウェアの構築単位に依存する）。
const (
	rateLimitTokens   = 3
	rateLimitInterval = 60 * time.Second
)

const requestTimeout = 30 * time.Second

// Metrics はクライアントが記録するメトリクスのインターフェース。
// internal/metricsのCollectorが実装する。
type Metrics interface {
	RecordUpstreamRequest(method string)
	RecordUpstreamError(code int)
	RecordRateLimitWait(d time.Duration)
	RecordPageFetched()
	RecordPaginationCeiling()
}

// nopMetrics はメトリクス未設定時のダミー実装。
type nopMetrics struct{}

func (nopMetrics) RecordUpstreamRequest(string)      {}
func (nopMetrics) RecordUpstreamError(int)           {}
func (nopMetrics) RecordRateLimitWait(time.Duration) {}
func (nopMetrics) RecordPageFetched()                {}
func (nopMetrics) RecordPaginationCeiling()          {}

// Config はクライアントの生成オプション。
type Config struct {
	Environment  string       // production / test / development
	BaseURL      string       // 設定時はEnvironmentより優先される（主にテスト用）
	HTTPClient   *http.Client // API呼び出し用。nilの場合はデフォルトを使用。
	SourceClient *http.Client // 写真ソースURL取得用（SSRF対策済みクライアントを渡す）
	Logger       *slog.Logger
	Metrics      Metrics
	Now          func() time.Time // TOTP用の現在時刻。nilの場合はtime.Now。
	Limiter      *rate.Limiter    // レートリミッターの差し替え。nilの場合は既定の3リクエスト/60秒。
}

// Client はGameFlip APIの署名付きクライアント。
// 1つのクレデンシャルバンドルに束縛され、リクエストごとに構築される。
type Client struct {
	apiKey       string
	signer       *totpSigner
	baseURL      string
	httpClient   *http.Client
	sourceClient *http.Client
	logger       *slog.Logger
	metrics      Metrics
	limiter      *rate.Limiter
	now          func() time.Time
}

// PatchOp はJSON Patch（RFC 6902）の1操作を表す。
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// NewClient は指定されたAPIキーとシークレットに束縛されたクライアントを生成する。
func NewClient(apiKey, apiSecret string, cfg Config) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("gfapi: API key and secret are required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = baseURLFor(cfg.Environment)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	sourceClient := cfg.SourceClient
	if sourceClient == nil {
		sourceClient = httpClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var metrics Metrics = cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(float64(rateLimitTokens)/rateLimitInterval.Seconds()), rateLimitTokens)
	}

	return &Client{
		apiKey:       apiKey,
		signer:       newTOTPSigner(apiSecret),
		baseURL:      baseURL,
		httpClient:   httpClient,
		sourceClient: sourceClient,
		logger:       logger,
		metrics:      metrics,
		limiter:      limiter,
		now:          now,
	}, nil
}

// baseURLFor は環境名に対応するベースURLを返す。
// 不明な環境名はproductionとして扱う。
func baseURLFor(environment string) string {
	switch environment {
	case "test":
		return baseURLTest
	case "development":
		return baseURLDevelopment
	default:
		return baseURLProduction
	}
}

// Get はGETリクエストを実行し、正規化済みレスポンスデータを返す。
func (c *Client) Get(ctx context.Context, uri string, query url.Values) (json.RawMessage, error) {
	env, err := c.do(ctx, http.MethodGet, c.buildURL(uri, query), nil, "application/json")
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Post はPOSTリクエストを実行する。bodyはJSONエンコードされる（nil可）。
func (c *Client) Post(ctx context.Context, uri string, body any) (json.RawMessage, error) {
	env, err := c.doJSON(ctx, http.MethodPost, uri, body, "application/json")
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Put はPUTリクエストを実行する。bodyはJSONエンコードされる（nil可）。
func (c *Client) Put(ctx context.Context, uri string, body any) (json.RawMessage, error) {
	env, err := c.doJSON(ctx, http.MethodPut, uri, body, "application/json")
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Patch はJSON Patch操作列でPATCHリクエストを実行する。
func (c *Client) Patch(ctx context.Context, uri string, ops []PatchOp) (json.RawMessage, error) {
	env, err := c.doJSON(ctx, http.MethodPatch, uri, ops, "application/json-patch+json")
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Delete はDELETEリクエストを実行する。
func (c *Client) Delete(ctx context.Context, uri string) (json.RawMessage, error) {
	env, err := c.do(ctx, http.MethodDelete, c.buildURL(uri, nil), nil, "")
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// doJSON はbodyをJSONエンコードしてリクエストを実行する。
func (c *Client) doJSON(ctx context.Context, method, uri string, body any, contentType string) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gfapi: failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	return c.do(ctx, method, c.buildURL(uri, nil), reader, contentType)
}

// do は署名付きリクエストを1回実行し、エンベロープを正規化して返す。
// 実行前にトークンバケットから1トークンを取得する（補充まで協調的にブロック）。
// TOTPは30秒ウィンドウごとに変わるため、呼び出しごとに再計算する。
func (c *Client) do(ctx context.Context, method, fullURL string, body io.Reader, contentType string) (*envelope, error) {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("gfapi: rate limiter wait aborted: %w", err)
	}
	if waited := time.Since(waitStart); waited > 0 {
		c.metrics.RecordRateLimitWait(waited)
	}

	token, err := c.signer.Code(c.now())
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("gfapi: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("GFAPI %s:%s", c.apiKey, token))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.metrics.RecordUpstreamRequest(method)
	c.logger.Debug("gfapi request",
		slog.String("method", method),
		slog.String("url", fullURL),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gfapi no response",
			slog.String("method", method),
			slog.String("url", fullURL),
			slog.String("error", err.Error()),
		)
		return nil, &TransportError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: fullURL, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// エンベロープ外のレスポンスはHTTPステータスでエラー化する
		upstreamErr := normalizeError(nil, resp.StatusCode)
		c.metrics.RecordUpstreamError(upstreamErr.Code)
		return nil, upstreamErr
	}

	if env.Status != "SUCCESS" {
		upstreamErr := normalizeError(&env, resp.StatusCode)
		c.metrics.RecordUpstreamError(upstreamErr.Code)
		c.logger.Error("gfapi error response",
			slog.String("method", method),
			slog.String("url", fullURL),
			slog.Int("code", upstreamErr.Code),
			slog.String("message", upstreamErr.Message),
		)
		return nil, upstreamErr
	}

	return &env, nil
}

// buildURL は相対URIとクエリパラメータから完全なURLを構築する。
func (c *Client) buildURL(uri string, query url.Values) string {
	fullURL := c.baseURL + "/" + strings.TrimPrefix(uri, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	return fullURL
}
