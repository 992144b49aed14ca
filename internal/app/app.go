// Package app はアプリケーションの初期化と起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/gfbay/internal/account"
	"github.com/hitoshi/gfbay/internal/config"
	"github.com/hitoshi/gfbay/internal/credential"
	"github.com/hitoshi/gfbay/internal/gfapi"
	"github.com/hitoshi/gfbay/internal/handler"
	"github.com/hitoshi/gfbay/internal/kvstore"
	"github.com/hitoshi/gfbay/internal/logger"
	"github.com/hitoshi/gfbay/internal/metrics"
	"github.com/hitoshi/gfbay/internal/secret"
	"github.com/hitoshi/gfbay/internal/security"
	"github.com/hitoshi/gfbay/internal/session"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("gameflip_env", cfg.GameflipEnv),
	)

	return runServe(cfg)
}

// runServe はAPIサーバーモードで起動する。
// 永続化ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. 暗号化サービスの初期化
	cipher, err := secret.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	// 2. 永続化ストアの初期化
	// セッションはRedis利用時にCookieと同じ寿命のTTLを持つ。
	sessionStore, err := kvstore.NewFromConfig(cfg, "sessions.json", time.Duration(cfg.SessionMaxAge)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	accountStore, err := kvstore.NewFromConfig(cfg, "accounts.json", 0)
	if err != nil {
		return fmt.Errorf("failed to open account store: %w", err)
	}

	if cfg.RedisURL != "" {
		slog.Info("using redis store")
	} else {
		slog.Info("using file store", slog.String("data_dir", cfg.DataDir))
	}

	// 3. ドメインサービスの初期化
	sessionManager := session.NewManager(sessionStore, session.Config{
		Secret:       cfg.SessionSecret,
		MaxAge:       cfg.SessionMaxAge,
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
	})
	accounts := account.NewAccountStore(accountStore, cipher)
	resolver := credential.NewResolver(accounts, cfg)

	// 4. メトリクスとSSRF対策クライアントの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	ssrfGuard := security.NewSSRFGuard()
	sourceClient := ssrfGuard.NewSafeClient(30 * time.Second)

	// 5. クライアントファクトリの構築
	// リクエストごとに解決されたクレデンシャルに束縛したクライアントを生成する。
	clientFactory := func(apiKey, apiSecret string) (*gfapi.Client, error) {
		return gfapi.NewClient(apiKey, apiSecret, gfapi.Config{
			Environment:  cfg.GameflipEnv,
			SourceClient: sourceClient,
			Logger:       slog.Default(),
			Metrics:      collector,
		})
	}

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		SessionManager:     sessionManager,
		CredentialResolver: resolver,
		ClientFactory:      clientFactory,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		Logger:             slog.Default(),
		AccountService:     accounts,
		PhotoURLValidator:  ssrfGuard,
		MetricsHandler:     metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Redisストアの場合は接続を閉じる
	if closer, ok := sessionStore.(io.Closer); ok {
		closer.Close()
	}
	if closer, ok := accountStore.(io.Closer); ok {
		closer.Close()
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
