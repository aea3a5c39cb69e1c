// FinLifeのエントリポイント。
// ブラウザ向けのページ配信と、Firebase AuthのIDトークンを検証してセッションを発行する
// 認証ゲートウェイ、ユーザープロフィールとアクティビティログのAPIを提供する。
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finlife/finlife/internal/activity"
	"github.com/finlife/finlife/internal/config"
	"github.com/finlife/finlife/internal/gateway"
	"github.com/finlife/finlife/internal/identity"
	"github.com/finlife/finlife/internal/profile"
	"github.com/finlife/finlife/internal/storage"
	"github.com/finlife/finlife/internal/telemetry"
	"github.com/finlife/finlife/pkg/httpclient"
	"github.com/finlife/finlife/pkg/session"
)

// version はビルド時に -ldflags で上書きする。
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("FinLifeの実行に失敗しました", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(telemetry.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Environment,
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("トレーサーの停止に失敗しました", slog.String("error", err.Error()))
		}
	}()

	sessions, closeSessions, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	sa := loadServiceAccount(cfg, logger)

	server, err := gateway.NewServer(gateway.Deps{
		Config:   cfg,
		Logger:   logger,
		Verifier: identity.NewAdapter(newVerifier(cfg, sa, logger), logger),
		Profiles: newProfileStore(cfg, sa, db, logger),
		Sessions: sessions,
		Activity: activity.NewSQLiteLog(db),
		ReadinessChecks: map[string]gateway.ReadinessCheck{
			"database": db.PingContext,
		},
	})
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}

	logger.Info("FinLifeを起動します",
		slog.String("version", version),
		slog.String("environment", cfg.Environment),
		slog.String("session_backend", cfg.Session.Backend),
		slog.String("profile_backend", cfg.Profile.Backend),
	)
	return server.Run(ctx)
}

// newSessionStore は設定に応じたセッションストアを生成する。
// 返り値の関数は終了時に呼び出す。
func newSessionStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Store, func(), error) {
	if cfg.Session.Backend != "redis" {
		if cfg.IsProduction() {
			logger.Warn("インメモリのセッションストアは複数プロセスで共有できません")
		}
		return session.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// 起動後に復旧すれば/readyzで検知できるため起動は続ける
		logger.Warn("Redisへの接続に失敗しました", slog.String("addr", cfg.Redis.Addr), slog.String("error", err.Error()))
	}

	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Redis接続のクローズに失敗しました", slog.String("error", err.Error()))
		}
	}
	return session.NewRedisStore(client, ""), closeFn, nil
}

// openDatabase はSQLiteデータベースを開く。
// ファイルを開けない場合はインメモリデータベースで起動を続ける。
func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := storage.Open(ctx, cfg.SQLite.Path, logger)
	if err == nil {
		return db, nil
	}
	logger.Warn("データベースを開けないためインメモリで起動します",
		slog.String("path", cfg.SQLite.Path), slog.String("error", err.Error()))

	db, memErr := storage.Open(ctx, storage.MemoryPath, logger)
	if memErr != nil {
		return nil, errors.Join(err, memErr)
	}
	return db, nil
}

// loadServiceAccount はFIREBASE_CERT_BASE64からサービスアカウントを読み込む。
// 未設定または不正な場合はnilを返し、Firestoreを使う機能は無効になる。
func loadServiceAccount(cfg *config.Config, logger *slog.Logger) *identity.ServiceAccount {
	if cfg.Firebase.CertBase64 == "" {
		logger.Warn("FIREBASE_CERT_BASE64が設定されていません")
		return nil
	}
	sa, err := identity.DecodeServiceAccount(cfg.Firebase.CertBase64)
	if err != nil {
		logger.Warn("サービスアカウントの読み込みに失敗しました", slog.String("error", err.Error()))
		return nil
	}
	return sa
}

// newVerifier はIDトークン検証器を生成する。
// プロジェクトIDはサービスアカウントを優先し、無ければFIREBASE_PROJECT_IDを使う。
func newVerifier(cfg *config.Config, sa *identity.ServiceAccount, logger *slog.Logger) identity.TokenVerifier {
	projectID := cfg.Firebase.ProjectID
	if sa != nil && sa.ProjectID != "" {
		projectID = sa.ProjectID
	}
	if projectID == "" {
		logger.Warn("FirebaseのプロジェクトIDが無いためIDトークンの検証は常に失敗します")
		return identity.UnavailableVerifier{}
	}

	v, err := identity.NewFirebaseVerifier(projectID)
	if err != nil {
		logger.Warn("IDトークン検証器の初期化に失敗しました", slog.String("error", err.Error()))
		return identity.UnavailableVerifier{}
	}
	return v
}

// newProfileStore は設定に応じたプロフィールストアを生成する。
func newProfileStore(cfg *config.Config, sa *identity.ServiceAccount, db *sql.DB, logger *slog.Logger) profile.Store {
	if cfg.Profile.Backend == "sqlite" {
		return profile.NewSQLiteStore(db)
	}

	if sa == nil {
		logger.Warn("サービスアカウントが無いためプロフィールAPIは利用できません")
		return profile.Unavailable{}
	}
	tokens, err := identity.NewTokenSource(sa, identity.DatastoreScope)
	if err != nil {
		logger.Warn("アクセストークンの取得元を初期化できません", slog.String("error", err.Error()))
		return profile.Unavailable{}
	}
	return profile.NewFirestoreStore(
		httpclient.New(profile.FirestoreBaseURL),
		tokens,
		sa.ProjectID,
		cfg.Collections.User,
	)
}
