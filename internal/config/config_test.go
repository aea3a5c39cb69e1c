package config

import (
	"errors"
	"slices"
	"testing"
	"time"
)

// clearEnv は設定に使う環境変数をすべて未設定扱いにする。
// 空の値は読み込み時に無視される。
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range envKeys {
		t.Setenv(key, "")
	}
}

// TestLoad は環境変数からの設定読み込みを検証する。
// t.Setenvを使うため並列実行しない。
func TestLoad(t *testing.T) {
	t.Run("環境変数が無い場合はデフォルト値になること", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.Environment != EnvDevelopment || cfg.Port != 5000 {
			t.Errorf("Environment = %q, Port = %d", cfg.Environment, cfg.Port)
		}
		if cfg.SecretKey != DefaultSecretKey {
			t.Errorf("SecretKey = %q, want default", cfg.SecretKey)
		}
		if cfg.Session.Backend != "memory" || cfg.Session.TTL != 24*time.Hour || cfg.Session.CookieName != "finlife_session" {
			t.Errorf("Session = %+v", cfg.Session)
		}
		if cfg.Profile.Backend != "firestore" || cfg.SQLite.Path != "data/finlife.db" {
			t.Errorf("Profile = %+v, SQLite = %+v", cfg.Profile, cfg.SQLite)
		}
		want := CollectionsConfig{
			User: "users", Transaction: "transactions", Budget: "budgets", Category: "categories",
			Currency: "currencies", Goals: "goals", ActivityLogs: "activity_logs",
		}
		if cfg.Collections != want {
			t.Errorf("Collections = %+v, want %+v", cfg.Collections, want)
		}
		if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
			t.Errorf("Log = %+v", cfg.Log)
		}
		if cfg.SecureCookies() {
			t.Error("開発環境でSecureCookies() = true")
		}
	})

	t.Run("環境変数でデフォルト値を上書きできること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "8080")
		t.Setenv("SESSION_BACKEND", "redis")
		t.Setenv("SESSION_TTL", "2h")
		t.Setenv("REDIS_ADDR", "redis:6379")
		t.Setenv("REDIS_DB", "3")
		t.Setenv("PROFILE_BACKEND", "sqlite")
		t.Setenv("FIREBASE_PROJECT_ID", "finlife-prod")
		t.Setenv("FIREBASE_DB_USER", "profiles")
		t.Setenv("LOG_FORMAT", "text")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.Port != 8080 {
			t.Errorf("Port = %d, want 8080", cfg.Port)
		}
		if cfg.Session.Backend != "redis" || cfg.Session.TTL != 2*time.Hour {
			t.Errorf("Session = %+v", cfg.Session)
		}
		if cfg.Session.CookieName != "finlife_session" {
			t.Errorf("上書きしていないCookieNameが変わった: %q", cfg.Session.CookieName)
		}
		if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 3 {
			t.Errorf("Redis = %+v", cfg.Redis)
		}
		if cfg.Profile.Backend != "sqlite" {
			t.Errorf("Profile.Backend = %q, want sqlite", cfg.Profile.Backend)
		}
		if cfg.Firebase.ProjectID != "finlife-prod" {
			t.Errorf("Firebase.ProjectID = %q", cfg.Firebase.ProjectID)
		}
		if cfg.Collections.User != "profiles" || cfg.Collections.Budget != "budgets" {
			t.Errorf("Collections = %+v", cfg.Collections)
		}
		if cfg.Log.Format != "text" || cfg.OTEL.Endpoint != "otel-collector:4317" {
			t.Errorf("Log = %+v, OTEL = %+v", cfg.Log, cfg.OTEL)
		}
	})

	invalid := map[string][2]string{
		"未知のセッションバックエンド":  {"SESSION_BACKEND", "disk"},
		"未知のプロフィールバックエンド": {"PROFILE_BACKEND", "mongodb"},
		"数値でないポート":        {"PORT", "http"},
		"範囲外のポート":         {"PORT", "70000"},
		"短すぎるセッション有効期間":   {"SESSION_TTL", "10s"},
		"未知のログレベル":        {"LOG_LEVEL", "verbose"},
		"未知の実行環境":         {"APP_ENV", "staging"},
	}
	for name, kv := range invalid {
		t.Run(name+"はエラーになること", func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])

			if _, err := Load(); err == nil {
				t.Errorf("%s=%s でLoad()がエラーを返さなかった", kv[0], kv[1])
			}
		})
	}

	t.Run("本番環境でデフォルトの署名鍵はエラーになること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APP_ENV", "production")

		_, err := Load()
		if !errors.Is(err, ErrInsecureSecret) {
			t.Errorf("Load() error = %v, want ErrInsecureSecret", err)
		}
	})

	t.Run("本番環境で署名鍵を設定すればSecure Cookieになること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APP_ENV", "production")
		t.Setenv("SECRET_KEY", "a-long-random-secret")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if !cfg.IsProduction() || !cfg.SecureCookies() {
			t.Errorf("IsProduction() = %v, SecureCookies() = %v", cfg.IsProduction(), cfg.SecureCookies())
		}
	})
}

// TestValidate は環境変数を介さない検証を確認する。
func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("redisバックエンドでアドレスが空の場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		cfg := defaults()
		cfg.Session.Backend = "redis"
		cfg.Redis.Addr = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate()がエラーを返さなかった")
		}
	})

	t.Run("デフォルト値はそのまま有効であること", func(t *testing.T) {
		t.Parallel()

		if err := defaults().Validate(); err != nil {
			t.Errorf("Validate()でエラーが発生: %v", err)
		}
	})
}

// TestAllowedOrigins はCORSの許可オリジンを検証する。
func TestAllowedOrigins(t *testing.T) {
	t.Parallel()

	cfg := defaults()
	cfg.FrontendURL = "https://finlife.example.com/, https://app.example.com"

	want := []string{
		"http://localhost:5000",
		"http://127.0.0.1:5000",
		"https://finlife.example.com",
		"https://app.example.com",
	}
	if got := cfg.AllowedOrigins(); !slices.Equal(got, want) {
		t.Errorf("AllowedOrigins() = %v, want %v", got, want)
	}
	if got := cfg.Addr(); got != ":5000" {
		t.Errorf("Addr() = %q, want :5000", got)
	}
}
