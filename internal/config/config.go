// Package config は環境変数からFinLifeの設定を読み込む。
//
// 組み込みのデフォルト値の上に環境変数を重ね、validatorで検証する。
// 本番環境ではデフォルトの署名鍵での起動を拒否する。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvDevelopment は開発環境。
	EnvDevelopment = "development"
	// EnvProduction は本番環境。
	EnvProduction = "production"

	// DefaultSecretKey は開発用のセッション署名鍵。本番環境では使用できない。
	DefaultSecretKey = "dev-secret-key-change-in-production"
)

// ErrInsecureSecret は本番環境でデフォルトの署名鍵が使われていることを表す。
var ErrInsecureSecret = errors.New("本番環境ではSECRET_KEYの設定が必要です")

// Config はアプリケーション全体の設定。
type Config struct {
	// Environment は実行環境（development / production）。
	Environment string `koanf:"environment" validate:"oneof=development production"`
	// Port はHTTPサーバーの待ち受けポート。
	Port int `koanf:"port" validate:"min=1,max=65535"`
	// SecretKey はセッションCookieの署名鍵。
	SecretKey string `koanf:"secret_key" validate:"required"`
	// FrontendURL はCORSで追加で許可するオリジン。カンマ区切りで複数指定できる。
	FrontendURL string `koanf:"frontend_url"`
	// StaticDir は /static で配信するディレクトリ。空の場合は配信しない。
	StaticDir string `koanf:"static_dir"`

	Session     SessionConfig     `koanf:"session"`
	Redis       RedisConfig       `koanf:"redis"`
	Profile     ProfileConfig     `koanf:"profile"`
	SQLite      SQLiteConfig      `koanf:"sqlite"`
	Firebase    FirebaseConfig    `koanf:"firebase"`
	Collections CollectionsConfig `koanf:"collections"`
	Log         LogConfig         `koanf:"log"`
	OTEL        OTELConfig        `koanf:"otel"`
}

// SessionConfig はサーバー側セッションの設定。
type SessionConfig struct {
	// Backend はセッションの保存先（memory / redis）。
	Backend string `koanf:"backend" validate:"oneof=memory redis"`
	// TTL はセッションの有効期間。
	TTL time.Duration `koanf:"ttl" validate:"min=1m"`
	// CookieName はセッションCookieの名前。
	CookieName string `koanf:"cookie_name" validate:"required"`
}

// RedisConfig はRedisの接続設定。
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"min=0"`
}

// ProfileConfig はプロフィールの保存先の設定。
type ProfileConfig struct {
	// Backend はプロフィールの保存先（firestore / sqlite）。
	Backend string `koanf:"backend" validate:"oneof=firestore sqlite"`
}

// SQLiteConfig はローカルデータベースの設定。
type SQLiteConfig struct {
	// Path はSQLiteファイルのパス。":memory:" でインメモリになる。
	Path string `koanf:"path" validate:"required"`
}

// FirebaseConfig はFirebaseの設定。
// CertBase64以外はブラウザに公開するクライアント設定。
type FirebaseConfig struct {
	// CertBase64 はbase64エンコードされたサービスアカウントJSON。
	CertBase64        string `koanf:"cert_base64"`
	APIKey            string `koanf:"api_key"`
	AuthDomain        string `koanf:"auth_domain"`
	ProjectID         string `koanf:"project_id"`
	StorageBucket     string `koanf:"storage_bucket"`
	MessagingSenderID string `koanf:"messaging_sender_id"`
	AppID             string `koanf:"app_id"`
}

// CollectionsConfig はFirestoreのコレクション名。
// jsonタグは /collections.js で公開するキー名。
type CollectionsConfig struct {
	User         string `koanf:"user" json:"userCollection" validate:"required"`
	Transaction  string `koanf:"transaction" json:"transactionCollection" validate:"required"`
	Budget       string `koanf:"budget" json:"budgetCollection" validate:"required"`
	Category     string `koanf:"category" json:"categoryCollection" validate:"required"`
	Currency     string `koanf:"currency" json:"currencyCollection" validate:"required"`
	Goals        string `koanf:"goals" json:"goalsCollection" validate:"required"`
	ActivityLogs string `koanf:"activity_logs" json:"activityLogsCollection" validate:"required"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// OTELConfig はOpenTelemetryの設定。
type OTELConfig struct {
	// Endpoint はOTLP gRPCエクスポーターの送信先。空の場合はトレースを送信しない。
	Endpoint string `koanf:"endpoint"`
}

// envKeys は環境変数名と設定キーの対応。
var envKeys = map[string]string{
	"APP_ENV":                      "environment",
	"PORT":                         "port",
	"SECRET_KEY":                   "secret_key",
	"FRONTEND_URL":                 "frontend_url",
	"STATIC_DIR":                   "static_dir",
	"SESSION_BACKEND":              "session.backend",
	"SESSION_TTL":                  "session.ttl",
	"SESSION_COOKIE_NAME":          "session.cookie_name",
	"REDIS_ADDR":                   "redis.addr",
	"REDIS_PASSWORD":               "redis.password",
	"REDIS_DB":                     "redis.db",
	"PROFILE_BACKEND":              "profile.backend",
	"SQLITE_PATH":                  "sqlite.path",
	"FIREBASE_CERT_BASE64":         "firebase.cert_base64",
	"FIREBASE_API_KEY":             "firebase.api_key",
	"FIREBASE_AUTH_DOMAIN":         "firebase.auth_domain",
	"FIREBASE_PROJECT_ID":          "firebase.project_id",
	"FIREBASE_STORAGE_BUCKET":      "firebase.storage_bucket",
	"FIREBASE_MESSAGING_SENDER_ID": "firebase.messaging_sender_id",
	"FIREBASE_APP_ID":              "firebase.app_id",
	"FIREBASE_DB_USER":             "collections.user",
	"FIREBASE_DB_TRANSACTION":      "collections.transaction",
	"FIREBASE_DB_BUDGET":           "collections.budget",
	"FIREBASE_DB_CATEGORY":         "collections.category",
	"FIREBASE_DB_CURRENCY":         "collections.currency",
	"FIREBASE_DB_GOALS":            "collections.goals",
	"FIREBASE_DB_ACTIVITY_LOGS":    "collections.activity_logs",
	"LOG_LEVEL":                    "log.level",
	"LOG_FORMAT":                   "log.format",
	"OTEL_EXPORTER_OTLP_ENDPOINT":  "otel.endpoint",
}

// defaults は組み込みのデフォルト値を返す。
func defaults() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Port:        5000,
		SecretKey:   DefaultSecretKey,
		Session: SessionConfig{
			Backend:    "memory",
			TTL:        24 * time.Hour,
			CookieName: "finlife_session",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Profile: ProfileConfig{
			Backend: "firestore",
		},
		SQLite: SQLiteConfig{
			Path: "data/finlife.db",
		},
		Collections: CollectionsConfig{
			User:         "users",
			Transaction:  "transactions",
			Budget:       "budgets",
			Category:     "categories",
			Currency:     "currencies",
			Goals:        "goals",
			ActivityLogs: "activity_logs",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load は環境変数から設定を読み込む。
// 優先順位は 1. 環境変数 2. 組み込みのデフォルト値。空の環境変数は未設定として扱う。
func Load() (*Config, error) {
	k := koanf.New(".")
	cfg := defaults()

	err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		path, ok := envKeys[key]
		if !ok || value == "" {
			return "", nil
		}
		return path, value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("設定の変換に失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("設定値が不正: %w", err)
	}
	if c.Session.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("設定値が不正: SESSION_BACKEND=redisにはREDIS_ADDRが必要です")
	}
	if c.IsProduction() && c.SecretKey == DefaultSecretKey {
		return ErrInsecureSecret
	}
	return nil
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// SecureCookies はCookieにSecure属性を付けるかどうかを返す。
func (c *Config) SecureCookies() bool {
	return c.IsProduction()
}

// Addr はHTTPサーバーの待ち受けアドレスを返す。
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AllowedOrigins はCORSで許可するオリジンを返す。
// ローカルの開発用オリジンとFRONTEND_URLで指定したオリジンを含む。
func (c *Config) AllowedOrigins() []string {
	origins := []string{
		fmt.Sprintf("http://localhost:%d", c.Port),
		fmt.Sprintf("http://127.0.0.1:%d", c.Port),
	}
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
