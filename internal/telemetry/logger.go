// Package telemetry は構造化ログとOpenTelemetryトレースの初期化を提供する。
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redactedValue は秘匿値の置き換え文字列。
const redactedValue = "[REDACTED]"

// sensitivePatterns はログ出力時に値を伏せる属性キーのパターン。大文字小文字は区別しない。
var sensitivePatterns = []string{
	"_key",
	"secret",
	"token",
	"password",
	"private",
	"authorization",
	"cookie",
	"cert",
	"assertion",
}

// LogConfig はロガーの設定。
type LogConfig struct {
	// Level はログレベル（debug / info / warn / error）。
	Level string
	// Format は出力形式（json / text）。
	Format string
	// Environment は全ログに付与する実行環境名。
	Environment string
	// Output は出力先。nilの場合は標準出力。
	Output io.Writer
}

// NewLogger は秘匿値を伏せる構造化ロガーを生成する。
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactSecrets,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler).With(
		slog.String("service", "finlife"),
		slog.String("environment", cfg.Environment),
	)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactSecrets はキーが秘匿パターンに一致する属性の値を伏せる。
func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, p := range sensitivePatterns {
		if strings.Contains(key, p) {
			return slog.String(a.Key, redactedValue)
		}
	}
	return a
}
