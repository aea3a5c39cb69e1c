// Package storage はローカルのSQLiteデータベースを開き、スキーマを適用する。
//
// プロフィールのローカル保存とアクティビティログが同じデータベースを共有する。
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/finlife/finlife/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// MemoryPath はインメモリデータベースを表すパス。
const MemoryPath = ":memory:"

// Open はSQLiteデータベースを開き、未適用のマイグレーションを適用する。
// 親ディレクトリが存在しない場合は作成する。
func Open(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("データディレクトリの作成に失敗: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// インメモリDBは接続ごとに別のデータベースになるため、接続を1本に制限する。
	// ファイルの場合も書き込みは直列化されるので同じ設定で問題ない。
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	if err := migration.Run(ctx, db, migrations, "migrations", logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}
