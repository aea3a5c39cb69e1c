// Package activity はユーザーごとのアクティビティログを記録・取得する。
//
// ログは追記のみで、ユーザー（UID）ごとにバージョン番号で順序付けされる。
package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finlife/finlife/pkg/event"
)

// DefaultLimit はRecentで件数を指定しない場合の取得件数。
const DefaultLimit = 20

// MaxLimit はRecentで一度に取得できる最大件数。
const MaxLimit = 100

// Log はアクティビティログのインターフェース。
type Log interface {
	// Record はイベントを記録する。バージョンはUIDごとに採番され、eに設定される。
	Record(ctx context.Context, e *event.Event) error
	// Recent はUIDのイベントを新しい順に最大limit件返す。
	Recent(ctx context.Context, uid string, limit int) ([]event.Event, error)
}

// ClampLimit はlimitを1からMaxLimitの範囲に収める。
func ClampLimit(limit int) int {
	switch {
	case limit < 1:
		return 1
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// SQLiteLog はSQLiteに保存するLog実装。
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog は新しいSQLiteLogを生成する。
// dbにはstorage.Openでスキーマを適用済みの接続を渡す。
func NewSQLiteLog(db *sql.DB) *SQLiteLog {
	return &SQLiteLog{db: db}
}

// Record はイベントを記録する。
// 同じUIDの最新バージョンに1を加えた値をトランザクション内で採番する。
func (l *SQLiteLog) Record(ctx context.Context, e *event.Event) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM activity_logs WHERE aggregate_id = ?",
		e.AggregateID,
	).Scan(&current); err != nil {
		return fmt.Errorf("バージョン取得に失敗: %w", err)
	}

	version := current + 1
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO activity_logs (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.AggregateID, string(e.AggregateType), string(e.EventType), string(e.Data), version,
		e.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("イベント保存に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}

	e.Version = version
	return nil
}

// Recent はUIDのイベントを新しい順に返す。
func (l *SQLiteLog) Recent(ctx context.Context, uid string, limit int) ([]event.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		FROM activity_logs
		WHERE aggregate_id = ?
		ORDER BY version DESC
		LIMIT ?
	`, uid, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("イベント取得に失敗: %w", err)
	}
	defer rows.Close()

	events := make([]event.Event, 0)
	for rows.Next() {
		var (
			e         event.Event
			aggType   string
			eventType string
			data      string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &aggType, &eventType, &data, &e.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("イベントのスキャンに失敗: %w", err)
		}
		e.AggregateType = event.AggregateType(aggType)
		e.EventType = event.Type(eventType)
		e.Data = json.RawMessage(data)
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("作成日時の解析に失敗: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベントの読み込みに失敗: %w", err)
	}
	return events, nil
}
