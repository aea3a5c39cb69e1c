package profile

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/finlife/finlife/internal/apperr"
)

// SQLiteStore はローカルのSQLiteにプロフィールを保存するStore実装。
// Firestoreを使わない自己ホスト環境と開発環境で使用する。
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore は新しいSQLiteStoreを生成する。
// dbにはstorage.Openでスキーマを適用済みの接続を渡す。
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get はUIDに対応するドキュメントを取得する。
func (s *SQLiteStore) Get(ctx context.Context, uid string) (Document, error) {
	doc, err := s.load(ctx, s.db, uid)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.ErrNotFound
	}
	return doc, nil
}

// Merge はトップレベルのフィールドをドキュメントにマージする。
func (s *SQLiteStore) Merge(ctx context.Context, uid string, fields Document) (Document, error) {
	if len(fields) == 0 {
		return nil, apperr.ErrMissingInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	doc, err := s.load(ctx, tx, uid)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = Document{}
	}
	for k, v := range fields {
		doc[k] = v
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントのシリアライズに失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_profiles (uid, document, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(uid) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`, uid, string(raw)); err != nil {
		return nil, fmt.Errorf("ドキュメントの保存に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return doc, nil
}

// querier はsql.DBとsql.Txの共通部分。
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// load はドキュメントを読み込む。存在しない場合は nil, nil を返す。
func (s *SQLiteStore) load(ctx context.Context, q querier, uid string) (Document, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT document FROM user_profiles WHERE uid = ?", uid).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("ドキュメントのデシリアライズに失敗: %w", err)
	}
	return doc, nil
}
