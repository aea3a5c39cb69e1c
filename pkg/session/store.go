package session

import (
	"context"
	"time"
)

// Data はセッションに保持する認証済みユーザーの情報。
type Data struct {
	// UID はIDプロバイダが発行したユーザーの一意識別子。
	UID string `json:"uid"`
	// Email はユーザーのメールアドレス。クレームに含まれない場合は空文字列。
	Email string `json:"email,omitempty"`
	// CreatedAt はセッションの作成日時（Unix秒）。呼び出し元が設定し、Storeは変更しない。
	CreatedAt int64 `json:"created_at"`
}

// Store はセッションの永続化を行うインターフェース。
type Store interface {
	// Create は新しいセッションを保存し、生成したセッションIDを返す。dataはそのまま保存する。
	Create(ctx context.Context, data *Data, ttl time.Duration) (string, error)
	// Get はセッションを取得する。存在しないか期限切れの場合は nil, nil を返す。
	Get(ctx context.Context, id string) (*Data, error)
	// Delete はセッションを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, id string) error
	// Touch はセッションの有効期限を延長する。
	Touch(ctx context.Context, id string, ttl time.Duration) error
	// Ping はストアへの疎通を確認する。
	Ping(ctx context.Context) error
}
