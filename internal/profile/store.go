package profile

import (
	"context"
	"sort"

	"github.com/finlife/finlife/internal/apperr"
)

// Document はプロフィールドキュメントの内容。
type Document map[string]any

// Store はプロフィールドキュメントの取得と更新を行うインターフェース。
type Store interface {
	// Get はUIDに対応するドキュメントを取得する。
	// 存在しない場合は apperr.ErrNotFound を返す。
	Get(ctx context.Context, uid string) (Document, error)
	// Merge はトップレベルのフィールドをドキュメントにマージし、マージ後の内容を返す。
	// ドキュメントが存在しない場合は作成する。
	Merge(ctx context.Context, uid string, fields Document) (Document, error)
}

// Keys はドキュメントのトップレベルのキーを昇順で返す。
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unavailable は外部ストアが利用できない場合のStore実装。
// 取得はすべて未検出として扱い、更新は利用不可エラーを返す。
type Unavailable struct{}

// Get は常に apperr.ErrNotFound を返す。
func (Unavailable) Get(context.Context, string) (Document, error) {
	return nil, apperr.ErrNotFound
}

// Merge は常に apperr.ErrUnavailable を返す。
func (Unavailable) Merge(context.Context, string, Document) (Document, error) {
	return nil, apperr.ErrUnavailable
}
