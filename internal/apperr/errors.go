// Package apperr はアプリケーション全体で共有するエラー分類を提供する。
//
// 外部サービス呼び出しの失敗はアダプタ境界でこれらのセンチネルエラーに
// 変換され、ルーティング層では HTTPStatus によってステータスコードに
// 対応付けられる。文字列比較ではなく errors.Is で判定すること。
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrMissingInput は必須の入力が欠けていることを表す。
	ErrMissingInput = errors.New("missing input")
	// ErrUnauthenticated は認証されていない、または他ユーザーの資源へのアクセスを表す。
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound は対象のドキュメントが存在しないことを表す。
	ErrNotFound = errors.New("not found")
	// ErrUpstream は外部サービスの呼び出しに失敗したことを表す。
	ErrUpstream = errors.New("upstream failure")
	// ErrUnavailable は外部サービスが初期化されておらず利用できないことを表す。
	ErrUnavailable = errors.New("service unavailable")
)

// mapping はセンチネルエラーとHTTPステータスの対応。先に一致したものが優先される。
var mapping = []struct {
	err    error
	status int
}{
	{ErrMissingInput, http.StatusBadRequest},
	{ErrUnauthenticated, http.StatusUnauthorized},
	{ErrNotFound, http.StatusNotFound},
	{ErrUnavailable, http.StatusServiceUnavailable},
	{ErrUpstream, http.StatusBadGateway},
}

// HTTPStatus はエラーに対応するHTTPステータスコードを返す。
// 分類できないエラーは500として扱う。
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, m := range mapping {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}
