// Package httpclient は外部サービス呼び出し用のHTTPクライアントを提供する。
//
// JSONおよびフォーム形式のリクエスト送信、レスポンスのデシリアライズ、
// コンテキスト経由でのアクセストークン伝播をサポートする。
// 2xx以外のレスポンスは *StatusError として返される。
package httpclient
