// Package middleware はFinLifeのHTTPサーバーで使用するGinミドルウェアを提供する。
//
// 署名付きセッションCookieの発行と読み込み、リクエストログ、Prometheusメトリクス、
// パニックリカバリ、CORS設定を含む。
package middleware
