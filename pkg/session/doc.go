// Package session はサーバーサイドセッションの永続化を提供する。
//
// ブラウザには署名付きCookieでセッションIDのみを渡し、認証済みユーザーの
// 識別子とメールアドレスはこのパッケージのStoreに保持する。
// 開発用のインメモリ実装と、複数プロセスで共有できるRedis実装がある。
package session
