// Package gateway はFinLifeのHTTPサーバーを提供する。
//
// ブラウザから受け取ったFirebaseのIDトークンを検証してサーバー側セッションに
// 写し取り、セッションに基づいてプロフィールドキュメントとアクティビティログへの
// アクセスを認可する。あわせてHTMLページ、フロントエンド向けの設定スクリプト、
// ヘルスチェックとメトリクスを配信する。
//
// 外部サービスのクライアントはすべてDepsとして起動時に注入され、
// このパッケージはグローバルな状態を持たない。
package gateway
