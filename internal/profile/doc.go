// Package profile はユーザープロフィールドキュメントの読み書きを提供する。
//
// プロフィールはUIDをキーとする外部所有のJSONオブジェクトであり、
// このパッケージはスキーマを定義しない。Cloud FirestoreのREST APIを使う実装、
// ローカルのSQLiteを使う実装、外部サービスが初期化できなかった場合に
// 使う常に失敗する実装を提供する。
package profile
