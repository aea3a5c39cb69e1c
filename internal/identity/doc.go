// Package identity はFirebase AuthenticationのIDトークン検証と、
// サービスアカウントによるGoogle APIのアクセストークン取得を提供する。
//
// ゲートウェイはAdapterだけを使い、検証の成否を「クレームあり」か「なし」に
// 正規化した結果を受け取る。検証器が初期化できない環境ではUnavailableVerifierを使い、
// すべての検証を失敗として扱う。
package identity
