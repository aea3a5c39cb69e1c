// Package event はユーザーのアクティビティログに記録するイベントを定義する。
//
// セッションの開始・終了やプロフィールの更新など、ユーザーに関する状態変化を
// 不変のレコードとして表現する。
package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

// AggregateTypeUser はユーザーエンティティを表す。
const AggregateTypeUser AggregateType = "User"

// Type はイベントの種類を表す。
type Type string

const (
	// TypeSessionStarted はIDトークンの検証に成功しセッションが開始されたことを表す。
	TypeSessionStarted Type = "SessionStarted"
	// TypeSessionEnded はログアウトによりセッションが終了したことを表す。
	TypeSessionEnded Type = "SessionEnded"
	// TypeProfileUpdated はユーザープロフィールのフィールドが更新されたことを表す。
	TypeProfileUpdated Type = "ProfileUpdated"
)

// Event はアクティビティログに記録される不変のイベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。ユーザーの場合はUID。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はAggregate内でのイベントの順序番号。記録時にストアが採番する。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// SessionStartedData はSessionStartedイベントのデータ。
type SessionStartedData struct {
	// Email は検証済みトークンに含まれていたメールアドレス。
	Email string `json:"email,omitempty"`
	// UserAgent はリクエスト元のUser-Agent。
	UserAgent string `json:"user_agent,omitempty"`
	// RemoteAddr はリクエスト元のIPアドレス。
	RemoteAddr string `json:"remote_addr,omitempty"`
}

// SessionEndedData はSessionEndedイベントのデータ。
type SessionEndedData struct {
	// DurationSeconds はセッション開始からログアウトまでの秒数。
	DurationSeconds int64 `json:"duration_seconds"`
}

// ProfileUpdatedData はProfileUpdatedイベントのデータ。
type ProfileUpdatedData struct {
	// Fields は更新されたトップレベルのフィールド名。
	Fields []string `json:"fields"`
}
