package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoAggregate はイベントの対象が指定されていないことを表す。
var ErrNoAggregate = errors.New("イベントの対象が指定されていない")

// NewUserEvent はユーザーを対象とするイベントを生成する。
// dataはJSONにシリアライズして保持する。Versionはアクティビティログへの記録時に採番されるため0のまま返す。
func NewUserEvent(uid string, eventType Type, data any) (*Event, error) {
	if uid == "" {
		return nil, ErrNoAggregate
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s のデータのシリアライズに失敗: %w", eventType, err)
	}

	return &Event{
		ID:            uuid.NewString(),
		AggregateID:   uid,
		AggregateType: AggregateTypeUser,
		EventType:     eventType,
		Data:          payload,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}, nil
}
