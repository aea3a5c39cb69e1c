package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix はRedisに保存するセッションキーのデフォルトプレフィックス。
const defaultKeyPrefix = "finlife:session:"

// RedisStore はRedisにセッションを保持するStore実装。
// 値はJSONで保存し、有効期限はRedisのTTLで管理する。
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore は新しいRedisStoreを生成する。
// prefixが空の場合はデフォルトのプレフィックスを使用する。
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Create は新しいセッションを保存する。
func (s *RedisStore) Create(ctx context.Context, data *Data, ttl time.Duration) (string, error) {
	id := uuid.New().String()

	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("セッションのシリアライズに失敗: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), b, ttl).Err(); err != nil {
		return "", fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	return id, nil
}

// Get はセッションを取得する。
func (s *RedisStore) Get(ctx context.Context, id string) (*Data, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗: %w", err)
	}

	var data Data
	if err := json.Unmarshal(val, &data); err != nil {
		return nil, fmt.Errorf("セッションのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}

// Delete はセッションを削除する。
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("セッションの削除に失敗: %w", err)
	}
	return nil
}

// Touch はセッションの有効期限を延長する。
func (s *RedisStore) Touch(ctx context.Context, id string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.key(id), ttl).Err(); err != nil {
		return fmt.Errorf("セッションの有効期限延長に失敗: %w", err)
	}
	return nil
}

// Ping はRedisへの疎通を確認する。
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redisへの疎通確認に失敗: %w", err)
	}
	return nil
}
