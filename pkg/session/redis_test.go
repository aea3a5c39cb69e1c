package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestRedisStore はminiredisに接続したRedisStoreを生成する。
func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, ""), mr
}

// TestRedisStore はRedisStoreの基本操作を検証する。
func TestRedisStore(t *testing.T) {
	t.Parallel()

	t.Run("作成したセッションをデフォルトプレフィックスのキーで保存すること", func(t *testing.T) {
		t.Parallel()

		store, mr := newTestRedisStore(t)
		ctx := context.Background()

		id, err := store.Create(ctx, &Data{UID: "u1", Email: "a@b.com", CreatedAt: 1767225600}, time.Hour)
		if err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}
		if !mr.Exists("finlife:session:" + id) {
			t.Errorf("キー %q が存在しない", "finlife:session:"+id)
		}
		if ttl := mr.TTL("finlife:session:" + id); ttl != time.Hour {
			t.Errorf("TTL = %v, want 1h", ttl)
		}

		got, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if got == nil || got.UID != "u1" || got.Email != "a@b.com" || got.CreatedAt != 1767225600 {
			t.Errorf("got = %+v, want uid=u1 email=a@b.com created_at=1767225600", got)
		}
	})

	t.Run("存在しないセッションはnilが返ること", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestRedisStore(t)
		got, err := store.Get(context.Background(), "missing")
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if got != nil {
			t.Errorf("got = %+v, want nil", got)
		}
	})

	t.Run("TTL経過後は取得できないこと", func(t *testing.T) {
		t.Parallel()

		store, mr := newTestRedisStore(t)
		ctx := context.Background()
		id, _ := store.Create(ctx, &Data{UID: "u1"}, time.Minute)

		mr.FastForward(2 * time.Minute)

		if got, _ := store.Get(ctx, id); got != nil {
			t.Errorf("got = %+v, want nil", got)
		}
	})

	t.Run("Touchで有効期限が延長されること", func(t *testing.T) {
		t.Parallel()

		store, mr := newTestRedisStore(t)
		ctx := context.Background()
		id, _ := store.Create(ctx, &Data{UID: "u1"}, time.Minute)

		if err := store.Touch(ctx, id, time.Hour); err != nil {
			t.Fatalf("Touch()でエラーが発生: %v", err)
		}
		if ttl := mr.TTL("finlife:session:" + id); ttl != time.Hour {
			t.Errorf("TTL = %v, want 1h", ttl)
		}
	})

	t.Run("削除は冪等であること", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestRedisStore(t)
		ctx := context.Background()
		id, _ := store.Create(ctx, &Data{UID: "u1"}, time.Minute)

		if err := store.Delete(ctx, id); err != nil {
			t.Fatalf("Delete()でエラーが発生: %v", err)
		}
		if err := store.Delete(ctx, id); err != nil {
			t.Fatalf("2回目のDelete()でエラーが発生: %v", err)
		}
		if got, _ := store.Get(ctx, id); got != nil {
			t.Errorf("got = %+v, want nil", got)
		}
	})

	t.Run("壊れた値はエラーになること", func(t *testing.T) {
		t.Parallel()

		store, mr := newTestRedisStore(t)
		mr.Set("finlife:session:broken", "{not json")

		if _, err := store.Get(context.Background(), "broken"); err == nil {
			t.Fatal("Get()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("Redis停止時はPingがエラーになること", func(t *testing.T) {
		t.Parallel()

		store, mr := newTestRedisStore(t)
		if err := store.Ping(context.Background()); err != nil {
			t.Fatalf("Ping()でエラーが発生: %v", err)
		}
		mr.Close()
		if err := store.Ping(context.Background()); err == nil {
			t.Fatal("停止後のPing()がエラーを返すべきだが、nilが返った")
		}
	})
}
