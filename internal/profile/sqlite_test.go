package profile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/finlife/finlife/internal/apperr"
	"github.com/finlife/finlife/internal/storage"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.MemoryPath, nil)
	if err != nil {
		t.Fatalf("storage.Open()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db)
}

// TestSQLiteStore はSQLiteStoreの取得とマージを検証する。
func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	t.Run("存在しないUIDはErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		_, err := s.Get(context.Background(), "missing")
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("マージで作成したドキュメントを取得できること", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		ctx := context.Background()

		_, err := s.Merge(ctx, "u1", Document{"name": "Alice", "currency": "JPY"})
		if err != nil {
			t.Fatalf("Merge()でエラーが発生: %v", err)
		}

		doc, err := s.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if doc["name"] != "Alice" || doc["currency"] != "JPY" {
			t.Errorf("Get() = %v", doc)
		}
	})

	t.Run("マージは指定したフィールドだけを書き換えること", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		ctx := context.Background()

		if _, err := s.Merge(ctx, "u1", Document{"name": "Alice", "theme": "dark"}); err != nil {
			t.Fatalf("Merge()でエラーが発生: %v", err)
		}
		merged, err := s.Merge(ctx, "u1", Document{"theme": "light", "monthlyBudget": json.Number("120000")})
		if err != nil {
			t.Fatalf("Merge()でエラーが発生: %v", err)
		}
		if merged["name"] != "Alice" {
			t.Errorf("name = %v, want Alice", merged["name"])
		}

		doc, err := s.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if doc["theme"] != "light" {
			t.Errorf("theme = %v, want light", doc["theme"])
		}
		if doc["monthlyBudget"] != json.Number("120000") {
			t.Errorf("monthlyBudget = %#v, want json.Number(120000)", doc["monthlyBudget"])
		}
		if doc["name"] != "Alice" {
			t.Errorf("name = %v, want Alice", doc["name"])
		}
	})

	t.Run("空のマージはErrMissingInputになること", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		_, err := s.Merge(context.Background(), "u1", Document{})
		if !errors.Is(err, apperr.ErrMissingInput) {
			t.Errorf("Merge() error = %v, want ErrMissingInput", err)
		}
	})

	t.Run("他のユーザーのドキュメントに影響しないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		ctx := context.Background()

		if _, err := s.Merge(ctx, "u1", Document{"name": "Alice"}); err != nil {
			t.Fatalf("Merge()でエラーが発生: %v", err)
		}
		if _, err := s.Get(ctx, "u2"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Get(u2) error = %v, want ErrNotFound", err)
		}
	})
}

// TestUnavailable はUnavailableの振る舞いを検証する。
func TestUnavailable(t *testing.T) {
	t.Parallel()

	var s Store = Unavailable{}
	if _, err := s.Get(context.Background(), "u1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := s.Merge(context.Background(), "u1", Document{"a": 1}); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("Merge() error = %v, want ErrUnavailable", err)
	}
}
