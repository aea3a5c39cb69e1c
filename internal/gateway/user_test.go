package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/finlife/finlife/internal/apperr"
	"github.com/finlife/finlife/internal/profile"
	"github.com/finlife/finlife/pkg/event"
)

// countingProfiles は呼び出し回数を数え、指定したエラーを返すプロフィールストア。
type countingProfiles struct {
	calls atomic.Int32
	err   error
}

func (p *countingProfiles) Get(context.Context, string) (profile.Document, error) {
	p.calls.Add(1)
	return nil, p.err
}

func (p *countingProfiles) Merge(context.Context, string, profile.Document) (profile.Document, error) {
	p.calls.Add(1)
	return nil, p.err
}

// TestRequireOwner は他ユーザーの資源へのアクセス拒否を検証する。
func TestRequireOwner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
	}{
		{name: "未ログインでのGETは401になること", method: http.MethodGet, path: "/api/user/alice"},
		{name: "他ユーザーのGETは401になること", method: http.MethodGet, path: "/api/user/alice", token: "bob-token"},
		{name: "他ユーザーのPUTは401になること", method: http.MethodPut, path: "/api/user/alice", body: `{"name":"x"}`, token: "bob-token"},
		{name: "他ユーザーのアクティビティは401になること", method: http.MethodGet, path: "/api/user/alice/activity", token: "bob-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			profiles := &countingProfiles{}
			env := newTestEnv(t, func(d *Deps) { d.Profiles = profiles })

			var cookies []*http.Cookie
			if tt.token != "" {
				cookies = append(cookies, env.login(t, tt.token))
			}
			w := env.do(tt.method, tt.path, tt.body, cookies...)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if got := decodeBody(t, w)["error"]; got != "Unauthorized" {
				t.Errorf("error = %v", got)
			}
			if n := profiles.calls.Load(); n != 0 {
				t.Errorf("プロフィールストアが %d 回呼ばれた", n)
			}
		})
	}
}

// TestGetProfileOtherUser はドキュメントが存在しても他ユーザーには返さないことを検証する。
func TestGetProfileOtherUser(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	if _, err := env.profiles.Merge(t.Context(), "alice", profile.Document{"displayName": "Alice"}); err != nil {
		t.Fatalf("Merge()でエラーが発生: %v", err)
	}
	cookie := env.login(t, "bob-token")

	w := env.do(http.MethodGet, "/api/user/alice", "", cookie)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if strings.Contains(w.Body.String(), "Alice") {
		t.Errorf("他ユーザーのドキュメントが返された: %s", w.Body.String())
	}
}

// TestGetProfile はGET /api/user/:uid を検証する。
func TestGetProfile(t *testing.T) {
	t.Parallel()

	t.Run("保存済みのドキュメントを返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		if _, err := env.profiles.Merge(t.Context(), "alice", profile.Document{"displayName": "Alice", "currency": "JPY"}); err != nil {
			t.Fatalf("Merge()でエラーが発生: %v", err)
		}
		cookie := env.login(t, "alice-token")

		w := env.do(http.MethodGet, "/api/user/alice", "", cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		body := decodeBody(t, w)
		if body["displayName"] != "Alice" || body["currency"] != "JPY" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("ドキュメントが無い場合は404を返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		cookie := env.login(t, "alice-token")

		w := env.do(http.MethodGet, "/api/user/alice", "", cookie)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
		if got := decodeBody(t, w)["error"]; got != "User not found" {
			t.Errorf("error = %v", got)
		}
	})

	t.Run("ストアのエラーはステータスに変換されること", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			err  error
			want int
		}{
			{err: fmt.Errorf("timeout: %w", apperr.ErrUpstream), want: http.StatusBadGateway},
			{err: apperr.ErrUnavailable, want: http.StatusServiceUnavailable},
			{err: fmt.Errorf("unexpected"), want: http.StatusInternalServerError},
		}
		for _, tt := range tests {
			env := newTestEnv(t, func(d *Deps) { d.Profiles = &countingProfiles{err: tt.err} })
			cookie := env.login(t, "alice-token")

			w := env.do(http.MethodGet, "/api/user/alice", "", cookie)
			if w.Code != tt.want {
				t.Errorf("err %v: status = %d, want %d", tt.err, w.Code, tt.want)
			}
			if strings.Contains(w.Body.String(), tt.err.Error()) {
				t.Errorf("内部エラーがレスポンスに含まれる: %s", w.Body.String())
			}
		}
	})

	t.Run("プロフィールストアが無い場合は404を返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, func(d *Deps) { d.Profiles = profile.Unavailable{} })
		cookie := env.login(t, "alice-token")

		w := env.do(http.MethodGet, "/api/user/alice", "", cookie)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestUpdateProfile はPUT /api/user/:uid を検証する。
func TestUpdateProfile(t *testing.T) {
	t.Parallel()

	t.Run("マージした結果を返しGETで同じ内容を取得できること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		cookie := env.login(t, "alice-token")

		w := env.do(http.MethodPut, "/api/user/alice", `{"displayName":"Alice","monthlyBudget":300000}`, cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d (body = %s)", w.Code, http.StatusOK, w.Body.String())
		}

		w = env.do(http.MethodPut, "/api/user/alice", `{"currency":"JPY"}`, cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		merged := decodeBody(t, w)

		got := decodeBody(t, env.do(http.MethodGet, "/api/user/alice", "", cookie))
		for _, body := range []map[string]any{merged, got} {
			if body["displayName"] != "Alice" || body["currency"] != "JPY" || body["monthlyBudget"] != float64(300000) {
				t.Errorf("body = %v", body)
			}
		}
	})

	t.Run("更新したフィールド名がアクティビティに記録されること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		cookie := env.login(t, "alice-token")
		env.do(http.MethodPut, "/api/user/alice", `{"b":1,"a":2}`, cookie)

		events, err := env.activity.Recent(t.Context(), "alice", 1)
		if err != nil {
			t.Fatalf("Recent()でエラーが発生: %v", err)
		}
		if len(events) != 1 || events[0].EventType != event.TypeProfileUpdated {
			t.Fatalf("events = %+v", events)
		}
		data := decodeEventData[event.ProfileUpdatedData](t, &events[0])
		if strings.Join(data.Fields, ",") != "a,b" {
			t.Errorf("Fields = %v, want [a b]", data.Fields)
		}
	})

	t.Run("不正なボディは400を返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		cookie := env.login(t, "alice-token")

		tests := []struct {
			body string
			want string
		}{
			{body: `[1,2]`, want: "Request body must be a JSON object"},
			{body: `null`, want: "Request body must be a JSON object"},
			{body: `{broken`, want: "Request body must be a JSON object"},
			{body: `{}`, want: "No fields provided"},
		}
		for _, tt := range tests {
			w := env.do(http.MethodPut, "/api/user/alice", tt.body, cookie)
			if w.Code != http.StatusBadRequest {
				t.Errorf("body %q: status = %d, want %d", tt.body, w.Code, http.StatusBadRequest)
				continue
			}
			if got := decodeBody(t, w)["error"]; got != tt.want {
				t.Errorf("body %q: error = %v, want %q", tt.body, got, tt.want)
			}
		}
	})

	t.Run("プロフィールストアが無い場合は503を返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, func(d *Deps) { d.Profiles = profile.Unavailable{} })
		cookie := env.login(t, "alice-token")

		w := env.do(http.MethodPut, "/api/user/alice", `{"name":"x"}`, cookie)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})
}

// TestListActivity はGET /api/user/:uid/activity を検証する。
func TestListActivity(t *testing.T) {
	t.Parallel()

	t.Run("新しい順に返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		cookie := env.login(t, "alice-token")
		env.do(http.MethodPut, "/api/user/alice", `{"name":"x"}`, cookie)

		w := env.do(http.MethodGet, "/api/user/alice/activity", "", cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		events, ok := decodeBody(t, w)["events"].([]any)
		if !ok || len(events) != 2 {
			t.Fatalf("events = %v", events)
		}
		first, _ := events[0].(map[string]any)
		if first["event_type"] != string(event.TypeProfileUpdated) {
			t.Errorf("先頭のイベント = %v", first)
		}
	})

	t.Run("limitで件数を制限できること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		cookie := env.login(t, "alice-token")
		for i := range 3 {
			env.do(http.MethodPut, "/api/user/alice", fmt.Sprintf(`{"n":%d}`, i), cookie)
		}

		tests := []struct {
			query string
			want  int
		}{
			{query: "?limit=2", want: 2},
			{query: "?limit=0", want: 1},
			{query: "?limit=1000", want: 4},
			{query: "", want: 4},
		}
		for _, tt := range tests {
			w := env.do(http.MethodGet, "/api/user/alice/activity"+tt.query, "", cookie)
			events, _ := decodeBody(t, w)["events"].([]any)
			if len(events) != tt.want {
				t.Errorf("query %q: len = %d, want %d", tt.query, len(events), tt.want)
			}
		}
	})

	t.Run("数値でないlimitは400を返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, nil)
		cookie := env.login(t, "alice-token")

		w := env.do(http.MethodGet, "/api/user/alice/activity?limit=abc", "", cookie)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}
