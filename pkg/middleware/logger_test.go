package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// TestRequestLogger はリクエストログの出力を検証する。
func TestRequestLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "2xxはINFOで出力されること", status: http.StatusOK, wantLevel: "INFO"},
		{name: "4xxはWARNで出力されること", status: http.StatusUnauthorized, wantLevel: "WARN"},
		{name: "5xxはERRORで出力されること", status: http.StatusBadGateway, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			router := gin.New()
			router.Use(RequestLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
			router.GET("/api/user/:uid", func(c *gin.Context) {
				c.Status(tt.status)
			})

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/user/u1", nil))

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("ログのパースに失敗: %v (%s)", err, buf.String())
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["route"] != "/api/user/:uid" || entry["path"] != "/api/user/u1" {
				t.Errorf("route = %v, path = %v", entry["route"], entry["path"])
			}
			if entry["status"] != float64(tt.status) {
				t.Errorf("status = %v, want %d", entry["status"], tt.status)
			}
		})
	}
}
