package gateway

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finlife/finlife/internal/config"
	"github.com/finlife/finlife/pkg/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

// javascriptContentType は設定スクリプトのContent-Type。
const javascriptContentType = "application/javascript; charset=utf-8"

// page はHTMLページのルート定義。
type page struct {
	path     string
	template string
	title    string
}

// pages はHTMLページの一覧。内容はブラウザ側のスクリプトが描画する。
var pages = []page{
	{path: "/", template: "home.html", title: "Home"},
	{path: "/home", template: "home.html", title: "Home"},
	{path: "/profile", template: "profile.html", title: "Profile"},
	{path: "/dashboard", template: "dashboard.html", title: "Dashboard"},
	{path: "/analytics", template: "analytics.html", title: "Analytics"},
	{path: "/recurring", template: "recurring.html", title: "Recurring"},
	{path: "/accounts", template: "accounts.html", title: "Accounts"},
	{path: "/login", template: "login.html", title: "Login"},
	{path: "/signup", template: "signup.html", title: "Sign up"},
}

// loadTemplates は埋め込みのHTMLテンプレートを読み込む。
func loadTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("テンプレートの読み込みに失敗: %w", err)
	}
	return tmpl, nil
}

// setupPages はHTMLページと静的ファイルのルーティングを設定する。
func (s *Server) setupPages() {
	for _, p := range pages {
		s.router.GET(p.path, s.handlePage(p))
	}
	if s.cfg.StaticDir != "" {
		s.router.Static("/static", s.cfg.StaticDir)
	}
}

// handlePage はページを描画するハンドラーを返す。
func (s *Server) handlePage(p page) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, data, ok := middleware.GetSession(c)
		email := ""
		if ok {
			email = data.Email
		}
		c.HTML(http.StatusOK, p.template, gin.H{
			"Title":         p.title,
			"Authenticated": ok,
			"Email":         email,
		})
	}
}

// firebaseClientConfig はブラウザに公開するFirebaseの設定。
// 未設定の値はnullとして出力する。
type firebaseClientConfig struct {
	APIKey            *string `json:"apiKey"`
	AuthDomain        *string `json:"authDomain"`
	ProjectID         *string `json:"projectId"`
	StorageBucket     *string `json:"storageBucket"`
	MessagingSenderID *string `json:"messagingSenderId"`
	AppID             *string `json:"appId"`
}

// configScripts は起動時に一度だけ生成する設定スクリプト。
type configScripts struct {
	firebase    []byte
	collections []byte
}

func newConfigScripts(cfg *config.Config) (configScripts, error) {
	fb := cfg.Firebase
	firebase, err := jsModule("firebaseConfig", firebaseClientConfig{
		APIKey:            optional(fb.APIKey),
		AuthDomain:        optional(fb.AuthDomain),
		ProjectID:         optional(fb.ProjectID),
		StorageBucket:     optional(fb.StorageBucket),
		MessagingSenderID: optional(fb.MessagingSenderID),
		AppID:             optional(fb.AppID),
	})
	if err != nil {
		return configScripts{}, err
	}

	collections, err := jsModule("COLLECTIONS", cfg.Collections)
	if err != nil {
		return configScripts{}, err
	}
	return configScripts{firebase: firebase, collections: collections}, nil
}

// jsModule は値をJSONにして `export const <name> = {...};` 形式のESモジュールを生成する。
func jsModule(name string, v any) ([]byte, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%s のシリアライズに失敗: %w", name, err)
	}
	return fmt.Appendf(nil, "export const %s = %s;", name, body), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// handleScript は生成済みのスクリプトを返すハンドラーを返す。
func (s *Server) handleScript(script []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, javascriptContentType, script)
	}
}
