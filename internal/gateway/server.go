package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/finlife/finlife/internal/activity"
	"github.com/finlife/finlife/internal/apperr"
	"github.com/finlife/finlife/internal/config"
	"github.com/finlife/finlife/internal/identity"
	"github.com/finlife/finlife/internal/profile"
	"github.com/finlife/finlife/pkg/middleware"
	"github.com/finlife/finlife/pkg/session"
)

const (
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 15 * time.Second
	// readinessTimeout は /readyz の各チェックの制限時間。
	readinessTimeout = 2 * time.Second
)

// TokenVerifier はIDトークンを検証し、成功時にクレームを返す。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (identity.Claims, bool)
}

// ReadinessCheck は依存先への疎通を確認する関数。
type ReadinessCheck func(ctx context.Context) error

// Deps はServerが使用する依存関係。起動時に一度だけ構築して渡す。
type Deps struct {
	// Config はアプリケーション設定。必須。
	Config *config.Config
	// Logger は構造化ロガー。nilの場合はslog.Default()を使う。
	Logger *slog.Logger
	// Verifier はIDトークン検証器。nilの場合はすべての検証が失敗する。
	Verifier TokenVerifier
	// Profiles はプロフィールドキュメントのストア。nilの場合はprofile.Unavailableを使う。
	Profiles profile.Store
	// Sessions はサーバー側セッションのストア。必須。
	Sessions session.Store
	// Activity はアクティビティログ。必須。
	Activity activity.Log
	// Metrics はPrometheusメトリクス。nilの場合は新しく生成する。
	Metrics *middleware.Metrics
	// ReadinessChecks は /readyz で確認する追加の依存先。セッションストアは常に確認する。
	ReadinessChecks map[string]ReadinessCheck
}

// Server はFinLifeのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router   *gin.Engine
	cfg      *config.Config
	logger   *slog.Logger
	verifier TokenVerifier
	profiles profile.Store
	sessions session.Store
	activity activity.Log
	metrics  *middleware.Metrics
	checks   map[string]ReadinessCheck
	// cookie はセッションCookieの設定。
	cookie middleware.SessionCookie
	// scripts は起動時に生成したフロントエンド向け設定スクリプト。
	scripts configScripts
	now     func() time.Time
}

// NewServer は新しいServerを生成する。
func NewServer(d Deps) (*Server, error) {
	if d.Config == nil {
		return nil, errors.New("設定が指定されていない")
	}
	if d.Sessions == nil {
		return nil, errors.New("セッションストアが指定されていない")
	}
	if d.Activity == nil {
		return nil, errors.New("アクティビティログが指定されていない")
	}

	s := &Server{
		cfg:      d.Config,
		logger:   d.Logger,
		verifier: d.Verifier,
		profiles: d.Profiles,
		sessions: d.Sessions,
		activity: d.Activity,
		metrics:  d.Metrics,
		checks:   map[string]ReadinessCheck{"session": d.Sessions.Ping},
		cookie: middleware.SessionCookie{
			Name:   d.Config.Session.CookieName,
			Secret: d.Config.SecretKey,
			TTL:    d.Config.Session.TTL,
			Secure: d.Config.SecureCookies(),
		},
		now: time.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.verifier == nil {
		s.verifier = identity.NewAdapter(identity.UnavailableVerifier{}, s.logger)
	}
	if s.profiles == nil {
		s.profiles = profile.Unavailable{}
	}
	if s.metrics == nil {
		s.metrics = middleware.NewMetrics()
	}
	for name, check := range d.ReadinessChecks {
		s.checks[name] = check
	}

	scripts, err := newConfigScripts(d.Config)
	if err != nil {
		return nil, err
	}
	s.scripts = scripts

	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(middleware.Recovery(s.logger))
	router.Use(otelgin.Middleware("finlife"))
	router.Use(s.metrics.Middleware())
	router.Use(middleware.RequestLogger(s.logger))
	router.Use(middleware.CORS(d.Config.AllowedOrigins()))
	router.Use(middleware.Session(s.sessions, s.cookie, s.logger))
	s.router = router

	s.setupRoutes()
	return s, nil
}

// Handler はHTTPハンドラーを返す。テストではhttptestから直接呼び出す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("HTTPサーバーを起動します", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("HTTPサーバーを停止します")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	// ページとフロントエンド向け設定
	s.setupPages()
	s.router.GET("/firebase-config.js", s.handleScript(s.scripts.firebase))
	s.router.GET("/collections.js", s.handleScript(s.scripts.collections))

	// 認証（セッションが無くてもアクセス可能）
	auth := s.router.Group("/api/auth")
	{
		auth.POST("/verify", s.handleVerify())
		auth.POST("/logout", s.handleLogout())
		auth.GET("/session", s.handleSession())
	}

	// ユーザー自身の資源（セッションのUIDとパスのUIDが一致する場合のみ）
	user := s.router.Group("/api/user/:uid")
	user.Use(s.requireOwner())
	{
		user.GET("", s.handleGetProfile())
		user.PUT("", s.handleUpdateProfile())
		user.GET("/activity", s.handleListActivity())
	}

	// 運用
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "finlife"})
	})
	s.router.GET("/readyz", s.handleReady())
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// handleReady は依存先への疎通を確認するハンドラーを返す。
func (s *Server) handleReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		failures := gin.H{}
		for name, check := range s.checks {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
			err := check(ctx)
			cancel()
			if err != nil {
				s.logger.WarnContext(c.Request.Context(), "依存先の疎通確認に失敗しました",
					slog.String("check", name), slog.String("error", err.Error()))
				failures[name] = err.Error()
			}
		}

		if len(failures) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": failures})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// respondError はエラーを分類してJSONで返す。
func (s *Server) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), "リクエストの処理に失敗しました",
			slog.String("path", c.Request.URL.Path), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": errorMessage(status)})
}

// errorMessage はステータスコードに対応するクライアント向けのメッセージを返す。
func errorMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Invalid request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusNotFound:
		return "User not found"
	case http.StatusBadGateway:
		return "Upstream unavailable"
	case http.StatusServiceUnavailable:
		return "Service unavailable"
	default:
		return "Internal server error"
	}
}

// nullable は空文字列をJSONのnullとして返す。
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
