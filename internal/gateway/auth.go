package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finlife/finlife/pkg/event"
	"github.com/finlife/finlife/pkg/middleware"
	"github.com/finlife/finlife/pkg/session"
)

// maxVerifyBodyBytes はIDトークン検証リクエストのボディの上限。
const maxVerifyBodyBytes = 1 << 20

// verifyRequest はPOST /api/auth/verify のリクエストボディ。
type verifyRequest struct {
	IDToken string `json:"idToken"`
}

// handleVerify はIDトークンを検証してセッションを開始するハンドラーを返す。
// 検証に失敗した場合は、リクエストが持っていたセッションも破棄する。
func (s *Server) handleVerify() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyRequest
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxVerifyBodyBytes)
		if err := c.ShouldBindJSON(&req); err != nil || req.IDToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No token provided"})
			return
		}

		ctx := c.Request.Context()
		claims, ok := s.verifier.Verify(ctx, req.IDToken)
		s.metrics.ObserveVerification(ok)
		if !ok {
			s.discardSession(c)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		// 検証に成功したら必ず新しいセッションIDを払い出す
		s.dropSession(c)
		data := &session.Data{
			UID:       claims.Subject,
			Email:     claims.Email,
			CreatedAt: s.now().Unix(),
		}
		id, err := s.sessions.Create(ctx, data, s.cookie.TTL)
		if err != nil {
			s.logger.ErrorContext(ctx, "セッションの作成に失敗しました", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
			return
		}
		if err := s.cookie.Set(c, id); err != nil {
			s.logger.ErrorContext(ctx, "セッションCookieの発行に失敗しました", slog.String("error", err.Error()))
			if delErr := s.sessions.Delete(ctx, id); delErr != nil {
				s.logger.WarnContext(ctx, "セッションの削除に失敗しました", slog.String("error", delErr.Error()))
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		s.record(ctx, claims.Subject, event.TypeSessionStarted, event.SessionStartedData{
			Email:      claims.Email,
			UserAgent:  c.Request.UserAgent(),
			RemoteAddr: c.ClientIP(),
		})

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"uid":     claims.Subject,
			"email":   nullable(claims.Email),
		})
	}
}

// handleLogout はセッションを終了するハンドラーを返す。
// セッションが無い場合も成功を返す。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, data, ok := middleware.GetSession(c); ok {
			s.record(ctx, data.UID, event.TypeSessionEnded, event.SessionEndedData{
				DurationSeconds: max(s.now().Unix()-data.CreatedAt, 0),
			})
		}
		s.discardSession(c)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// handleSession は現在のセッションの状態を返すハンドラーを返す。
func (s *Server) handleSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, data, ok := middleware.GetSession(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"authenticated": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"authenticated": true,
			"uid":           data.UID,
			"email":         nullable(data.Email),
		})
	}
}

// discardSession はリクエストのセッションを削除してCookieを消す。
func (s *Server) discardSession(c *gin.Context) {
	s.dropSession(c)
	s.cookie.Clear(c)
}

// dropSession はリクエストのセッションをストアから削除する。Cookieは変更しない。
func (s *Server) dropSession(c *gin.Context) {
	id, _, ok := middleware.GetSession(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := s.sessions.Delete(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "セッションの削除に失敗しました", slog.String("error", err.Error()))
	}
	middleware.ForgetSession(c)
}

// record はアクティビティログにイベントを記録する。
// 記録の失敗はログに残すだけで、レスポンスには影響させない。
func (s *Server) record(ctx context.Context, uid string, eventType event.Type, data any) {
	e, err := event.NewUserEvent(uid, eventType, data)
	if err != nil {
		s.logger.WarnContext(ctx, "イベントの生成に失敗しました", slog.String("error", err.Error()))
		return
	}
	if err := s.activity.Record(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "アクティビティの記録に失敗しました",
			slog.String("uid", uid), slog.String("event_type", string(eventType)), slog.String("error", err.Error()))
	}
}
