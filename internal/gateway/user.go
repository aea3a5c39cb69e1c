package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/finlife/finlife/internal/activity"
	"github.com/finlife/finlife/internal/apperr"
	"github.com/finlife/finlife/internal/profile"
	"github.com/finlife/finlife/pkg/event"
	"github.com/finlife/finlife/pkg/middleware"
)

// maxProfileBodyBytes はプロフィール更新リクエストのボディの上限。
const maxProfileBodyBytes = 1 << 20

// requireOwner はセッションのUIDとパスの:uidが一致しない場合に401を返すミドルウェア。
// 不一致の場合はストアに問い合わせない。
func (s *Server) requireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, data, ok := middleware.GetSession(c)
		if !ok || data.UID != c.Param("uid") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// handleGetProfile はプロフィールドキュメントを返すハンドラーを返す。
func (s *Server) handleGetProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := s.profiles.Get(c.Request.Context(), c.Param("uid"))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

// handleUpdateProfile はトップレベルのフィールドをプロフィールにマージするハンドラーを返す。
func (s *Server) handleUpdateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var fields profile.Document
		dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxProfileBodyBytes))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil || fields == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be a JSON object"})
			return
		}
		if len(fields) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No fields provided"})
			return
		}

		ctx := c.Request.Context()
		uid := c.Param("uid")
		doc, err := s.profiles.Merge(ctx, uid, fields)
		if err != nil {
			s.respondError(c, err)
			return
		}

		s.record(ctx, uid, event.TypeProfileUpdated, event.ProfileUpdatedData{Fields: fields.Keys()})
		c.JSON(http.StatusOK, doc)
	}
}

// handleListActivity はアクティビティログを新しい順に返すハンドラーを返す。
func (s *Server) handleListActivity() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := activity.DefaultLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
				return
			}
			limit = activity.ClampLimit(n)
		}

		events, err := s.activity.Recent(c.Request.Context(), c.Param("uid"), limit)
		if err != nil {
			s.respondError(c, errors.Join(apperr.ErrUnavailable, err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}
