package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/finlife/finlife/pkg/session"
)

// sessionIssuer はセッションCookieのissクレーム。
const sessionIssuer = "finlife"

// コンテキストキー
const (
	contextKeySessionID   = "session_id"
	contextKeySessionData = "session_data"
)

// SessionClaims はセッションCookieに格納するJWTのクレーム。
// Cookieにはセッションidだけを持たせ、ユーザー情報はStore側に置く。
type SessionClaims struct {
	jwt.RegisteredClaims
	// SessionID はStoreのキーとなるセッションID。
	SessionID string `json:"sid"`
}

// SessionCookie はセッションCookieの設定。
type SessionCookie struct {
	// Name はCookie名。
	Name string
	// Secret はHS256署名に使う秘密鍵。
	Secret string
	// TTL はCookieとセッションの有効期間。
	TTL time.Duration
	// Secure はHTTPSでのみCookieを送信させるかどうか。
	Secure bool

	now func() time.Time
}

func (sc SessionCookie) clock() time.Time {
	if sc.now != nil {
		return sc.now()
	}
	return time.Now()
}

// Issue はセッションIDを格納した署名付きトークンを生成する。
func (sc SessionCookie) Issue(sessionID string) (string, error) {
	now := sc.clock()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sc.TTL)),
		},
		SessionID: sessionID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(sc.Secret))
	if err != nil {
		return "", fmt.Errorf("セッショントークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Parse は署名付きトークンを検証し、クレームを返す。
func (sc SessionCookie) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(sc.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(sc.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("セッショントークンの検証に失敗: %w", err)
	}
	if !token.Valid || claims.SessionID == "" {
		return nil, errors.New("セッショントークンが無効")
	}
	return claims, nil
}

// Set はセッションIDを格納したCookieをレスポンスに設定する。
func (sc SessionCookie) Set(c *gin.Context, sessionID string) error {
	token, err := sc.Issue(sessionID)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sc.Name, token, int(sc.TTL.Seconds()), "/", "", sc.Secure, true)
	return nil
}

// Clear はセッションCookieを削除する。
func (sc SessionCookie) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sc.Name, "", -1, "/", "", sc.Secure, true)
}

// Session はセッションCookieを読み込み、有効なセッションをコンテキストに設定するGinミドルウェアを返す。
// セッションが無くてもリクエストは中断しない。認可の判断は各ハンドラーが行う。
// 発行から有効期間の半分を過ぎたセッションはStoreの期限を延長し、Cookieを再発行する。
func Session(store session.Store, cookie SessionCookie, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		raw, err := c.Cookie(cookie.Name)
		if err != nil || raw == "" {
			c.Next()
			return
		}

		claims, err := cookie.Parse(raw)
		if err != nil {
			cookie.Clear(c)
			c.Next()
			return
		}

		ctx := c.Request.Context()
		data, err := store.Get(ctx, claims.SessionID)
		if err != nil {
			logger.WarnContext(ctx, "セッションの取得に失敗しました", slog.String("error", err.Error()))
			c.Next()
			return
		}
		if data == nil {
			cookie.Clear(c)
			c.Next()
			return
		}

		c.Set(contextKeySessionID, claims.SessionID)
		c.Set(contextKeySessionData, data)

		if claims.IssuedAt != nil && cookie.clock().Sub(claims.IssuedAt.Time) > cookie.TTL/2 {
			if err := store.Touch(ctx, claims.SessionID, cookie.TTL); err != nil {
				logger.WarnContext(ctx, "セッションの延長に失敗しました", slog.String("error", err.Error()))
			} else if err := cookie.Set(c, claims.SessionID); err != nil {
				logger.WarnContext(ctx, "セッションCookieの再発行に失敗しました", slog.String("error", err.Error()))
			}
		}
		c.Next()
	}
}

// GetSession はGinコンテキストからセッションを取得する。
// Sessionミドルウェアが事前に適用されている必要がある。
func GetSession(c *gin.Context) (string, *session.Data, bool) {
	id := c.GetString(contextKeySessionID)
	v, ok := c.Get(contextKeySessionData)
	if !ok || id == "" {
		return "", nil, false
	}
	data, ok := v.(*session.Data)
	if !ok || data == nil {
		return "", nil, false
	}
	return id, data, true
}

// ForgetSession はコンテキストからセッションを取り除く。
// ハンドラーがセッションを削除した後に後続の処理が古いセッションを参照しないようにする。
func ForgetSession(c *gin.Context) {
	c.Set(contextKeySessionID, "")
	c.Set(contextKeySessionData, (*session.Data)(nil))
}
