package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finlife/finlife/internal/apperr"
)

// Claims は検証済みIDトークンから取り出したクレーム。保存はしない。
type Claims struct {
	// Subject はユーザーのUID（subクレーム）。
	Subject string `json:"sub"`
	// Email はメールアドレス。トークンに含まれない場合は空。
	Email string `json:"email,omitempty"`
	// EmailVerified はメールアドレスが確認済みかどうか。
	EmailVerified bool `json:"email_verified"`
	// Name は表示名。
	Name string `json:"name,omitempty"`
	// Picture はプロフィール画像のURL。
	Picture string `json:"picture,omitempty"`
	// AuthTime はユーザーが認証した時刻（Unix秒）。
	AuthTime int64 `json:"auth_time"`
}

// TokenVerifier はIDトークンを検証するインターフェース。
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, rawToken string) (*Claims, error)
}

// UnavailableVerifier は検証器を初期化できなかった場合のTokenVerifier実装。
type UnavailableVerifier struct{}

// VerifyIDToken は常に apperr.ErrUnavailable を返す。
func (UnavailableVerifier) VerifyIDToken(context.Context, string) (*Claims, error) {
	return nil, fmt.Errorf("IDトークン検証器が初期化されていない: %w", apperr.ErrUnavailable)
}

// Adapter はTokenVerifierを1回呼び出し、結果をクレームの有無に正規化する。
type Adapter struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewAdapter は新しいAdapterを生成する。
func NewAdapter(verifier TokenVerifier, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{verifier: verifier, logger: logger}
}

// Verify はIDトークンを検証する。
// 空のトークンは検証器を呼ばずに失敗とする。検証エラーはwarnで記録し、falseを返す。
func (a *Adapter) Verify(ctx context.Context, token string) (claims Claims, ok bool) {
	if token == "" {
		return Claims{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.ErrorContext(ctx, "IDトークン検証中にパニックが発生しました", slog.Any("panic", r))
			claims, ok = Claims{}, false
		}
	}()

	c, err := a.verifier.VerifyIDToken(ctx, token)
	if err != nil {
		a.logger.WarnContext(ctx, "IDトークンの検証に失敗しました", slog.String("error", err.Error()))
		return Claims{}, false
	}
	if c == nil || c.Subject == "" {
		a.logger.WarnContext(ctx, "IDトークンにsubクレームがありません")
		return Claims{}, false
	}
	return *c, true
}
