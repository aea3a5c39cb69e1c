package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const (
	// FirebaseJWKSURL はFirebase IDトークンの署名鍵を公開しているJWKSのURL。
	FirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	// firebaseIssuerPrefix にプロジェクトIDを連結したものがissになる。
	firebaseIssuerPrefix = "https://securetoken.google.com/"
	// maxSubjectLength はFirebaseのUIDの最大長。
	maxSubjectLength = 128
)

var tracer = otel.Tracer("github.com/finlife/finlife/internal/identity")

// FirebaseVerifier はFirebase AuthenticationのIDトークンを検証するTokenVerifier実装。
type FirebaseVerifier struct {
	verifier *oidc.IDTokenVerifier
	now      func() time.Time
}

// FirebaseOption はFirebaseVerifierの設定を変更する関数。
type FirebaseOption func(*firebaseOptions)

type firebaseOptions struct {
	keySet     oidc.KeySet
	httpClient *http.Client
	now        func() time.Time
}

// WithKeySet は署名鍵の取得元を差し替える。テストではoidc.StaticKeySetを渡す。
func WithKeySet(ks oidc.KeySet) FirebaseOption {
	return func(o *firebaseOptions) { o.keySet = ks }
}

// WithJWKSClient はJWKS取得に使うHTTPクライアントを設定する。
func WithJWKSClient(hc *http.Client) FirebaseOption {
	return func(o *firebaseOptions) { o.httpClient = hc }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) FirebaseOption {
	return func(o *firebaseOptions) { o.now = now }
}

// NewFirebaseVerifier はプロジェクトIDを対象とするFirebaseVerifierを生成する。
// 署名鍵はFirebaseJWKSURLから取得し、go-oidcがキャッシュする。
func NewFirebaseVerifier(projectID string, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	if projectID == "" {
		return nil, errors.New("プロジェクトIDが指定されていない")
	}

	o := firebaseOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	keySet := o.keySet
	if keySet == nil {
		// 鍵の取得はリクエストをまたいで行われるため、リクエストのコンテキストは使わない
		ctx := context.Background()
		if o.httpClient != nil {
			ctx = oidc.ClientContext(ctx, o.httpClient)
		}
		keySet = oidc.NewRemoteKeySet(ctx, FirebaseJWKSURL)
	}

	v := oidc.NewVerifier(firebaseIssuerPrefix+projectID, keySet, &oidc.Config{
		ClientID:             projectID,
		SupportedSigningAlgs: []string{oidc.RS256},
		Now:                  o.now,
	})
	return &FirebaseVerifier{verifier: v, now: o.now}, nil
}

// VerifyIDToken はIDトークンの署名・発行者・対象者・有効期限を検証してクレームを返す。
func (f *FirebaseVerifier) VerifyIDToken(ctx context.Context, rawToken string) (*Claims, error) {
	ctx, span := tracer.Start(ctx, "identity.Firebase.VerifyIDToken")
	defer span.End()

	claims, err := f.verify(ctx, rawToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return claims, nil
}

func (f *FirebaseVerifier) verify(ctx context.Context, rawToken string) (*Claims, error) {
	tok, err := f.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("IDトークンの検証に失敗: %w", err)
	}

	var c Claims
	if err := tok.Claims(&c); err != nil {
		return nil, fmt.Errorf("クレームの読み込みに失敗: %w", err)
	}
	c.Subject = tok.Subject

	if c.Subject == "" {
		return nil, errors.New("subクレームが空")
	}
	if len(c.Subject) > maxSubjectLength {
		return nil, fmt.Errorf("subクレームが長すぎる: %d文字", len(c.Subject))
	}
	if c.AuthTime > f.now().Unix() {
		return nil, errors.New("auth_timeが未来の時刻")
	}
	return &c, nil
}
