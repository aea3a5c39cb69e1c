package identity

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/sync/singleflight"

	"github.com/finlife/finlife/pkg/httpclient"
)

const (
	// DefaultTokenURI はサービスアカウントにtoken_uriが無い場合のトークンエンドポイント。
	DefaultTokenURI = "https://oauth2.googleapis.com/token"
	// DatastoreScope はFirestoreへのアクセスに必要なOAuth2スコープ。
	DatastoreScope = "https://www.googleapis.com/auth/datastore"

	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime  = time.Hour
	// refreshMargin だけ有効期限より前にトークンを取り直す。
	refreshMargin = time.Minute
)

// ServiceAccount はGoogleのサービスアカウントキー（JSON）の必要な項目。
type ServiceAccount struct {
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// DecodeServiceAccount はbase64エンコードされたサービスアカウントJSONを読み込む。
func DecodeServiceAccount(encoded string) (*ServiceAccount, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("サービスアカウントのbase64デコードに失敗: %w", err)
	}

	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("サービスアカウントJSONの解析に失敗: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, errors.New("サービスアカウントにclient_emailまたはprivate_keyがない")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = DefaultTokenURI
	}
	return &sa, nil
}

// RSAKey はPEM形式の秘密鍵を読み込む。PKCS#8とPKCS#1に対応する。
func (sa *ServiceAccount) RSAKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(sa.PrivateKey))
	if block == nil {
		return nil, errors.New("秘密鍵のPEMデコードに失敗")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("RSA以外の秘密鍵: %T", key)
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("秘密鍵の解析に失敗: %w", err)
	}
	return key, nil
}

// TokenSource はサービスアカウントのJWTアサーションをOAuth2アクセストークンに交換する。
// 取得したトークンは有効期限の1分前までキャッシュする。
// 同時に期限切れを検知した呼び出しは1回の取得を共有する。
type TokenSource struct {
	account *ServiceAccount
	signer  jose.Signer
	client  *httpclient.Client
	scope   string
	now     func() time.Time
	group   singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// NewTokenSource は新しいTokenSourceを生成する。
// optsはトークンエンドポイント呼び出しに使うhttpclientに渡される。
func NewTokenSource(sa *ServiceAccount, scope string, opts ...httpclient.Option) (*TokenSource, error) {
	key, err := sa.RSAKey()
	if err != nil {
		return nil, err
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: key, KeyID: sa.PrivateKeyID}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("署名器の生成に失敗: %w", err)
	}

	return &TokenSource{
		account: sa,
		signer:  signer,
		client:  httpclient.New(sa.TokenURI, opts...),
		scope:   scope,
		now:     time.Now,
	}, nil
}

// Token は有効なアクセストークンを返す。
// キャッシュが切れている場合だけトークンエンドポイントを呼び出す。
// 取得中でもctxがキャンセルされればctx.Err()を返す。
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := ts.cached(); ok {
		return token, nil
	}

	ch := ts.group.DoChan("token", func() (any, error) {
		if token, ok := ts.cached(); ok {
			return token, nil
		}
		// 最初の呼び出し元がキャンセルしても共有の取得は続ける
		return ts.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

// cached はキャッシュが有効な場合にトークンを返す。
func (ts *TokenSource) cached() (string, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && ts.now().Before(ts.expiry.Add(-refreshMargin)) {
		return ts.token, true
	}
	return "", false
}

// refresh はトークンエンドポイントから新しいトークンを取得してキャッシュする。
func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	now := ts.now()
	assertion, err := ts.assertion(now)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type": {jwtBearerGrantType},
		"assertion":  {assertion},
	}
	var resp tokenResponse
	if err := ts.client.PostForm(ctx, "", form, &resp); err != nil {
		return "", fmt.Errorf("アクセストークンの取得に失敗: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("トークンエンドポイントがaccess_tokenを返さなかった")
	}

	lifetime := time.Duration(resp.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = assertionLifetime
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = resp.AccessToken
	ts.expiry = now.Add(lifetime)
	return ts.token, nil
}

// assertion はトークンエンドポイントに送るJWTアサーションを生成する。
func (ts *TokenSource) assertion(now time.Time) (string, error) {
	claims := josejwt.Claims{
		Issuer:   ts.account.ClientEmail,
		Audience: josejwt.Audience{ts.account.TokenURI},
		IssuedAt: josejwt.NewNumericDate(now),
		Expiry:   josejwt.NewNumericDate(now.Add(assertionLifetime)),
	}
	signed, err := josejwt.Signed(ts.signer).
		Claims(claims).
		Claims(map[string]any{"scope": ts.scope}).
		Serialize()
	if err != nil {
		return "", fmt.Errorf("アサーションの署名に失敗: %w", err)
	}
	return signed, nil
}
