package profile

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/finlife/finlife/internal/apperr"
	"github.com/finlife/finlife/pkg/httpclient"
)

// FirestoreBaseURL はCloud Firestore REST APIのベースURL。
const FirestoreBaseURL = "https://firestore.googleapis.com/v1"

var tracer = otel.Tracer("github.com/finlife/finlife/internal/profile")

// simpleFieldPath はバッククォートで囲まずに使えるフィールド名。
var simpleFieldPath = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*$`)

// TokenSource はFirestore呼び出しに使うOAuth2アクセストークンを提供する。
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// FirestoreStore はCloud FirestoreのREST APIを使うStore実装。
type FirestoreStore struct {
	client     *httpclient.Client
	tokens     TokenSource
	projectID  string
	collection string
}

// NewFirestoreStore は新しいFirestoreStoreを生成する。
// clientにはFirestoreBaseURLを向いたクライアントを渡す。
func NewFirestoreStore(client *httpclient.Client, tokens TokenSource, projectID, collection string) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		tokens:     tokens,
		projectID:  projectID,
		collection: collection,
	}
}

// firestoreDocument はFirestore REST APIのドキュメント表現。
type firestoreDocument struct {
	Name       string         `json:"name,omitempty"`
	Fields     map[string]any `json:"fields"`
	CreateTime string         `json:"createTime,omitempty"`
	UpdateTime string         `json:"updateTime,omitempty"`
}

// Get はUIDに対応するドキュメントを取得する。
func (s *FirestoreStore) Get(ctx context.Context, uid string) (Document, error) {
	ctx, span := tracer.Start(ctx, "profile.Firestore.Get", trace.WithAttributes(
		attribute.String("firestore.collection", s.collection),
	))
	defer span.End()

	ctx, err := s.authorize(ctx)
	if err != nil {
		return nil, recordError(span, err)
	}

	var fd firestoreDocument
	if err := s.client.GetJSON(ctx, s.documentPath(uid), &fd); err != nil {
		if httpclient.IsStatus(err, http.StatusNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, recordError(span, fmt.Errorf("ドキュメントの取得に失敗: %w: %w", apperr.ErrUpstream, err))
	}

	doc, err := decodeFields(fd.Fields)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("ドキュメントの変換に失敗: %w: %w", apperr.ErrUpstream, err))
	}
	return doc, nil
}

// Merge はトップレベルのフィールドをドキュメントにマージする。
// updateMaskに指定したフィールドだけが書き換わり、それ以外は保持される。
func (s *FirestoreStore) Merge(ctx context.Context, uid string, fields Document) (Document, error) {
	if len(fields) == 0 {
		return nil, apperr.ErrMissingInput
	}

	ctx, span := tracer.Start(ctx, "profile.Firestore.Merge", trace.WithAttributes(
		attribute.String("firestore.collection", s.collection),
		attribute.Int("firestore.fields", len(fields)),
	))
	defer span.End()

	encoded, err := encodeFields(fields)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("%w: %w", apperr.ErrMissingInput, err))
	}

	ctx, err = s.authorize(ctx)
	if err != nil {
		return nil, recordError(span, err)
	}

	q := url.Values{}
	for _, k := range fields.Keys() {
		q.Add("updateMask.fieldPaths", quoteFieldPath(k))
	}

	var fd firestoreDocument
	path := s.documentPath(uid) + "?" + q.Encode()
	if err := s.client.PatchJSON(ctx, path, firestoreDocument{Fields: encoded}, &fd); err != nil {
		return nil, recordError(span, fmt.Errorf("ドキュメントの更新に失敗: %w: %w", apperr.ErrUpstream, err))
	}

	doc, err := decodeFields(fd.Fields)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("ドキュメントの変換に失敗: %w: %w", apperr.ErrUpstream, err))
	}
	return doc, nil
}

// authorize はアクセストークンを取得してコンテキストに設定する。
func (s *FirestoreStore) authorize(ctx context.Context) (context.Context, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return ctx, fmt.Errorf("アクセストークンの取得に失敗: %w: %w", apperr.ErrUpstream, err)
	}
	return httpclient.WithBearerToken(ctx, token), nil
}

// documentPath はドキュメントのREST APIパスを返す。
func (s *FirestoreStore) documentPath(uid string) string {
	return fmt.Sprintf("/projects/%s/databases/(default)/documents/%s/%s",
		url.PathEscape(s.projectID), url.PathEscape(s.collection), url.PathEscape(uid))
}

// quoteFieldPath はフィールド名をフィールドパスとして使える形式にする。
func quoteFieldPath(name string) string {
	if simpleFieldPath.MatchString(name) {
		return name
	}
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return "`" + r.Replace(name) + "`"
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
