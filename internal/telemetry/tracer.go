package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// TracerConfig はトレーサーの設定。
type TracerConfig struct {
	// ServiceVersion はリソース属性に付与するバージョン。
	ServiceVersion string
	// Environment はリソース属性に付与する実行環境名。
	Environment string
	// OTLPEndpoint はOTLP gRPCの送信先。空の場合はスパンを送信しない。
	OTLPEndpoint string
}

// TracerProvider はシャットダウン可能なトレーサープロバイダー。
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// InitTracer はトレーサープロバイダーを初期化してグローバルに設定する。
// 返り値のShutdownはアプリケーション終了時に呼び出す必要がある。
func InitTracer(ctx context.Context, cfg TracerConfig) (*TracerProvider, error) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("finlife"),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	)

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("OTLPエクスポーターの作成に失敗: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider}, nil
}

// Shutdown は未送信のスパンを送信してプロバイダーを停止する。
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}
