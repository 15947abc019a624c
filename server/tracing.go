package server

import (
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewTracerProvider 按 exporter 构建：none 不导出，stdout / file 以 JSON 输出 span，file 按大小滚动
func NewTracerProvider(exporter, path, version string) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName("mazearena"),
			semconv.ServiceVersion(version),
		)),
	}

	var w io.Writer
	switch exporter {
	case "", "none":
	case "stdout":
		w = os.Stdout
	case "file":
		w = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		}
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", exporter)
	}
	if w != nil {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}
