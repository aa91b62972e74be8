// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

var base zerolog.Logger

// Init 初始化全局日志记录器，所有日志都会带上服务名。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = time.RFC3339
	base = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	log.Logger = base
}

// Logger 返回全局日志记录器。
func Logger() *zerolog.Logger {
	return &base
}

// Ctx 返回一个带有链路追踪信息的日志记录器。
// 如果上下文中存在有效的 Span，日志会自动附带 trace_id，方便与 Jaeger 关联排查。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := base
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With().Str("trace_id", sc.TraceID().String()).Logger()
	}
	return &l
}
