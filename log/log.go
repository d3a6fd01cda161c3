package log

import (
	"context"
	"sync/atomic"
)

// Logger 日志接口
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

var defaultLogger atomic.Value

func init() {
	// 默认输出到 stderr，info 级别，text 格式
	l, err := NewLoggerWithOptions(&Options{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger.Store(holder{l})
}

type holder struct {
	Logger
}

// Default 获取全局默认日志器
func Default() Logger {
	return defaultLogger.Load().(holder).Logger
}

// SetDefault 设置全局默认日志器，nil 忽略
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger.Store(holder{l})
	}
}
