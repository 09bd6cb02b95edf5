package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hatlonely/webdb/cfg/storage"
	"github.com/hatlonely/webdb/log/writer"
	"github.com/hatlonely/webdb/ref"
)

func init() {
	ref.MustRegisterT[*SLog](NewSLogWithOptions)
}

// SLogOptions 日志初始化选项
type SLogOptions struct {
	// 日志级别：debug, info, warn, error
	Level string `cfg:"level" def:"info" validate:"omitempty,oneof=debug info warn warning error"`

	// 输出格式：text, json
	Format string `cfg:"format" def:"text" validate:"omitempty,oneof=text json"`

	// 输出目标，为空时输出到 stderr
	Output *ref.TypeOptions `cfg:"output"`

	// 是否显示调用者信息
	AddSource bool `cfg:"addSource"`

	// 每条日志都带上的字段
	Fields map[string]any `cfg:"fields"`
}

type SLog struct {
	slogger *slog.Logger
}

func NewSLogWithOptions(options *SLogOptions) (*SLog, error) {
	if options == nil {
		options = &SLogOptions{}
	}

	var w io.Writer
	if options.Output != nil && options.Output.Type != "" {
		namespace := options.Output.Namespace
		if namespace == "" {
			namespace = "github.com/hatlonely/webdb/log/writer"
		}
		obj, err := ref.New(namespace, options.Output.Type, storage.Normalize(options.Output.Options))
		if err != nil {
			return nil, fmt.Errorf("failed to create writer: %w", err)
		}
		ww, ok := obj.(writer.Writer)
		if !ok {
			return nil, fmt.Errorf("%T does not implement Writer interface", obj)
		}
		w = ww
	} else {
		ww, err := writer.NewConsoleWriterWithOptions(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create default console writer: %w", err)
		}
		w = ww
	}

	return NewSLogWithWriter(options, w)
}

// NewSLogWithWriter 使用指定的 io.Writer 作为输出，忽略 options.Output
func NewSLogWithWriter(options *SLogOptions, w io.Writer) (*SLog, error) {
	if options == nil {
		options = &SLogOptions{}
	}

	level, err := parseLevel(options.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: options.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(options.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	case "text", "":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("unsupported format: %s", options.Format)
	}

	slogger := slog.New(handler)
	if len(options.Fields) > 0 {
		args := make([]any, 0, len(options.Fields)*2)
		for k, v := range options.Fields {
			args = append(args, k, v)
		}
		slogger = slogger.With(args...)
	}

	return &SLog{slogger: slogger}, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level: %s", level)
	}
}

func (l *SLog) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

func (l *SLog) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

func (l *SLog) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

func (l *SLog) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

func (l *SLog) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, args...)
}

func (l *SLog) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, args...)
}

func (l *SLog) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, args...)
}

func (l *SLog) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, args...)
}

func (l *SLog) With(args ...any) Logger {
	return &SLog{slogger: l.slogger.With(args...)}
}
