package log

import (
	"github.com/hatlonely/webdb/cfg/storage"
	"github.com/hatlonely/webdb/log/logger"
	"github.com/hatlonely/webdb/ref"
	"github.com/pkg/errors"
)

var defaultLogger logger.Logger

func init() {
	slog, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = slog
}

// Default 输出到 stderr 的 info 级别 text 日志
func Default() logger.Logger {
	return defaultLogger
}

// NewLoggerWithOptions 通过 ref 创建日志器，options 为 nil 时返回默认日志器
// Namespace 为空时使用 log/logger 包，Type 为空时使用 SLog
func NewLoggerWithOptions(options *ref.TypeOptions) (logger.Logger, error) {
	if options == nil {
		return Default(), nil
	}

	namespace, type_ := options.Namespace, options.Type
	if namespace == "" {
		namespace = "github.com/hatlonely/webdb/log/logger"
	}
	if type_ == "" {
		type_ = "SLog"
	}

	obj, err := ref.New(namespace, type_, storage.Normalize(options.Options))
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	l, ok := obj.(logger.Logger)
	if !ok {
		return nil, errors.Errorf("%T is not a Logger", obj)
	}
	return l, nil
}
