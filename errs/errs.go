// Package errs 定义数据库层统一的错误分类
//
// 所有驱动都必须把底层客户端库的错误翻译成这里的错误类型，调用方通过
// errors.Is / errors.As 判断错误种类。
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNaming 标识符（表名、列名）包含非法字符
	ErrNaming = errors.New("naming error")
	// ErrUnknownDriver 驱动名未注册
	ErrUnknownDriver = errors.New("unknown driver")
	// ErrKey 列名不存在，或者按主键查找不到记录
	ErrKey = errors.New("key error")
	// ErrValue 值转换失败，或者被后端约束拒绝
	ErrValue = errors.New("value error")
	// ErrType 结构性误用，比如对没有主键的表按主键查询
	ErrType = errors.New("type error")
	// ErrAuthentication 后端拒绝了认证信息
	ErrAuthentication = errors.New("authentication error")
	// ErrIO 存储位置不可达
	ErrIO = errors.New("io error")
	// ErrSQLSyntax 生成的 SQL 语法错误，具体信息见 SQLSyntaxError
	ErrSQLSyntax = errors.New("sql syntax error")
	// ErrNotImplemented 明确未实现的路径
	ErrNotImplemented = errors.New("not implemented")
	// ErrDatabase 无法归类的后端错误
	ErrDatabase = errors.New("database error")
)

// Wrapf 在错误种类上附加上下文信息，保留 errors.Is 的判断能力
func Wrapf(kind error, format string, args ...any) error {
	return errors.WithMessagef(kind, format, args...)
}

// SQLSyntaxError 携带出错的 SQL 文本和出错位置
type SQLSyntaxError struct {
	SQL     string
	Offset  int
	Message string
}

// NewSQLSyntaxError offset 未知时传 -1
func NewSQLSyntaxError(sql string, message string, offset int) *SQLSyntaxError {
	return &SQLSyntaxError{SQL: sql, Message: message, Offset: offset}
}

func (e *SQLSyntaxError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("sql syntax error: %s, sql: %s", e.Message, e.SQL)
	}
	return fmt.Sprintf("sql syntax error at offset %d: %s, sql: %s", e.Offset, e.Message, e.SQL)
}

func (e *SQLSyntaxError) Is(target error) bool {
	return target == ErrSQLSyntax
}

// Near 返回 offset 之后的 SQL 片段，用于定位问题
func (e *SQLSyntaxError) Near() string {
	if e.Offset < 0 || e.Offset > len(e.SQL) {
		return ""
	}
	return e.SQL[e.Offset:]
}
