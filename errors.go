package webdb

import "github.com/hatlonely/webdb/errs"

// 错误种类，用 errors.Is 判断
var (
	ErrNaming         = errs.ErrNaming
	ErrUnknownDriver  = errs.ErrUnknownDriver
	ErrKey            = errs.ErrKey
	ErrValue          = errs.ErrValue
	ErrType           = errs.ErrType
	ErrAuthentication = errs.ErrAuthentication
	ErrIO             = errs.ErrIO
	ErrSQLSyntax      = errs.ErrSQLSyntax
	ErrNotImplemented = errs.ErrNotImplemented
	ErrDatabase       = errs.ErrDatabase
)

// SQLSyntaxError 用 errors.As 取出出错的 SQL 和位置
type SQLSyntaxError = errs.SQLSyntaxError
