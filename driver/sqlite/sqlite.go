// Package sqlite 基于 github.com/mattn/go-sqlite3 的嵌入式驱动
package sqlite

import (
	"database/sql"
	"strings"

	"github.com/hatlonely/webdb/cfg/def"
	"github.com/hatlonely/webdb/driver"
	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/ir"
	"github.com/hatlonely/webdb/ref"
	"github.com/hatlonely/webdb/types"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type Options struct {
	// Path 数据库文件路径，默认使用内存数据库
	Path string `cfg:"path" def:":memory:"`

	// Debug 建临时表
	Debug bool `cfg:"debug"`

	Logger *ref.TypeOptions `cfg:"logger"`

	Observe driver.ObserveOptions `cfg:"observe"`
}

type Driver struct {
	*driver.Base
	path string
}

func NewDriverWithOptions(options *Options) (*Driver, error) {
	if options == nil {
		options = &Options{}
	}
	if err := def.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "set default options failed")
	}

	db, err := sql.Open("sqlite3", options.Path)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrIO, "open %s failed: %v", options.Path, err)
	}

	base, err := driver.NewBaseWithOptions(db, Dialect{}, &driver.BaseOptions{
		Debug:   options.Debug,
		Logger:  options.Logger,
		Observe: options.Observe,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Driver{Base: base, path: options.Path}, nil
}

func (d *Driver) Path() string {
	return d.path
}

// Dialect sqlite 方言
type Dialect struct{}

func (Dialect) Name() string {
	return "sqlite"
}

func (Dialect) QuoteIdentifier(name string) string {
	return `"` + name + `"`
}

func (Dialect) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ColumnType 单列整数自增主键内联为 INTEGER PRIMARY KEY，成为 rowid 的别名
func (Dialect) ColumnType(column driver.ColumnDef) (string, bool, error) {
	switch column.Type {
	case types.Integer:
		if column.Autoincrement && column.SolePrimaryKey {
			return "INTEGER PRIMARY KEY", true, nil
		}
		return "INTEGER", false, nil
	case types.Float:
		return "REAL", false, nil
	case types.Boolean:
		return "BOOLEAN", false, nil
	case types.Text:
		return "TEXT", false, nil
	case types.Binary:
		return "BLOB", false, nil
	case types.Timestamp:
		return "TIMESTAMP", false, nil
	}
	return "", false, errs.Wrapf(errs.ErrType, "unknown column type %q", column.Type)
}

// UnmapType 按 sqlite 的类型亲和规则把声明类型映射回来
func (Dialect) UnmapType(declared string) types.NativeType {
	t := strings.ToUpper(declared)
	switch {
	case strings.Contains(t, "BOOL"):
		return types.Boolean
	case strings.Contains(t, "TIMESTAMP"), strings.Contains(t, "DATETIME"), strings.Contains(t, "DATE"):
		return types.Timestamp
	case strings.Contains(t, "INT"):
		return types.Integer
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return types.Text
	case strings.Contains(t, "BLOB"), t == "":
		return types.Binary
	}
	return types.Float
}

func (Dialect) Operators() map[ir.Tag]driver.Operator {
	return nil
}

func (Dialect) CreateTable(quotedTable string, definitions []string, temporary bool) string {
	create := "CREATE TABLE IF NOT EXISTS "
	if temporary {
		create = "CREATE TEMP TABLE IF NOT EXISTS "
	}
	return create + quotedTable + " (" + strings.Join(definitions, ", ") + ")"
}

func (Dialect) EmptyInsert(quotedTable string) string {
	return "INSERT INTO " + quotedTable + " DEFAULT VALUES"
}

func (Dialect) ListTablesSQL(includeTemporary bool) string {
	query := "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"
	if includeTemporary {
		query += " UNION ALL SELECT name FROM sqlite_temp_master WHERE type = 'table'"
	}
	return query
}

func (Dialect) ListColumnsSQL(quotedTable string) string {
	return "PRAGMA table_info(" + quotedTable + ")"
}

// ScanColumn PRAGMA table_info 的一行：cid, name, type, notnull, dflt_value, pk
func (d Dialect) ScanColumn(values []any) (driver.ColumnInfo, error) {
	if len(values) < 6 {
		return driver.ColumnInfo{}, errs.Wrapf(errs.ErrDatabase, "unexpected table_info row %v", values)
	}
	declared := driver.AsString(values[2])
	column := driver.ColumnInfo{
		Name:       driver.AsString(values[1]),
		Type:       d.UnmapType(declared),
		NotNull:    driver.AsInt(values[3]) != 0,
		PrimaryKey: int(driver.AsInt(values[5])),
	}
	if values[4] != nil {
		column.Default = unquoteDefault(driver.AsString(values[4]))
	}
	column.Autoincrement = column.PrimaryKey > 0 && strings.EqualFold(declared, "INTEGER")
	return column, nil
}

// unquoteDefault dflt_value 是默认值的 SQL 文本
func unquoteDefault(s string) any {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	if strings.EqualFold(s, "NULL") {
		return nil
	}
	return s
}

func (Dialect) TranslateError(err error, query string) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return errs.Wrapf(errs.ErrDatabase, "%v", err)
	}

	message := se.Error()
	switch se.Code {
	case sqlite3.ErrConstraint, sqlite3.ErrMismatch, sqlite3.ErrTooBig, sqlite3.ErrRange:
		return errs.Wrapf(errs.ErrValue, "%s", message)
	case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB, sqlite3.ErrReadonly, sqlite3.ErrPerm:
		return errs.Wrapf(errs.ErrIO, "%s", message)
	case sqlite3.ErrAuth:
		return errs.Wrapf(errs.ErrAuthentication, "%s", message)
	case sqlite3.ErrError:
		switch {
		case strings.Contains(message, "syntax error"), strings.Contains(message, "incomplete input"):
			return errs.NewSQLSyntaxError(query, message, syntaxOffset(query, message))
		case strings.HasPrefix(message, "no such column"),
			strings.Contains(message, "has no column named"),
			strings.HasPrefix(message, "no such table"):
			return errs.Wrapf(errs.ErrKey, "%s", message)
		}
	}
	return errs.Wrapf(errs.ErrDatabase, "%s", message)
}

// syntaxOffset 从 `near "X": syntax error` 中取出 X 在语句中的位置
func syntaxOffset(query string, message string) int {
	if strings.Contains(message, "incomplete input") {
		return len(query)
	}
	start := strings.Index(message, `near "`)
	if start < 0 {
		return -1
	}
	near := message[start+len(`near "`):]
	end := strings.LastIndex(near, `"`)
	if end < 0 {
		return -1
	}
	return strings.Index(query, near[:end])
}
