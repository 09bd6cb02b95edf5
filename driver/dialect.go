package driver

import (
	"fmt"
	"strings"

	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/ir"
	"github.com/hatlonely/webdb/types"
)

// Dialect 各个后端的 SQL 方言差异
type Dialect interface {
	Name() string

	// QuoteIdentifier 传入的名字已经通过 ValidateIdentifier 校验
	QuoteIdentifier(name string) string
	QuoteString(s string) string

	// ColumnType 返回列类型片段，inline 为 true 表示类型中已经包含了主键声明
	ColumnType(column ColumnDef) (sqlType string, inline bool, err error)
	UnmapType(declared string) types.NativeType

	// Operators 覆盖 BaseOperators 中的同名操作符
	Operators() map[ir.Tag]Operator

	CreateTable(quotedTable string, definitions []string, temporary bool) string
	EmptyInsert(quotedTable string) string

	ListTablesSQL(includeTemporary bool) string
	ListColumnsSQL(quotedTable string) string
	ScanColumn(values []any) (ColumnInfo, error)

	// TranslateError 把客户端库的错误翻译成 errs 中的类型，sql 是出错的语句
	TranslateError(err error, sql string) error
}

// Operator 把已经渲染好的参数格式化成 SQL 片段，MaxArgs 小于 0 表示不限
type Operator struct {
	MinArgs int
	MaxArgs int
	Format  func(args []string) (string, error)
}

func fixed(n int, format func(a []string) string) Operator {
	return Operator{MinArgs: n, MaxArgs: n, Format: func(a []string) (string, error) {
		return format(a), nil
	}}
}

// Infix 二元中缀操作符
func Infix(op string) Operator {
	return fixed(2, func(a []string) string { return a[0] + " " + op + " " + a[1] })
}

// Prefix 一元前缀操作符
func Prefix(op string) Operator {
	return fixed(1, func(a []string) string { return op + a[0] })
}

// Function 函数调用形式，参数个数在 [min, max] 之间
func Function(name string, min int, max int) Operator {
	return Operator{MinArgs: min, MaxArgs: max, Format: func(a []string) (string, error) {
		return name + "(" + strings.Join(a, ", ") + ")", nil
	}}
}

// Unsupported 后端不支持的操作符，渲染时返回 ErrNotImplemented
func Unsupported(dialect string, tag ir.Tag) Operator {
	return Operator{MinArgs: 0, MaxArgs: -1, Format: func([]string) (string, error) {
		return "", errs.Wrapf(errs.ErrNotImplemented, "%s does not support %s", dialect, tag)
	}}
}

// BaseOperators 通用 SQL 的操作符表
// 相等比较使用 IS / IS NOT，和 NULL 比较时也能得到确定的结果
func BaseOperators() map[ir.Tag]Operator {
	return map[ir.Tag]Operator{
		ir.Equal:        Infix("IS"),
		ir.NotEqual:     Infix("IS NOT"),
		ir.LessThan:     Infix("<"),
		ir.LessEqual:    Infix("<="),
		ir.GreaterThan:  Infix(">"),
		ir.GreaterEqual: Infix(">="),

		ir.Add:         Infix("+"),
		ir.Concatenate: Infix("||"),
		ir.Subtract:    Infix("-"),
		ir.Multiply:    Infix("*"),
		ir.Divide:      Infix("/"),
		ir.FloorDivide: fixed(2, func(a []string) string { return fmt.Sprintf("CAST(%s / %s AS INTEGER)", a[0], a[1]) }),
		ir.Modulo:      Infix("%"),

		ir.And: Infix("AND"),
		ir.Or:  Infix("OR"),
		ir.Not: Prefix("NOT "),

		ir.Negative: Prefix("-"),
		ir.Abs:      Function("ABS", 1, 1),
		ir.Length:   Function("LENGTH", 1, 1),
		ir.Upper:    Function("UPPER", 1, 1),
		ir.Lower:    Function("LOWER", 1, 1),

		ir.Ascend:  fixed(1, func(a []string) string { return a[0] + " ASC" }),
		ir.Descend: fixed(1, func(a []string) string { return a[0] + " DESC" }),

		ir.Sum:     Function("SUM", 1, 1),
		ir.Average: Function("AVG", 1, 1),
		ir.Min:     Function("MIN", 1, 1),
		ir.Max:     Function("MAX", 1, 1),
		ir.Round:   Function("ROUND", 1, 2),

		ir.Like: {MinArgs: 2, MaxArgs: 3, Format: func(a []string) (string, error) {
			if len(a) == 3 {
				return fmt.Sprintf("%s LIKE %s ESCAPE %s", a[0], a[1], a[2]), nil
			}
			return a[0] + " LIKE " + a[1], nil
		}},
		ir.Glob:      Infix("GLOB"),
		ir.LStrip:    Function("LTRIM", 1, 2),
		ir.Strip:     Function("TRIM", 1, 2),
		ir.RStrip:    Function("RTRIM", 1, 2),
		ir.Replace:   Function("REPLACE", 3, 3),
		ir.Substring: Function("SUBSTR", 2, 3),

		ir.Coalesce: Function("COALESCE", 1, -1),
		ir.Greatest: Function("MAX", 2, -1),
		ir.Between: fixed(3, func(a []string) string {
			return fmt.Sprintf("%s BETWEEN %s AND %s", a[0], a[1], a[2])
		}),
	}
}
