// Package mysql 基于 github.com/go-sql-driver/mysql 的客户端/服务端驱动
package mysql

import (
	"database/sql"
	sqldriver "database/sql/driver"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/webdb/cfg/def"
	"github.com/hatlonely/webdb/cfg/validator"
	"github.com/hatlonely/webdb/driver"
	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/ir"
	"github.com/hatlonely/webdb/ref"
	"github.com/hatlonely/webdb/types"
	"github.com/pkg/errors"
)

type Options struct {
	Database string        `cfg:"database" validate:"required,identifier"`
	User     string        `cfg:"user" def:"root"`
	Password string        `cfg:"password"`
	Host     string        `cfg:"host" def:"localhost"`
	Port     int           `cfg:"port" def:"3306" validate:"min=1,max=65535"`
	Engine   string        `cfg:"engine" def:"InnoDB" validate:"identifier"`
	Charset  string        `cfg:"charset" def:"utf8mb4" validate:"identifier"`
	Timeout  time.Duration `cfg:"timeout" def:"5s"`

	// Debug 建临时表
	Debug bool `cfg:"debug"`

	Logger *ref.TypeOptions `cfg:"logger"`

	Observe driver.ObserveOptions `cfg:"observe"`
}

type Driver struct {
	*driver.Base
}

func NewDriverWithOptions(options *Options) (*Driver, error) {
	if options == nil {
		options = &Options{}
	}
	if err := def.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "set default options failed")
	}
	if err := validator.ValidateStruct(options); err != nil {
		return nil, errs.Wrapf(errs.ErrValue, "invalid mysql options: %v", err)
	}

	connector, err := mysql.NewConnector(NewConfig(options))
	if err != nil {
		return nil, errs.Wrapf(errs.ErrValue, "invalid mysql config: %v", err)
	}
	db := sql.OpenDB(connector)

	base, err := driver.NewBaseWithOptions(db, Dialect{Engine: options.Engine, Charset: options.Charset}, &driver.BaseOptions{
		Debug:   options.Debug,
		Logger:  options.Logger,
		Observe: options.Observe,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Driver{Base: base}, nil
}

// NewConfig 时间按 UTC 解析成 time.Time
func NewConfig(options *Options) *mysql.Config {
	config := mysql.NewConfig()
	config.User = options.User
	config.Passwd = options.Password
	config.Net = "tcp"
	config.Addr = net.JoinHostPort(options.Host, strconv.Itoa(options.Port))
	config.DBName = options.Database
	config.ParseTime = true
	config.Loc = time.UTC
	config.Timeout = options.Timeout
	config.Params = map[string]string{"charset": options.Charset}
	return config
}

// Dialect mysql 方言
type Dialect struct {
	Engine  string
	Charset string
}

func (Dialect) Name() string {
	return "mysql"
}

func (Dialect) QuoteIdentifier(name string) string {
	return "`" + name + "`"
}

func (Dialect) QuoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (Dialect) ColumnType(column driver.ColumnDef) (string, bool, error) {
	switch column.Type {
	case types.Integer:
		if column.Autoincrement {
			return "BIGINT AUTO_INCREMENT", false, nil
		}
		return "BIGINT", false, nil
	case types.Float:
		return "DOUBLE", false, nil
	case types.Boolean:
		return "TINYINT(1)", false, nil
	case types.Text:
		length := column.MaxLength
		if length <= 0 {
			length = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", length), false, nil
	case types.Binary:
		return "BLOB", false, nil
	case types.Timestamp:
		return "DATETIME", false, nil
	}
	return "", false, errs.Wrapf(errs.ErrType, "unknown column type %q", column.Type)
}

func (Dialect) UnmapType(declared string) types.NativeType {
	t := strings.ToLower(declared)
	switch {
	case strings.HasPrefix(t, "tinyint(1)"), strings.HasPrefix(t, "bool"):
		return types.Boolean
	case strings.Contains(t, "int"):
		return types.Integer
	case strings.Contains(t, "char"), strings.Contains(t, "text"), strings.HasPrefix(t, "enum"), strings.HasPrefix(t, "set"):
		return types.Text
	case strings.Contains(t, "blob"), strings.Contains(t, "binary"):
		return types.Binary
	case strings.HasPrefix(t, "datetime"), strings.HasPrefix(t, "timestamp"), strings.HasPrefix(t, "date"):
		return types.Timestamp
	}
	return types.Float
}

// Operators mysql 的 IS 只接受布尔值和 NULL，相等比较使用 NULL 安全的 <=>
func (d Dialect) Operators() map[ir.Tag]driver.Operator {
	trim := func(position string) driver.Operator {
		return driver.Operator{MinArgs: 1, MaxArgs: 2, Format: func(a []string) (string, error) {
			if len(a) == 1 {
				return fmt.Sprintf("TRIM(%s FROM %s)", position, a[0]), nil
			}
			return fmt.Sprintf("TRIM(%s %s FROM %s)", position, a[1], a[0]), nil
		}}
	}

	return map[ir.Tag]driver.Operator{
		ir.Equal: driver.Infix("<=>"),
		ir.NotEqual: {MinArgs: 2, MaxArgs: 2, Format: func(a []string) (string, error) {
			return fmt.Sprintf("NOT (%s <=> %s)", a[0], a[1]), nil
		}},
		ir.Concatenate: driver.Function("CONCAT", 2, 2),
		ir.FloorDivide: driver.Infix("DIV"),
		ir.Length:      driver.Function("CHAR_LENGTH", 1, 1),
		ir.LStrip:      trim("LEADING"),
		ir.Strip:       trim("BOTH"),
		ir.RStrip:      trim("TRAILING"),
		ir.Glob:        driver.Unsupported(d.Name(), ir.Glob),
		ir.Greatest:    driver.Function("GREATEST", 2, -1),
	}
}

func (d Dialect) CreateTable(quotedTable string, definitions []string, temporary bool) string {
	create := "CREATE TABLE IF NOT EXISTS "
	if temporary {
		create = "CREATE TEMPORARY TABLE IF NOT EXISTS "
	}
	return fmt.Sprintf("%s%s (%s) ENGINE=%s DEFAULT CHARSET=%s", create, quotedTable, strings.Join(definitions, ", "), d.Engine, d.Charset)
}

func (Dialect) EmptyInsert(quotedTable string) string {
	return "INSERT INTO " + quotedTable + " () VALUES ()"
}

// ListTablesSQL SHOW TABLES 不包含临时表，mysql 没有列出临时表的方式
func (Dialect) ListTablesSQL(bool) string {
	return "SHOW TABLES"
}

func (Dialect) ListColumnsSQL(quotedTable string) string {
	return "SHOW COLUMNS FROM " + quotedTable
}

// ScanColumn SHOW COLUMNS 的一行：Field, Type, Null, Key, Default, Extra
// SHOW COLUMNS 不给出主键列的顺序，按列的顺序编号
func (d Dialect) ScanColumn(values []any) (driver.ColumnInfo, error) {
	if len(values) < 6 {
		return driver.ColumnInfo{}, errs.Wrapf(errs.ErrDatabase, "unexpected show columns row %v", values)
	}
	column := driver.ColumnInfo{
		Name:          driver.AsString(values[0]),
		Type:          d.UnmapType(driver.AsString(values[1])),
		NotNull:       strings.EqualFold(driver.AsString(values[2]), "NO"),
		Autoincrement: strings.Contains(strings.ToLower(driver.AsString(values[5])), "auto_increment"),
	}
	if values[4] != nil {
		column.Default = driver.AsString(values[4])
	}
	if strings.EqualFold(driver.AsString(values[3]), "PRI") {
		column.PrimaryKey = 1
	}
	return column, nil
}

var nearRegex = regexp.MustCompile(`near '((?s).*)' at line \d+`)

func (Dialect) TranslateError(err error, query string) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1044, 1045, 1698:
			return errs.Wrapf(errs.ErrAuthentication, "%s", me.Message)
		case 1049:
			return errs.Wrapf(errs.ErrIO, "%s", me.Message)
		case 1048, 1062, 1292, 1364, 1366, 1406, 1452, 1451:
			return errs.Wrapf(errs.ErrValue, "%s", me.Message)
		case 1054, 1146:
			return errs.Wrapf(errs.ErrKey, "%s", me.Message)
		case 1064, 1149:
			return errs.NewSQLSyntaxError(query, me.Message, syntaxOffset(query, me.Message))
		}
		return errs.Wrapf(errs.ErrDatabase, "%s", me.Error())
	}

	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sqldriver.ErrBadConn) {
		return errs.Wrapf(errs.ErrIO, "%v", err)
	}
	return errs.Wrapf(errs.ErrDatabase, "%v", err)
}

// syntaxOffset 从 `near '...' at line N` 中取出片段在语句中的位置
func syntaxOffset(query string, message string) int {
	match := nearRegex.FindStringSubmatch(message)
	if match == nil {
		return -1
	}
	if match[1] == "" {
		return len(query)
	}
	return strings.Index(query, match[1])
}
