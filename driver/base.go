package driver

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/ir"
	"github.com/hatlonely/webdb/log"
	"github.com/hatlonely/webdb/log/logger"
	"github.com/hatlonely/webdb/ref"
	"github.com/pkg/errors"
)

type BaseOptions struct {
	// Debug 建临时表，列出表时包含临时表
	Debug bool `cfg:"debug"`

	// Logger 为空时使用 log.Default()
	Logger *ref.TypeOptions `cfg:"logger"`

	Observe ObserveOptions `cfg:"observe"`
}

// Base 通用驱动实现
//
// 持有一个固定的连接、最多一个打开的游标、事务深度计数和懒开启的事务。
// 所有语句都经过 execute/query，在那里记录 lastSQL、关闭旧游标并翻译错误。
// 不是并发安全的。
type Base struct {
	db        *sql.DB
	conn      *sql.Conn
	tx        *sql.Tx
	depth     int
	cursor    *rowsCursor
	lastSQL   string
	dialect   Dialect
	operators map[ir.Tag]Operator
	debug     bool
	logger    logger.Logger
	observer  *Observer
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func NewBaseWithOptions(db *sql.DB, dialect Dialect, options *BaseOptions) (*Base, error) {
	if options == nil {
		options = &BaseOptions{}
	}

	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}

	observer, err := NewObserverWithOptions(dialect.Name(), &options.Observe)
	if err != nil {
		return nil, errors.WithMessage(err, "create observer failed")
	}

	operators := BaseOperators()
	for tag, operator := range dialect.Operators() {
		operators[tag] = operator
	}

	// 只使用一个连接，:memory: 数据库和临时表都绑定在连接上
	db.SetMaxOpenConns(1)

	return &Base{
		db:        db,
		dialect:   dialect,
		operators: operators,
		debug:     options.Debug,
		logger:    l.With("driver", dialect.Name()),
		observer:  observer,
	}, nil
}

func (b *Base) Name() string {
	return b.dialect.Name()
}

func (b *Base) Dialect() Dialect {
	return b.dialect
}

func (b *Base) Debug() bool {
	return b.debug
}

func (b *Base) LastSQL() string {
	return b.lastSQL
}

func (b *Base) Depth() int {
	return b.depth
}

// OverrideOperator 替换某个操作符的渲染方式
func (b *Base) OverrideOperator(tag ir.Tag, operator Operator) {
	b.operators[tag] = operator
}

// Open 固定一个连接并确认后端可达
func (b *Base) Open(ctx context.Context) error {
	if b.conn != nil {
		return nil
	}
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return b.translate(err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return b.translate(err)
	}
	b.conn = conn
	return nil
}

func (b *Base) Close() error {
	b.closeCursor()
	var err error
	if b.tx != nil {
		err = b.tx.Rollback()
		b.tx = nil
		b.depth = 0
		b.observer.TransactionFinished()
	}
	if b.conn != nil {
		if cerr := b.conn.Close(); err == nil {
			err = cerr
		}
		b.conn = nil
	}
	if cerr := b.db.Close(); err == nil {
		err = cerr
	}
	if err != nil && !errors.Is(err, sql.ErrTxDone) && !errors.Is(err, sql.ErrConnDone) {
		return b.translate(err)
	}
	return nil
}

func (b *Base) querier(ctx context.Context) (querier, error) {
	if b.tx != nil {
		return b.tx, nil
	}
	if b.conn == nil {
		if err := b.Open(ctx); err != nil {
			return nil, err
		}
	}
	return b.conn, nil
}

func (b *Base) closeCursor() {
	if b.cursor != nil {
		_ = b.cursor.Close()
		b.cursor = nil
	}
}

// translate 上下文取消原样返回，其他错误交给方言翻译
func (b *Base) translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	translated := b.dialect.TranslateError(err, b.lastSQL)
	b.logger.Warn("statement failed", "sql", b.lastSQL, "err", translated)
	return translated
}

// execute 所有不返回行的语句的唯一入口
func (b *Base) execute(ctx context.Context, operation string, query string, args []any) error {
	b.closeCursor()
	b.lastSQL = query
	b.logger.DebugContext(ctx, "execute", "sql", query, "args", args, "depth", b.depth)

	q, err := b.querier(ctx)
	if err != nil {
		return err
	}
	err = b.observer.Observe(ctx, operation, query, func(ctx context.Context) error {
		_, err := q.ExecContext(ctx, query, args...)
		return err
	})
	return b.translate(err)
}

// query 返回的游标成为当前唯一打开的游标
func (b *Base) query(ctx context.Context, operation string, query string, args []any) (*rowsCursor, error) {
	b.closeCursor()
	b.lastSQL = query
	b.logger.DebugContext(ctx, "query", "sql", query, "args", args, "depth", b.depth)

	q, err := b.querier(ctx)
	if err != nil {
		return nil, err
	}
	var rows *sql.Rows
	err = b.observer.Observe(ctx, operation, query, func(ctx context.Context) error {
		var err error
		rows, err = q.QueryContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, b.translate(err)
	}
	cursor, err := newRowsCursor(rows, b.translate)
	if err != nil {
		return nil, err
	}
	b.cursor = cursor
	return cursor, nil
}

// mutate 单条修改语句包在一个隐式事务里
func (b *Base) mutate(ctx context.Context, operation string, query string, args []any) (err error) {
	if err := b.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if endErr := b.End(ctx, err); err == nil {
			err = endErr
		}
	}()
	return b.execute(ctx, operation, query, args)
}

func (b *Base) newRenderer() *renderer {
	return &renderer{dialect: b.dialect, operators: b.operators}
}

func (b *Base) Begin(ctx context.Context) error {
	if b.depth == 0 && b.tx == nil {
		if b.conn == nil {
			if err := b.Open(ctx); err != nil {
				return err
			}
		}
		b.closeCursor()
		b.lastSQL = "BEGIN"
		// 事务跨越多次调用，不跟随单次调用的 ctx 取消
		tx, err := b.conn.BeginTx(context.WithoutCancel(ctx), nil)
		if err != nil {
			return b.translate(err)
		}
		b.tx = tx
		b.observer.TransactionStarted()
		b.logger.DebugContext(ctx, "begin")
	}
	b.depth++
	return nil
}

func (b *Base) End(ctx context.Context, cause error) error {
	if b.depth == 0 {
		return errs.Wrapf(errs.ErrType, "end without begin")
	}
	b.depth--
	if b.depth > 0 {
		return nil
	}
	if cause != nil {
		return b.finish(ctx, false)
	}
	return b.finish(ctx, true)
}

// finish 提交或回滚当前事务，之前打开的游标随之作废
func (b *Base) finish(ctx context.Context, commit bool) error {
	if b.tx == nil {
		return nil
	}
	b.closeCursor()
	tx := b.tx
	b.tx = nil
	b.observer.TransactionFinished()

	if commit {
		b.lastSQL = "COMMIT"
		b.logger.DebugContext(ctx, "commit")
		if err := tx.Commit(); err != nil {
			_ = tx.Rollback()
			return b.translate(err)
		}
		return nil
	}

	b.lastSQL = "ROLLBACK"
	b.logger.DebugContext(ctx, "rollback")
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return b.translate(err)
	}
	return nil
}

// Commit 提交目前为止的修改，仍处于事务中时重新开启事务
func (b *Base) Commit(ctx context.Context) error {
	return b.restart(ctx, true)
}

// Rollback 放弃目前为止的修改，仍处于事务中时重新开启事务
func (b *Base) Rollback(ctx context.Context) error {
	return b.restart(ctx, false)
}

func (b *Base) restart(ctx context.Context, commit bool) error {
	if err := b.finish(ctx, commit); err != nil {
		return err
	}
	if b.depth == 0 {
		return nil
	}
	tx, err := b.conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return b.translate(err)
	}
	b.tx = tx
	b.observer.TransactionStarted()
	return nil
}

func (b *Base) ListTables(ctx context.Context) ([]string, error) {
	cursor, err := b.query(ctx, "list_tables", b.dialect.ListTablesSQL(b.debug), nil)
	if err != nil {
		return nil, err
	}
	rows, err := collect(cursor)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		tables = append(tables, AsString(row[0]))
	}
	return tables, nil
}

func (b *Base) ListColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	quoted, err := b.newRenderer().identifier(table)
	if err != nil {
		return nil, err
	}
	cursor, err := b.query(ctx, "list_columns", b.dialect.ListColumnsSQL(quoted), nil)
	if err != nil {
		return nil, err
	}
	rows, err := collect(cursor)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.Wrapf(errs.ErrKey, "no such table %q", table)
	}
	columns := make([]ColumnInfo, 0, len(rows))
	for _, row := range rows {
		column, err := b.dialect.ScanColumn(row)
		if err != nil {
			return nil, err
		}
		columns = append(columns, column)
	}
	return columns, nil
}

func (b *Base) CreateTableIfNotExists(ctx context.Context, table string, columns []ColumnDef, primaryKey []string) error {
	query, err := b.newRenderer().createTableSQL(table, columns, primaryKey, b.debug)
	if err != nil {
		return err
	}
	return b.mutate(ctx, "create_table", query, nil)
}

func (b *Base) DropTable(ctx context.Context, table string) error {
	quoted, err := b.newRenderer().identifier(table)
	if err != nil {
		return err
	}
	return b.mutate(ctx, "drop_table", "DROP TABLE "+quoted, nil)
}

func (b *Base) Insert(ctx context.Context, table string, columns []string, values []any) error {
	r := b.newRenderer()
	query, err := r.insertSQL(table, columns, values)
	if err != nil {
		return err
	}
	return b.mutate(ctx, "insert", query, r.args)
}

func (b *Base) Select(ctx context.Context, q *SelectQuery) (Cursor, error) {
	r := b.newRenderer()
	query, err := r.selectSQL(q)
	if err != nil {
		return nil, err
	}
	return b.query(ctx, "select", query, r.args)
}

func (b *Base) Update(ctx context.Context, table string, where ir.Node, columns []string, values []any) error {
	r := b.newRenderer()
	query, err := r.updateSQL(table, where, columns, values)
	if err != nil {
		return err
	}
	return b.mutate(ctx, "update", query, r.args)
}

func (b *Base) Delete(ctx context.Context, table string, where ir.Node) error {
	r := b.newRenderer()
	query, err := r.deleteSQL(table, where)
	if err != nil {
		return err
	}
	return b.mutate(ctx, "delete", query, r.args)
}

// AsString 后端返回的文本可能是 string 或 []byte
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

// AsInt 后端返回的整数可能是 int64 或文本
func AsInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	}
	var i int64
	_, _ = fmt.Sscan(AsString(v), &i)
	return i
}
