// Package webdb 类型化的表、表达式构造和嵌套事务
//
// 表达式通过列上的方法构造，例如
//
//	users.MustColumn("age").Ge(18).And(users.MustColumn("email").EndsWith("@x.com"))
//
// 构造出的 Predicate 在 Select/Count/Update/Delete 时交给驱动渲染成具体方言的 SQL。
package webdb

import (
	"context"
	"sort"

	"github.com/hatlonely/webdb/cfg"
	"github.com/hatlonely/webdb/cfg/validator"
	"github.com/hatlonely/webdb/driver"
	"github.com/hatlonely/webdb/driver/mysql"
	"github.com/hatlonely/webdb/driver/sqlite"
	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/log"
	"github.com/hatlonely/webdb/log/logger"
	"github.com/hatlonely/webdb/ref"
	"github.com/hatlonely/webdb/types"
	"github.com/pkg/errors"
)

// RegisterBuiltinDrivers 注册 sqlite 和 mysql 驱动，可以重复调用
func RegisterBuiltinDrivers() error {
	if err := driver.Register("sqlite", sqlite.NewDriverWithOptions); err != nil {
		return errors.WithMessage(err, "register sqlite driver failed")
	}
	if err := driver.Register("mysql", mysql.NewDriverWithOptions); err != nil {
		return errors.WithMessage(err, "register mysql driver failed")
	}
	return nil
}

type Options struct {
	// Driver 已注册的驱动名
	Driver string `cfg:"driver" validate:"required"`

	// Options 驱动的选项，交给驱动的构造函数转换
	Options any `cfg:"options"`

	Logger *ref.TypeOptions `cfg:"logger"`
}

// Database 一个驱动连接和在它上面定义的表
//
// 不是并发安全的，同一个 Database 只能在一个 goroutine 中使用。
type Database struct {
	driver driver.Driver
	tables map[string]*Table
	order  []string
	logger logger.Logger
}

// NewDatabase 使用已经创建好的驱动，l 为空时使用 log.Default()
func NewDatabase(d driver.Driver, l logger.Logger) *Database {
	if l == nil {
		l = log.Default()
	}
	return &Database{
		driver: d,
		tables: map[string]*Table{},
		logger: l.With("driver", d.Name()),
	}
}

// Connect 按名字创建驱动并连接
//
// options 可以是驱动的选项结构体、map[string]any 或者配置存储
func Connect(ctx context.Context, name string, options any) (*Database, error) {
	return connect(ctx, name, options, nil)
}

func ConnectWithOptions(ctx context.Context, options *Options) (*Database, error) {
	if err := validator.ValidateStruct(options); err != nil {
		return nil, errors.WithMessage(err, "validate options failed")
	}
	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}
	return connect(ctx, options.Driver, options.Options, l)
}

// ConnectWithConfig 从配置文件读取 Options 并连接，格式由扩展名决定
func ConnectWithConfig(ctx context.Context, path string) (*Database, error) {
	conf, err := cfg.Load(path)
	if err != nil {
		return nil, err
	}
	options := &Options{}
	if err := conf.ConvertTo(options); err != nil {
		return nil, errors.WithMessagef(err, "convert config %s failed", path)
	}
	return ConnectWithOptions(ctx, options)
}

func connect(ctx context.Context, name string, options any, l logger.Logger) (*Database, error) {
	d, err := driver.New(name, options)
	if err != nil {
		return nil, err
	}
	if err := d.Open(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return NewDatabase(d, l), nil
}

func (db *Database) Driver() driver.Driver {
	return db.driver
}

func (db *Database) Close() error {
	return db.driver.Close()
}

// WithTx 在事务中执行 fn，可以嵌套
//
// 只有最外层退出时才提交或回滚：fn 返回 nil 时提交，返回错误或者 panic 时回滚，
// panic 在回滚之后继续向上抛出。
func (db *Database) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := db.driver.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = db.driver.End(ctx, errors.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err = fn(ctx)
	if endErr := db.driver.End(ctx, err); err == nil {
		err = endErr
	}
	return err
}

// Commit 提交目前为止的修改，在 WithTx 中调用时事务继续
func (db *Database) Commit(ctx context.Context) error {
	return db.driver.Commit(ctx)
}

func (db *Database) Rollback(ctx context.Context) error {
	return db.driver.Rollback(ctx)
}

func (db *Database) Table(name string) (*Table, error) {
	t, ok := db.tables[name]
	if !ok {
		return nil, errs.Wrapf(errs.ErrKey, "table %q is not defined", name)
	}
	return t, nil
}

func (db *Database) MustTable(name string) *Table {
	t, err := db.Table(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Tables 按定义顺序返回所有表
func (db *Database) Tables() []*Table {
	tables := make([]*Table, 0, len(db.order))
	for _, name := range db.order {
		tables = append(tables, db.tables[name])
	}
	return tables
}

// DefineTable 定义表并在后端创建
//
// defs 中的 *Table 会克隆它声明的列和主键。没有声明主键时生成自增的 rowid 列，
// NoPrimaryKey 可以禁止生成。所有定义上的错误都在建表之前返回。
func (db *Database) DefineTable(ctx context.Context, name string, defs ...TableDef) (*Table, error) {
	if err := driver.ValidateIdentifier(name); err != nil {
		return nil, err
	}
	if _, ok := db.tables[name]; ok {
		return nil, errs.Wrapf(errs.ErrValue, "table %q already defined", name)
	}

	t := &Table{name: name, db: db}
	var primaryKeyNames []string
	noPrimaryKey := false
	for _, def := range defs {
		switch d := def.(type) {
		case *Column:
			if d.err != nil {
				return nil, d.err
			}
			if d.table != nil {
				d = d.clone()
			}
			t.explicit = append(t.explicit, d)
		case *Table:
			for _, c := range d.explicit {
				t.explicit = append(t.explicit, c.clone())
			}
		case primaryKeyDef:
			noPrimaryKey = noPrimaryKey || d.empty
			primaryKeyNames = append(primaryKeyNames, d.names...)
		}
	}

	seen := map[string]bool{}
	for _, c := range t.explicit {
		if seen[c.name] {
			return nil, errs.Wrapf(errs.ErrValue, "duplicate column %q in table %q", c.name, name)
		}
		seen[c.name] = true
		if c.primaryKey {
			t.primaryKey = append(t.primaryKey, c)
		}
	}
	for _, pk := range primaryKeyNames {
		c, err := t.explicitColumn(pk)
		if err != nil {
			return nil, err
		}
		if !c.primaryKey {
			t.primaryKey = append(t.primaryKey, c)
		}
	}

	if noPrimaryKey {
		if len(t.primaryKey) > 0 {
			return nil, errs.Wrapf(errs.ErrType, "table %q declares primary key columns and no primary key", name)
		}
		if len(t.explicit) == 0 {
			return nil, errs.Wrapf(errs.ErrType, "table %q has no columns", name)
		}
	}

	t.columns = t.explicit
	if !noPrimaryKey && len(t.primaryKey) == 0 {
		if seen["rowid"] {
			return nil, errs.Wrapf(errs.ErrValue, "table %q has a column named rowid but no primary key", name)
		}
		rowid := RowidColumn("rowid")
		t.primaryKey = []*Column{rowid}
		t.columns = append([]*Column{rowid}, t.explicit...)
	}
	if err := db.createTable(ctx, t); err != nil {
		return nil, err
	}
	for _, c := range t.primaryKey {
		c.primaryKey, c.required, c.unique = true, true, true
	}
	db.register(t)
	db.logger.InfoContext(ctx, "define table", "table", name, "columns", len(t.columns))
	return t, nil
}

func (t *Table) explicitColumn(name string) (*Column, error) {
	for _, c := range t.explicit {
		if c.name == name {
			return c, nil
		}
	}
	return nil, errs.Wrapf(errs.ErrKey, "primary key column %q is not a column of table %q", name, t.name)
}

func (db *Database) createTable(ctx context.Context, t *Table) error {
	sole := len(t.primaryKey) == 1
	keyed := make(map[*Column]bool, len(t.primaryKey))
	for _, c := range t.primaryKey {
		keyed[c] = true
	}
	definitions := make([]driver.ColumnDef, 0, len(t.columns))
	for _, c := range t.columns {
		if c.references != nil && len(c.references.primaryKey) == 0 {
			return errs.Wrapf(errs.ErrType, "column %q references table %q which has no primary key", c.name, c.references.name)
		}
		def, err := c.definition(keyed[c], sole && keyed[c])
		if err != nil {
			return coercionError(c, err)
		}
		definitions = append(definitions, def)
	}
	primaryKey := make([]string, 0, len(t.primaryKey))
	for _, c := range t.primaryKey {
		primaryKey = append(primaryKey, c.name)
	}
	return errors.WithMessagef(db.driver.CreateTableIfNotExists(ctx, t.name, definitions, primaryKey), "create table %s failed", t.name)
}

// register 挂上列并登记到引用的表上，同名的表被替换
func (db *Database) register(t *Table) {
	if old, ok := db.tables[t.name]; ok {
		db.unregister(old)
	}
	for _, c := range t.columns {
		c.table = t
		if c.references != nil {
			c.references.referrers = append(c.references.referrers, c)
		}
	}
	db.tables[t.name] = t
	db.order = append(db.order, t.name)
}

func (db *Database) unregister(t *Table) {
	for _, c := range t.columns {
		if c.references == nil {
			continue
		}
		referrers := c.references.referrers[:0]
		for _, r := range c.references.referrers {
			if r != c {
				referrers = append(referrers, r)
			}
		}
		c.references.referrers = referrers
	}
	delete(db.tables, t.name)
	for i, name := range db.order {
		if name == t.name {
			db.order = append(db.order[:i], db.order[i+1:]...)
			break
		}
	}
}

// DropTable 删除后端的表，已定义的同名表一并移除
func (db *Database) DropTable(ctx context.Context, name string) error {
	if err := db.driver.DropTable(ctx, name); err != nil {
		return err
	}
	if t, ok := db.tables[name]; ok {
		db.unregister(t)
	}
	db.logger.InfoContext(ctx, "drop table", "table", name)
	return nil
}

// Conform 按后端实际的表结构重新生成表定义，替换同名的已定义表
//
// 后端不保存引用关系，生成的列都是普通列。
func (db *Database) Conform(ctx context.Context) error {
	names, err := db.driver.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		infos, err := db.driver.ListColumns(ctx, name)
		if err != nil {
			return err
		}
		t := conformTable(db, name, infos)
		db.register(t)
		db.logger.InfoContext(ctx, "conform table", "table", name, "columns", len(t.columns))
	}
	return nil
}

func conformTable(db *Database, name string, infos []driver.ColumnInfo) *Table {
	t := &Table{name: name, db: db}
	type position struct {
		column *Column
		index  int
	}
	var keys []position
	for _, info := range infos {
		nativeType := info.Type
		if !nativeType.Valid() {
			nativeType = types.Text
		}
		c := newColumn(info.Name, nativeType)
		c.required = info.NotNull
		c.autoincrement = info.Autoincrement
		if info.PrimaryKey > 0 {
			c.primaryKey, c.required, c.unique = true, true, true
			keys = append(keys, position{c, info.PrimaryKey})
		}
		t.columns = append(t.columns, c)
	}
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].index < keys[j].index })
	for _, k := range keys {
		t.primaryKey = append(t.primaryKey, k.column)
	}

	// 单独的自增 rowid 主键视为生成的列
	if len(t.primaryKey) == 1 && t.primaryKey[0].name == "rowid" && t.primaryKey[0].autoincrement {
		for _, c := range t.columns {
			if c != t.primaryKey[0] {
				t.explicit = append(t.explicit, c)
			}
		}
	} else {
		t.explicit = t.columns
	}
	return t
}

// Migrate 在后端创建缺少的表
//
// 两边都存在但列不一致的表需要修改表结构，目前没有实现，返回 ErrNotImplemented。
func (db *Database) Migrate(ctx context.Context) error {
	names, err := db.driver.ListTables(ctx)
	if err != nil {
		return err
	}
	existing := map[string]bool{}
	for _, name := range names {
		existing[name] = true
	}

	for _, t := range db.Tables() {
		if !existing[t.name] {
			if err := db.createTable(ctx, t); err != nil {
				return err
			}
			db.logger.InfoContext(ctx, "migrate create table", "table", t.name)
			continue
		}
		infos, err := db.driver.ListColumns(ctx, t.name)
		if err != nil {
			return err
		}
		if !sameColumns(t.columns, infos) {
			return errs.Wrapf(errs.ErrNotImplemented, "migrate table %q: altering existing tables is not supported", t.name)
		}
	}
	return nil
}

// sameColumns 按列名比较类型、主键成员和非空约束
// 主键列和自增列的非空在各个后端的报告方式不同，不参与比较
func sameColumns(columns []*Column, infos []driver.ColumnInfo) bool {
	if len(columns) != len(infos) {
		return false
	}
	byName := make(map[string]driver.ColumnInfo, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
	}
	for _, c := range columns {
		info, ok := byName[c.name]
		if !ok || info.Type != c.nativeType || (info.PrimaryKey > 0) != c.primaryKey {
			return false
		}
		if !c.primaryKey && !c.autoincrement && info.NotNull != c.required {
			return false
		}
	}
	return true
}
