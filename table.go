package webdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/hatlonely/webdb/driver"
	"github.com/hatlonely/webdb/errs"
	"github.com/pkg/errors"
)

// TableDef DefineTable 接受的定义：列、要克隆的表、主键声明
type TableDef interface {
	tableDef()
}

type primaryKeyDef struct {
	names []string
	empty bool
}

func (*Column) tableDef()       {}
func (*Table) tableDef()        {}
func (primaryKeyDef) tableDef() {}

// WithPrimaryKey 按列名声明主键，追加在列上标记的主键之后
func WithPrimaryKey(names ...string) TableDef {
	return primaryKeyDef{names: names}
}

// NoPrimaryKey 明确不要主键，不会生成 rowid 列
func NoPrimaryKey() TableDef {
	return primaryKeyDef{empty: true}
}

// Table 数据库中的一张表
type Table struct {
	name string
	db   *Database

	// columns 包括生成的 rowid 列，explicit 只包括声明的列
	columns    []*Column
	explicit   []*Column
	primaryKey []*Column

	// referrers 其他表中引用这张表的列
	referrers []*Column
}

func (t *Table) Name() string {
	return t.name
}

func (t *Table) Database() *Database {
	return t.db
}

// All 声明的列，是默认的查询投影
func (t *Table) All() []*Column {
	return t.explicit
}

// Columns 所有列，包括生成的 rowid
func (t *Table) Columns() []*Column {
	return t.columns
}

func (t *Table) PrimaryKey() []*Column {
	return t.primaryKey
}

func (t *Table) Referrers() []*Column {
	return t.referrers
}

func (t *Table) Column(name string) (*Column, error) {
	for _, c := range t.columns {
		if c.name == name {
			return c, nil
		}
	}
	return nil, errs.Wrapf(errs.ErrKey, "table %q has no column %q", t.name, name)
}

func (t *Table) MustColumn(name string) *Column {
	c, err := t.Column(name)
	if err != nil {
		panic(err)
	}
	return c
}

func (t *Table) String() string {
	return fmt.Sprintf("<table '%s'>", t.name)
}

func coercionError(c *Column, err error) error {
	if errors.Is(err, errs.ErrValue) || errors.Is(err, errs.ErrType) {
		return errors.WithMessagef(err, "column %s", c)
	}
	return errs.Wrapf(errs.ErrValue, "column %s: %v", c, err)
}

// storageValues 按列名排序后逐个校验并转换
func (t *Table) storageValues(values map[string]any) ([]string, []any, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	storageValues := make([]any, 0, len(names))
	for _, name := range names {
		if err := driver.ValidateIdentifier(name); err != nil {
			return nil, nil, err
		}
		c, err := t.Column(name)
		if err != nil {
			return nil, nil, err
		}
		v, err := c.storageValue(values[name])
		if err != nil {
			return nil, nil, coercionError(c, err)
		}
		storageValues = append(storageValues, v)
	}
	return names, storageValues, nil
}

// Insert 插入一行，没有给出的列使用默认值
//
// 不返回主键，需要时另外查询。
func (t *Table) Insert(ctx context.Context, values map[string]any) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := driver.ValidateIdentifier(name); err != nil {
			return err
		}
		if _, err := t.Column(name); err != nil {
			return err
		}
	}

	var columns []string
	var storageValues []any
	for _, c := range t.columns {
		v, ok := values[c.name]
		if !ok {
			if !c.hasDefault {
				continue
			}
			v = c.insertDefault()
		}
		sv, err := c.storageValue(v)
		if err != nil {
			return coercionError(c, err)
		}
		columns = append(columns, c.name)
		storageValues = append(storageValues, sv)
	}
	return errors.WithMessagef(t.db.driver.Insert(ctx, t.name, columns, storageValues), "insert into %s failed", t.name)
}

// InsertMany 在一个事务中插入多行，任意一行失败时全部回滚
func (t *Table) InsertMany(ctx context.Context, records ...map[string]any) error {
	return t.db.WithTx(ctx, func(ctx context.Context) error {
		for _, record := range records {
			if err := t.Insert(ctx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *Table) checkKey(key []any) error {
	if len(t.primaryKey) == 0 {
		return errs.Wrapf(errs.ErrType, "table %s has no primary key", t)
	}
	if len(key) != len(t.primaryKey) {
		return errs.Wrapf(errs.ErrType, "table %s has %d primary key columns, got %d values", t, len(t.primaryKey), len(key))
	}
	return nil
}

func (t *Table) keyPredicate(key []any) *Predicate {
	p := t.Where()
	for i, c := range t.primaryKey {
		p = p.And(c.Eq(key[i]))
	}
	return p
}

// Get 按主键查找，组合主键按主键列的顺序传入
func (t *Table) Get(ctx context.Context, key ...any) (*Row, error) {
	if err := t.checkKey(key); err != nil {
		return nil, err
	}
	row, err := t.keyPredicate(key).SelectOne(ctx)
	if errors.Is(err, errs.ErrKey) {
		return nil, errs.Wrapf(errs.ErrKey, "no row in %s with key %v", t, key)
	}
	return row, err
}

func (t *Table) DeleteKey(ctx context.Context, key ...any) error {
	if err := t.checkKey(key); err != nil {
		return err
	}
	return t.keyPredicate(key).Delete(ctx)
}

// Where 不带条件的谓词，和其他条件 And 之后得到该条件本身
func (t *Table) Where() *Predicate {
	return newPredicate(nil, []*Table{t}, "", nil)
}

func (t *Table) Select(ctx context.Context, opts ...SelectOption) (*Selection, error) {
	return t.Where().Select(ctx, opts...)
}

func (t *Table) Count(ctx context.Context) (int, error) {
	return t.Where().Count(ctx)
}

// Scalar 第一行的第一个值，常用于聚合
func (t *Table) Scalar(ctx context.Context, e Expr) (any, error) {
	row, err := t.Where().SelectOne(ctx, Columns(e))
	if err != nil {
		return nil, err
	}
	return row.Index(0), nil
}

func (t *Table) Drop(ctx context.Context) error {
	return t.db.DropTable(ctx, t.name)
}
