package webdb

import (
	"github.com/hatlonely/webdb/driver"
	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/ir"
	"github.com/hatlonely/webdb/types"
)

// Column 表中一个有名字、有类型的列，同时也是表达式的叶子节点
//
// 列在 DefineTable 时挂到表上，之后不再修改。
type Column struct {
	ops

	name          string
	nativeType    types.NativeType
	toStorage     func(any) (any, error)
	fromStorage   func(any) (any, error)
	required      bool
	unique        bool
	primaryKey    bool
	autoincrement bool
	hasDefault    bool
	defaultValue  any
	maxLength     int

	// references 引用的表，refToStorage 把目标表的行转换成本列的存储值
	references   *Table
	refToStorage func(*Row) (any, error)

	table *Table
	err   error
}

// ColumnOption 列的可选属性
type ColumnOption func(*Column)

// Required 非空
func Required() ColumnOption {
	return func(c *Column) { c.required = true }
}

// Default 默认值，可以是值或者 func() any，函数在每次插入时求值
func Default(v any) ColumnOption {
	return func(c *Column) {
		c.hasDefault = true
		c.defaultValue = v
	}
}

func Unique() ColumnOption {
	return func(c *Column) { c.unique = true }
}

// PrimaryKey 主键成员，隐含非空和唯一
func PrimaryKey() ColumnOption {
	return func(c *Column) {
		c.primaryKey = true
		c.required = true
		c.unique = true
	}
}

// MaxLength 建议的最大长度，只影响 mysql 的 VARCHAR 长度
func MaxLength(n int) ColumnOption {
	return func(c *Column) { c.maxLength = n }
}

func Autoincrement() ColumnOption {
	return func(c *Column) { c.autoincrement = true }
}

// ToStorage 自定义写入转换，结果直接交给驱动
func ToStorage(fn func(any) (any, error)) ColumnOption {
	return func(c *Column) { c.toStorage = fn }
}

// FromStorage 自定义读出转换，输入是按原生类型规范化之后的值
func FromStorage(fn func(any) (any, error)) ColumnOption {
	return func(c *Column) { c.fromStorage = fn }
}

// NewColumn 创建列并校验列名和类型
func NewColumn(name string, nativeType types.NativeType, opts ...ColumnOption) (*Column, error) {
	c := newColumn(name, nativeType, opts...)
	return c, c.err
}

func newColumn(name string, nativeType types.NativeType, opts ...ColumnOption) *Column {
	c := &Column{name: name, nativeType: nativeType}
	c.ops = ops{c}
	for _, opt := range opts {
		opt(c)
	}
	if err := driver.ValidateIdentifier(name); err != nil {
		c.err = err
	} else if !nativeType.Valid() {
		c.err = errs.Wrapf(errs.ErrType, "column %q has unknown native type %q", name, nativeType)
	}
	return c
}

// 下面的构造函数把列名错误记录在列上，DefineTable 在建表之前报告

func IntColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Integer, opts...)
}

func FloatColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Float, opts...)
}

func BoolColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Boolean, opts...)
}

func StrColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Text, opts...)
}

// DataColumn 二进制列
func DataColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Binary, opts...)
}

func DateTimeColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Timestamp, opts...)
}

// RowidColumn 自增整数主键
func RowidColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, types.Integer, append([]ColumnOption{PrimaryKey(), Autoincrement()}, opts...)...)
}

// ReferenceColumn 引用 target 表的一行
//
// toStorage 为空时存储目标行的单列主键，此时列类型和目标主键相同；
// 提供 toStorage 时存储它的返回值，列类型为文本。
// 建表后目标表可以通过 Row.Related 反向找到引用它的行。
func ReferenceColumn(name string, target *Table, toStorage func(*Row) (any, error), opts ...ColumnOption) *Column {
	nativeType := types.Text
	var err error
	switch {
	case target == nil:
		err = errs.Wrapf(errs.ErrType, "reference column %q has no target table", name)
	case len(target.primaryKey) == 0:
		err = errs.Wrapf(errs.ErrType, "reference column %q targets table %q which has no primary key", name, target.name)
	case toStorage == nil && len(target.primaryKey) != 1:
		err = errs.Wrapf(errs.ErrType, "reference column %q targets table %q with a composite primary key, a converter is required", name, target.name)
	case toStorage == nil:
		nativeType = target.primaryKey[0].nativeType
	}

	c := newColumn(name, nativeType, opts...)
	c.references = target
	c.refToStorage = toStorage
	if c.err == nil {
		c.err = err
	}
	return c
}

func (c *Column) Name() string {
	return c.name
}

// Table 列所属的表，还没有挂到表上时为 nil
func (c *Column) Table() *Table {
	return c.table
}

func (c *Column) NativeType() types.NativeType {
	return c.nativeType
}

func (c *Column) Node() ir.Node {
	if c.table == nil {
		return ir.ColumnRef{Name: c.name}
	}
	return ir.ColumnRef{Table: c.table.name, Name: c.name}
}

func (c *Column) Tables() []*Table {
	if c.table == nil {
		return nil
	}
	return []*Table{c.table}
}

// Err 构造时记录的错误
func (c *Column) Err() error {
	return c.err
}

func (c *Column) Required() bool      { return c.required }
func (c *Column) Unique() bool        { return c.unique }
func (c *Column) PrimaryKey() bool    { return c.primaryKey }
func (c *Column) Autoincrement() bool { return c.autoincrement }
func (c *Column) MaxLength() int      { return c.maxLength }
func (c *Column) References() *Table  { return c.references }

// Default 默认值和是否设置了默认值
func (c *Column) Default() (any, bool) {
	return c.defaultValue, c.hasDefault
}

func (c *Column) String() string {
	return c.Node().String()
}

// clone 复制一个没有挂到任何表上的列
func (c *Column) clone() *Column {
	n := new(Column)
	*n = *c
	n.ops = ops{n}
	n.table = nil
	return n
}

// storageValue 写入前的转换，引用列接受目标表的行
func (c *Column) storageValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if row, ok := v.(*Row); ok {
		key, err := c.rowKey(row)
		if err != nil {
			return nil, err
		}
		if c.refToStorage != nil {
			return key, nil
		}
		v = key
	}
	if c.toStorage != nil {
		return c.toStorage(v)
	}
	return types.ToStorage(c.nativeType, v)
}

func (c *Column) rowKey(row *Row) (any, error) {
	if c.references == nil {
		return nil, errs.Wrapf(errs.ErrType, "column %s does not reference a table", c)
	}
	if row.Table() == nil || row.Table().name != c.references.name {
		return nil, errs.Wrapf(errs.ErrType, "column %s references %s, got a row of %s", c, c.references, row.Table())
	}
	if c.refToStorage != nil {
		key, err := c.refToStorage(row)
		if err != nil {
			return nil, err
		}
		return types.ToStorage(c.nativeType, key)
	}
	key := row.PrimaryKey()
	if len(key) != 1 {
		return nil, errs.Wrapf(errs.ErrType, "row of %s has %d primary key values", row.Table(), len(key))
	}
	return key[0], nil
}

// applicationValue 读出后的转换
func (c *Column) applicationValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	v, err := types.FromStorage(c.nativeType, v)
	if err != nil {
		return nil, err
	}
	if c.fromStorage != nil {
		return c.fromStorage(v)
	}
	return v, nil
}

// insertDefault 每次插入时求值的默认值
func (c *Column) insertDefault() any {
	if fn, ok := c.defaultValue.(func() any); ok {
		return fn()
	}
	return c.defaultValue
}

// definition 建表用的列定义，函数形式的默认值只在插入时生效
// primaryKey 由表决定，列上的标记在建表成功之后才设置
func (c *Column) definition(primaryKey bool, solePrimaryKey bool) (driver.ColumnDef, error) {
	def := driver.ColumnDef{
		Name:           c.name,
		Type:           c.nativeType,
		Required:       c.required || primaryKey,
		Unique:         c.unique || primaryKey,
		PrimaryKey:     primaryKey,
		Autoincrement:  c.autoincrement,
		SolePrimaryKey: solePrimaryKey,
		MaxLength:      c.maxLength,
	}
	if _, ok := c.defaultValue.(func() any); c.hasDefault && !ok && c.defaultValue != nil {
		v, err := c.storageValue(c.defaultValue)
		if err != nil {
			return def, err
		}
		def.HasDefault = true
		def.Default = v
	}
	return def, nil
}
