package webdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/hatlonely/webdb/errs"
)

// Row 查询结果的一行
//
// 前 explicit 个值是调用方请求的列，后面是为了定位这一行追加的主键列。
type Row struct {
	table    *Table
	columns  []Expr
	values   []any
	explicit int
	pkIndex  []int
}

// Table 单表查询的表，多表查询时为 nil
func (r *Row) Table() *Table {
	return r.table
}

// Len 请求的列数
func (r *Row) Len() int {
	return r.explicit
}

func (r *Row) Index(i int) any {
	return r.values[i]
}

// Get 按列名取值，先找请求的列，再找主键列
func (r *Row) Get(name string) (any, error) {
	for i := 0; i < r.explicit; i++ {
		if c, ok := r.columns[i].(*Column); ok && c.name == name {
			return r.values[i], nil
		}
	}
	for _, i := range r.pkIndex {
		if c, ok := r.columns[i].(*Column); ok && c.name == name {
			return r.values[i], nil
		}
	}
	return nil, errs.Wrapf(errs.ErrKey, "row has no column %q", name)
}

// Value 按表达式取值，表达式需要和查询时的投影一致
func (r *Row) Value(e Expr) (any, error) {
	key := e.Node().String()
	for i, c := range r.columns {
		if c.Node().String() == key {
			return r.values[i], nil
		}
	}
	return nil, errs.Wrapf(errs.ErrKey, "row has no column %s", key)
}

// Values 请求的列的值
func (r *Row) Values() []any {
	return append([]any(nil), r.values[:r.explicit]...)
}

// Map 请求的列，键是列名，非列的表达式使用表达式文本
func (r *Row) Map() map[string]any {
	m := make(map[string]any, r.explicit)
	for i := 0; i < r.explicit; i++ {
		m[columnKey(r.columns[i])] = r.values[i]
	}
	return m
}

func columnKey(e Expr) string {
	if c, ok := e.(*Column); ok {
		return c.name
	}
	return e.Node().String()
}

// PrimaryKey 主键的值，没有追加主键时为空
func (r *Row) PrimaryKey() []any {
	if len(r.pkIndex) == 0 {
		return nil
	}
	key := make([]any, len(r.pkIndex))
	for i, j := range r.pkIndex {
		key[i] = r.values[j]
	}
	return key
}

func (r *Row) keyTable(operation string) (*Table, error) {
	if r.table == nil || len(r.pkIndex) == 0 {
		return nil, errs.Wrapf(errs.ErrType, "cannot %s a row without a primary key", operation)
	}
	return r.table, nil
}

// Update 按主键更新这一行，返回更新之后重新查询的行
func (r *Row) Update(ctx context.Context, values map[string]any) (*Row, error) {
	t, err := r.keyTable("update")
	if err != nil {
		return nil, err
	}
	key := r.PrimaryKey()
	if err := t.keyPredicate(key).Update(ctx, values); err != nil {
		return nil, err
	}
	for i, c := range t.primaryKey {
		if v, ok := values[c.name]; ok {
			key[i] = v
		}
	}
	return t.Get(ctx, key...)
}

func (r *Row) Delete(ctx context.Context) error {
	t, err := r.keyTable("delete")
	if err != nil {
		return err
	}
	return t.keyPredicate(r.PrimaryKey()).Delete(ctx)
}

// Related 引用这一行的 table 表中的行
//
// 表中有多个引用列时，匹配任意一列即可。结果每次调用时重新计算。
func (r *Row) Related(table string) (*Predicate, error) {
	if r.table == nil {
		return nil, errs.Wrapf(errs.ErrType, "row is not bound to a table")
	}
	var p *Predicate
	for _, c := range r.table.referrers {
		if c.table == nil || c.table.name != table {
			continue
		}
		eq := c.Eq(r)
		if p == nil {
			p = eq
		} else {
			p = p.Or(eq)
		}
	}
	if p == nil {
		return nil, errs.Wrapf(errs.ErrKey, "table %q does not reference %s", table, r.table)
	}
	if p.err != nil {
		return nil, p.err
	}
	return p, nil
}

func (r *Row) String() string {
	parts := make([]string, 0, r.explicit)
	for i := 0; i < r.explicit; i++ {
		parts = append(parts, fmt.Sprintf("%s=%#v", columnKey(r.columns[i]), r.values[i]))
	}
	return "Row(" + strings.Join(parts, ", ") + ")"
}
