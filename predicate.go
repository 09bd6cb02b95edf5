package webdb

import (
	"context"

	"github.com/hatlonely/webdb/driver"
	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/ir"
	"github.com/hatlonely/webdb/types"
	"github.com/pkg/errors"
)

// Predicate 表达式树和它引用的表
//
// 构造过程中的错误记录在 err 中，由 Select/Count/Update/Delete 返回。
type Predicate struct {
	ops

	node       ir.Node
	tables     []*Table
	nativeType types.NativeType
	err        error
}

func newPredicate(node ir.Node, tables []*Table, nativeType types.NativeType, err error) *Predicate {
	p := &Predicate{node: node, tables: tables, nativeType: nativeType, err: err}
	p.ops = ops{p}
	return p
}

func (p *Predicate) Node() ir.Node {
	return p.node
}

func (p *Predicate) Tables() []*Table {
	return p.tables
}

func (p *Predicate) NativeType() types.NativeType {
	return p.nativeType
}

func (p *Predicate) Err() error {
	return p.err
}

func (p *Predicate) String() string {
	if p.node == nil {
		return "[]"
	}
	return p.node.String()
}

type selectOptions struct {
	columns  []Expr
	distinct bool
	orderBy  []Expr
}

type SelectOption func(*selectOptions)

// Columns 投影，默认是所有引用表的显式列
func Columns(exprs ...Expr) SelectOption {
	return func(o *selectOptions) { o.columns = append(o.columns, exprs...) }
}

func Distinct() SelectOption {
	return func(o *selectOptions) { o.distinct = true }
}

// OrderBy 排序键，默认升序，用 Desc() 包装的键降序
func OrderBy(exprs ...Expr) SelectOption {
	return func(o *selectOptions) { o.orderBy = append(o.orderBy, exprs...) }
}

func exprErr(e Expr) error {
	switch v := e.(type) {
	case *Predicate:
		return v.err
	case *Column:
		return v.err
	}
	return nil
}

// aggregated 投影中包含聚合函数时不能追加主键
func aggregated(exprs []Expr) bool {
	found := false
	for _, e := range exprs {
		ir.Walk(e.Node(), func(n ir.Node) bool {
			if op, ok := n.(ir.Op); ok {
				switch op.Tag {
				case ir.Sum, ir.Average, ir.Min, ir.Max:
					found = true
				}
			}
			return !found
		})
	}
	return found
}

func indexOf(exprs []Expr, c *Column) int {
	for i, e := range exprs {
		if ref, ok := e.Node().(ir.ColumnRef); ok && ref == c.Node() {
			return i
		}
	}
	return -1
}

// Select 执行查询
//
// 单表且非 distinct、没有聚合的查询会在投影后面追加缺少的主键列，
// 返回的 Row 可以用它们定位自己。追加的列不计入 Row.Len。
func (p *Predicate) Select(ctx context.Context, opts ...SelectOption) (*Selection, error) {
	if p.err != nil {
		return nil, p.err
	}
	o := &selectOptions{}
	for _, opt := range opts {
		opt(o)
	}

	tables := append([]*Table(nil), p.tables...)
	for _, e := range append(append([]Expr(nil), o.columns...), o.orderBy...) {
		if err := exprErr(e); err != nil {
			return nil, err
		}
		tables = mergeTables(tables, e.Tables())
	}
	if len(tables) == 0 {
		return nil, errs.Wrapf(errs.ErrType, "predicate %s references no table", p)
	}

	projection := append([]Expr(nil), o.columns...)
	if len(projection) == 0 {
		for _, t := range tables {
			projection = append(projection, Exprs(t.All()...)...)
		}
	}
	explicit := len(projection)

	var table *Table
	var pkIndex []int
	if len(tables) == 1 {
		table = tables[0]
		if !o.distinct && !aggregated(projection) {
			for _, c := range table.primaryKey {
				i := indexOf(projection, c)
				if i < 0 {
					projection = append(projection, c)
					i = len(projection) - 1
				}
				pkIndex = append(pkIndex, i)
			}
		}
	}

	query := &driver.SelectQuery{Distinct: o.distinct, Where: p.node}
	for _, e := range projection {
		query.Columns = append(query.Columns, e.Node())
	}
	for _, t := range tables {
		query.Tables = append(query.Tables, t.name)
	}
	for _, e := range o.orderBy {
		query.OrderBy = append(query.OrderBy, e.Node())
	}

	cursor, err := tables[0].db.driver.Select(ctx, query)
	if err != nil {
		return nil, err
	}
	return newSelection(cursor, table, projection, explicit, pkIndex), nil
}

// SelectOne 第一行，没有结果时返回 ErrKey
func (p *Predicate) SelectOne(ctx context.Context, opts ...SelectOption) (*Row, error) {
	selection, err := p.Select(ctx, opts...)
	if err != nil {
		return nil, err
	}
	defer selection.Close()
	return selection.One()
}

// Count 只查询主键列并在本地计数
func (p *Predicate) Count(ctx context.Context) (int, error) {
	var columns []Expr
	for _, t := range p.tables {
		if len(t.primaryKey) > 0 {
			columns = append(columns, Exprs(t.primaryKey...)...)
		} else {
			columns = append(columns, Exprs(t.columns...)...)
		}
	}
	selection, err := p.Select(ctx, Columns(columns...))
	if err != nil {
		return 0, err
	}
	defer selection.Close()
	n := 0
	for selection.Next() {
		n++
	}
	return n, selection.Err()
}

func (p *Predicate) table(operation string) (*Table, error) {
	if p.err != nil {
		return nil, p.err
	}
	if len(p.tables) != 1 {
		return nil, errs.Wrapf(errs.ErrType, "%s requires exactly one table, predicate %s references %d", operation, p, len(p.tables))
	}
	return p.tables[0], nil
}

// Update 更新匹配的行，values 的键是列名
func (p *Predicate) Update(ctx context.Context, values map[string]any) error {
	t, err := p.table("update")
	if err != nil {
		return err
	}
	columns, storageValues, err := t.storageValues(values)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return nil
	}
	return errors.WithMessagef(t.db.driver.Update(ctx, t.name, p.node, columns, storageValues), "update %s failed", t.name)
}

func (p *Predicate) Delete(ctx context.Context) error {
	t, err := p.table("delete")
	if err != nil {
		return err
	}
	return errors.WithMessagef(t.db.driver.Delete(ctx, t.name, p.node), "delete from %s failed", t.name)
}
