package webdb

import (
	"github.com/hatlonely/webdb/driver"
	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/types"
	"github.com/pkg/errors"
)

// Selection 只进的查询结果，不能重新开始
//
// 同一个连接上执行新的语句之后，游标作废，Next 返回 false 且 Err 为 nil。
type Selection struct {
	cursor   driver.Cursor
	table    *Table
	columns  []Expr
	explicit int
	pkIndex  []int

	row *Row
	err error
}

func newSelection(cursor driver.Cursor, table *Table, columns []Expr, explicit int, pkIndex []int) *Selection {
	return &Selection{
		cursor:   cursor,
		table:    table,
		columns:  columns,
		explicit: explicit,
		pkIndex:  pkIndex,
	}
}

// convert 列使用自己的转换，其他表达式按推断的类型转换
func convert(e Expr, v any) (any, error) {
	if c, ok := e.(*Column); ok {
		return c.applicationValue(v)
	}
	if v == nil || !e.NativeType().Valid() {
		return v, nil
	}
	return types.FromStorage(e.NativeType(), v)
}

func (s *Selection) Next() bool {
	s.row = nil
	if s.err != nil || s.cursor == nil {
		return false
	}
	if !s.cursor.Next() {
		s.err = s.cursor.Err()
		return false
	}
	raw := s.cursor.Values()
	values := make([]any, len(raw))
	for i, v := range raw {
		value, err := convert(s.columns[i], v)
		if err != nil {
			s.err = errors.WithMessagef(err, "convert %s", s.columns[i].Node())
			_ = s.cursor.Close()
			return false
		}
		values[i] = value
	}
	s.row = &Row{
		table:    s.table,
		columns:  s.columns,
		values:   values,
		explicit: s.explicit,
		pkIndex:  s.pkIndex,
	}
	return true
}

// Row 当前行，Next 返回 true 之后有效
func (s *Selection) Row() *Row {
	return s.row
}

func (s *Selection) Err() error {
	return s.err
}

func (s *Selection) Close() error {
	if s.cursor == nil {
		return nil
	}
	return s.cursor.Close()
}

// Columns 投影的表达式，包括追加的主键列
func (s *Selection) Columns() []Expr {
	return s.columns
}

// Explicit 调用方请求的列数
func (s *Selection) Explicit() int {
	return s.explicit
}

// All 读取剩下的所有行
func (s *Selection) All() ([]*Row, error) {
	var rows []*Row
	for s.Next() {
		rows = append(rows, s.row)
	}
	return rows, s.err
}

// One 下一行，没有更多行时返回 ErrKey
func (s *Selection) One() (*Row, error) {
	row, err := s.First()
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errs.Wrapf(errs.ErrKey, "no matching row")
	}
	return row, nil
}

// First 下一行，没有更多行时返回 nil
func (s *Selection) First() (*Row, error) {
	if s.Next() {
		return s.row, nil
	}
	return nil, s.err
}

// Last 读完所有行并返回最后一行
func (s *Selection) Last() (*Row, error) {
	var last *Row
	for s.Next() {
		last = s.row
	}
	return last, s.err
}

// Skip 跳过 n 行
func (s *Selection) Skip(n int) error {
	for i := 0; i < n; i++ {
		if !s.Next() {
			break
		}
	}
	return s.err
}
