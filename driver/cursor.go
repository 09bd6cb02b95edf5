package driver

import (
	"database/sql"
)

// rowsCursor 包装 sql.Rows，被关闭后不再返回任何行
type rowsCursor struct {
	rows      *sql.Rows
	width     int
	values    []any
	err       error
	closed    bool
	translate func(error) error
}

func newRowsCursor(rows *sql.Rows, translate func(error) error) (*rowsCursor, error) {
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, translate(err)
	}
	return &rowsCursor{rows: rows, width: len(columns), translate: translate}, nil
}

func (c *rowsCursor) Next() bool {
	if c.closed {
		return false
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = c.translate(err)
		}
		_ = c.Close()
		return false
	}

	values := make([]any, c.width)
	dest := make([]any, c.width)
	for i := range values {
		dest[i] = &values[i]
	}
	if err := c.rows.Scan(dest...); err != nil {
		c.err = c.translate(err)
		_ = c.Close()
		return false
	}
	c.values = values
	return true
}

func (c *rowsCursor) Values() []any {
	return c.values
}

func (c *rowsCursor) Err() error {
	return c.err
}

func (c *rowsCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.values = nil
	return c.rows.Close()
}

// collect 读出所有行，用于列表类的内部查询
func collect(cursor Cursor) ([][]any, error) {
	defer cursor.Close()
	var rows [][]any
	for cursor.Next() {
		rows = append(rows, cursor.Values())
	}
	return rows, cursor.Err()
}
