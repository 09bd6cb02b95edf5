package driver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/webdb/cfg/validator"
	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/ir"
	"github.com/hatlonely/webdb/types"
)

// ValidateIdentifier 表名和列名无法参数化，只允许字母、数字、下划线
func ValidateIdentifier(name string) error {
	if !validator.IsIdentifier(name) {
		return errs.Wrapf(errs.ErrNaming, "identifiers can only contain letters, numbers and underscores, got %q", name)
	}
	return nil
}

// renderer 把 IR 渲染成 SQL，字面量作为绑定参数收集到 args
type renderer struct {
	dialect   Dialect
	operators map[ir.Tag]Operator
	args      []any
}

func (r *renderer) identifier(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return r.dialect.QuoteIdentifier(name), nil
}

func (r *renderer) identifiers(names []string) ([]string, error) {
	quoted := make([]string, len(names))
	for i, name := range names {
		q, err := r.identifier(name)
		if err != nil {
			return nil, err
		}
		quoted[i] = q
	}
	return quoted, nil
}

func (r *renderer) expression(node ir.Node) (string, error) {
	switch n := node.(type) {
	case nil:
		return "NULL", nil
	case ir.Literal:
		return r.literal(n.Value), nil
	case ir.ColumnRef:
		name, err := r.identifier(n.Name)
		if err != nil {
			return "", err
		}
		if n.Table == "" {
			return name, nil
		}
		table, err := r.identifier(n.Table)
		if err != nil {
			return "", err
		}
		return table + "." + name, nil
	case ir.Op:
		operator, ok := r.operators[n.Tag]
		if !ok {
			return "", errs.Wrapf(errs.ErrNotImplemented, "operator %s", n.Tag)
		}
		if len(n.Args) < operator.MinArgs || (operator.MaxArgs >= 0 && len(n.Args) > operator.MaxArgs) {
			return "", errs.Wrapf(errs.ErrType, "operator %s does not take %d arguments", n.Tag, len(n.Args))
		}
		args := make([]string, len(n.Args))
		for i, arg := range n.Args {
			s, err := r.expression(arg)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		s, err := operator.Format(args)
		if err != nil {
			return "", err
		}
		if n.Tag == ir.Ascend || n.Tag == ir.Descend {
			return s, nil
		}
		return "(" + s + ")", nil
	}
	return "", errs.Wrapf(errs.ErrType, "unknown expression node %T", node)
}

func (r *renderer) expressions(nodes []ir.Node) ([]string, error) {
	rendered := make([]string, len(nodes))
	for i, node := range nodes {
		s, err := r.expression(node)
		if err != nil {
			return nil, err
		}
		rendered[i] = s
	}
	return rendered, nil
}

// literal nil 直接渲染成 NULL，其他值作为参数绑定
func (r *renderer) literal(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case time.Time:
		value = v.UTC().Format(types.TimestampLayout)
	}
	r.args = append(r.args, value)
	return "?"
}

func (r *renderer) where(node ir.Node) (string, error) {
	if node == nil {
		return "", nil
	}
	s, err := r.expression(node)
	if err != nil {
		return "", err
	}
	return " WHERE " + s, nil
}

func (r *renderer) selectSQL(q *SelectQuery) (string, error) {
	if len(q.Tables) == 0 {
		return "", errs.Wrapf(errs.ErrType, "select without tables")
	}
	columns, err := r.expressions(q.Columns)
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", errs.Wrapf(errs.ErrType, "select without columns")
	}
	tables, err := r.identifiers(q.Tables)
	if err != nil {
		return "", err
	}
	where, err := r.where(q.Where)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	buf.WriteString("SELECT ")
	if q.Distinct {
		buf.WriteString("DISTINCT ")
	}
	buf.WriteString(strings.Join(columns, ", "))
	buf.WriteString(" FROM ")
	buf.WriteString(strings.Join(tables, ", "))
	buf.WriteString(where)
	if len(q.OrderBy) > 0 {
		orderBy, err := r.expressions(q.OrderBy)
		if err != nil {
			return "", err
		}
		buf.WriteString(" ORDER BY ")
		buf.WriteString(strings.Join(orderBy, ", "))
	}
	return buf.String(), nil
}

func (r *renderer) insertSQL(table string, columns []string, values []any) (string, error) {
	if len(columns) != len(values) {
		return "", errs.Wrapf(errs.ErrType, "insert got %d columns and %d values", len(columns), len(values))
	}
	quotedTable, err := r.identifier(table)
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return r.dialect.EmptyInsert(quotedTable), nil
	}
	names, err := r.identifiers(columns)
	if err != nil {
		return "", err
	}
	placeholders := make([]string, len(values))
	for i, value := range values {
		placeholders[i] = r.literal(value)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quotedTable, strings.Join(names, ", "), strings.Join(placeholders, ", ")), nil
}

func (r *renderer) updateSQL(table string, where ir.Node, columns []string, values []any) (string, error) {
	if len(columns) != len(values) {
		return "", errs.Wrapf(errs.ErrType, "update got %d columns and %d values", len(columns), len(values))
	}
	if len(columns) == 0 {
		return "", errs.Wrapf(errs.ErrType, "update without columns")
	}
	quotedTable, err := r.identifier(table)
	if err != nil {
		return "", err
	}
	names, err := r.identifiers(columns)
	if err != nil {
		return "", err
	}
	assignments := make([]string, len(columns))
	for i, name := range names {
		assignments[i] = name + " = " + r.literal(values[i])
	}
	clause, err := r.where(where)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UPDATE %s SET %s%s", quotedTable, strings.Join(assignments, ", "), clause), nil
}

func (r *renderer) deleteSQL(table string, where ir.Node) (string, error) {
	quotedTable, err := r.identifier(table)
	if err != nil {
		return "", err
	}
	clause, err := r.where(where)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DELETE FROM %s%s", quotedTable, clause), nil
}

func (r *renderer) createTableSQL(table string, columns []ColumnDef, primaryKey []string, temporary bool) (string, error) {
	if len(columns) == 0 {
		return "", errs.Wrapf(errs.ErrType, "table %q needs at least one column", table)
	}
	quotedTable, err := r.identifier(table)
	if err != nil {
		return "", err
	}

	definitions := make([]string, 0, len(columns)+1)
	inlined := false
	for _, column := range columns {
		definition, inline, err := r.columnDefinition(column)
		if err != nil {
			return "", err
		}
		inlined = inlined || inline
		definitions = append(definitions, definition)
	}
	if len(primaryKey) > 0 && !inlined {
		names, err := r.identifiers(primaryKey)
		if err != nil {
			return "", err
		}
		definitions = append(definitions, "PRIMARY KEY ("+strings.Join(names, ", ")+")")
	}

	return r.dialect.CreateTable(quotedTable, definitions, temporary), nil
}

func (r *renderer) columnDefinition(column ColumnDef) (string, bool, error) {
	name, err := r.identifier(column.Name)
	if err != nil {
		return "", false, err
	}
	sqlType, inline, err := r.dialect.ColumnType(column)
	if err != nil {
		return "", false, err
	}

	var buf strings.Builder
	buf.WriteString(name)
	buf.WriteString(" ")
	buf.WriteString(sqlType)
	if column.Required && !column.Autoincrement {
		buf.WriteString(" NOT NULL")
	}
	if column.Unique && !column.PrimaryKey {
		buf.WriteString(" UNIQUE")
	}
	if column.HasDefault && column.Default != nil {
		value, err := r.formatDefaultValue(column.Default)
		if err != nil {
			return "", false, err
		}
		buf.WriteString(" DEFAULT ")
		buf.WriteString(value)
	}
	return buf.String(), inline, nil
}

// formatDefaultValue DDL 中不能使用绑定参数，默认值直接写成字面量
func (r *renderer) formatDefaultValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return r.dialect.QuoteString(v), nil
	case []byte:
		return fmt.Sprintf("X'%x'", v), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case time.Time:
		return r.dialect.QuoteString(v.UTC().Format(types.TimestampLayout)), nil
	}
	return "", errs.Wrapf(errs.ErrValue, "unsupported default value %T", value)
}
