// Package ir 定义与后端无关的表达式中间表示
//
// 一个表达式是 Literal、ColumnRef、Op 三种节点组成的树，只有驱动知道如何把
// 某个 Tag 渲染成具体方言的 SQL。
package ir

import (
	"fmt"
	"strings"
)

// Tag 操作符标签，取值是一个封闭集合
type Tag string

const (
	Equal        Tag = "EQUAL"
	NotEqual     Tag = "NOTEQUAL"
	LessThan     Tag = "LESSTHAN"
	LessEqual    Tag = "LESSEQUAL"
	GreaterThan  Tag = "GREATERTHAN"
	GreaterEqual Tag = "GREATEREQUAL"

	Add         Tag = "ADD"
	Concatenate Tag = "CONCATENATE"
	Subtract    Tag = "SUBTRACT"
	Multiply    Tag = "MULTIPLY"
	Divide      Tag = "DIVIDE"
	FloorDivide Tag = "FLOORDIVIDE"
	Modulo      Tag = "MODULO"

	And Tag = "AND"
	Or  Tag = "OR"
	Not Tag = "NOT"

	Negative Tag = "NEGATIVE"
	Abs      Tag = "ABS"
	Length   Tag = "LENGTH"
	Upper    Tag = "UPPER"
	Lower    Tag = "LOWER"

	Ascend  Tag = "ASCEND"
	Descend Tag = "DESCEND"

	Sum     Tag = "SUM"
	Average Tag = "AVERAGE"
	Min     Tag = "MIN"
	Max     Tag = "MAX"
	Round   Tag = "ROUND"

	Like      Tag = "LIKE"
	Glob      Tag = "GLOB"
	LStrip    Tag = "LSTRIP"
	Strip     Tag = "STRIP"
	RStrip    Tag = "RSTRIP"
	Replace   Tag = "REPLACE"
	Substring Tag = "SUBSTRING"

	Coalesce Tag = "COALESCE"
	// Greatest 多个参数中的最大值，不是聚合
	Greatest Tag = "GREATEST"
	Between  Tag = "BETWEEN"
)

// Node 表达式树节点
type Node interface {
	node()
	String() string
}

// Literal 字面量，渲染时作为绑定参数传给驱动；nil 渲染为 NULL
type Literal struct {
	Value any
}

// ColumnRef 列引用，Table 为空时只渲染列名
type ColumnRef struct {
	Table string
	Name  string
}

// Op 操作符节点
type Op struct {
	Tag  Tag
	Args []Node
}

func (Literal) node()   {}
func (ColumnRef) node() {}
func (Op) node()        {}

func (l Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", v)
	case []byte:
		return fmt.Sprintf("x'%x'", v)
	}
	return fmt.Sprintf("%v", l.Value)
}

func (c ColumnRef) String() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

func (o Op) String() string {
	parts := make([]string, 0, len(o.Args)+1)
	parts = append(parts, string(o.Tag))
	for _, arg := range o.Args {
		parts = append(parts, arg.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func NewOp(tag Tag, args ...Node) Op {
	return Op{Tag: tag, Args: args}
}

// Lit 快捷构造字面量
func Lit(v any) Literal {
	return Literal{Value: v}
}

// Walk 深度优先遍历，fn 返回 false 时不再进入该节点的子节点
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	if op, ok := n.(Op); ok {
		for _, arg := range op.Args {
			Walk(arg, fn)
		}
	}
}

// Columns 收集表达式中引用的所有列
func Columns(n Node) []ColumnRef {
	var refs []ColumnRef
	Walk(n, func(n Node) bool {
		if ref, ok := n.(ColumnRef); ok {
			refs = append(refs, ref)
		}
		return true
	})
	return refs
}
