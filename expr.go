package webdb

import (
	"unicode/utf8"

	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/ir"
	"github.com/hatlonely/webdb/types"
)

// Expr 可以参与表达式运算的值，*Column 和 *Predicate 实现了这个接口
type Expr interface {
	// Node 表达式的中间表示
	Node() ir.Node
	// Tables 表达式引用的表，按出现顺序去重
	Tables() []*Table
	// NativeType 推断的结果类型，无法推断时为空
	NativeType() types.NativeType
}

// Exprs 把列转换成表达式列表，用于 Columns 和 OrderBy
func Exprs(columns ...*Column) []Expr {
	exprs := make([]Expr, len(columns))
	for i, c := range columns {
		exprs[i] = c
	}
	return exprs
}

// ops 列和谓词共享的构造方法，每个方法都返回新的 Predicate，不修改接收者
type ops struct {
	self Expr
}

// operand 展开操作数：表达式取其中间表示，其他值作为字面量
func operand(x any) (ir.Node, []*Table, types.NativeType, error) {
	switch v := x.(type) {
	case *Predicate:
		return v.node, v.tables, v.nativeType, v.err
	case *Column:
		return v.Node(), v.Tables(), v.nativeType, v.err
	case Expr:
		return v.Node(), v.Tables(), v.NativeType(), nil
	case *Row:
		return nil, nil, "", errs.Wrapf(errs.ErrType, "a row can only be compared with a reference column")
	}
	return ir.Lit(x), nil, types.Of(x), nil
}

func mergeTables(dst []*Table, src []*Table) []*Table {
	for _, t := range src {
		found := false
		for _, d := range dst {
			if d == t {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, t)
		}
	}
	return dst
}

// apply 以 self 为第一个操作数构造新的谓词，typeOf 根据各操作数的类型推断结果类型
func (o ops) apply(tag ir.Tag, typeOf func(operands []types.NativeType) types.NativeType, args ...any) *Predicate {
	all := append([]any{o.self}, args...)
	nodes := make([]ir.Node, len(all))
	operandTypes := make([]types.NativeType, len(all))
	var tables []*Table
	var err error
	for i, arg := range all {
		node, ts, t, e := operand(arg)
		if e != nil && err == nil {
			err = e
		}
		nodes[i] = node
		operandTypes[i] = t
		tables = mergeTables(tables, ts)
	}
	return newPredicate(ir.NewOp(tag, nodes...), tables, typeOf(operandTypes), err)
}

func boolean([]types.NativeType) types.NativeType { return types.Boolean }
func text([]types.NativeType) types.NativeType    { return types.Text }
func integer([]types.NativeType) types.NativeType { return types.Integer }
func float([]types.NativeType) types.NativeType   { return types.Float }
func same(t []types.NativeType) types.NativeType  { return t[0] }

// arithmetic 有浮点数参与时结果为浮点数
func arithmetic(t []types.NativeType) types.NativeType {
	result := t[0]
	for _, x := range t {
		if x == types.Float {
			return types.Float
		}
		if result == "" {
			result = x
		}
	}
	return result
}

// compare 列和字面量比较时，字面量按列的自定义转换或者引用规则转换
func (o ops) compare(tag ir.Tag, x any) *Predicate {
	if c, ok := o.self.(*Column); ok {
		if _, isExpr := x.(Expr); !isExpr && x != nil {
			if _, isRow := x.(*Row); isRow || c.toStorage != nil {
				v, err := c.storageValue(x)
				if err != nil {
					p := o.apply(tag, boolean, nil)
					p.err = err
					return p
				}
				x = v
			}
		}
	}
	return o.apply(tag, boolean, x)
}

// Eq 和 nil 比较时匹配 NULL
func (o ops) Eq(x any) *Predicate { return o.compare(ir.Equal, x) }
func (o ops) Ne(x any) *Predicate { return o.compare(ir.NotEqual, x) }
func (o ops) Lt(x any) *Predicate { return o.compare(ir.LessThan, x) }
func (o ops) Le(x any) *Predicate { return o.compare(ir.LessEqual, x) }
func (o ops) Gt(x any) *Predicate { return o.compare(ir.GreaterThan, x) }
func (o ops) Ge(x any) *Predicate { return o.compare(ir.GreaterEqual, x) }

// Add 任意一边是文本或二进制时表示拼接
func (o ops) Add(x any) *Predicate {
	_, _, t, _ := operand(x)
	if o.self.NativeType().Textual() || t.Textual() {
		return o.apply(ir.Concatenate, text, x)
	}
	return o.apply(ir.Add, arithmetic, x)
}

func (o ops) Sub(x any) *Predicate { return o.apply(ir.Subtract, arithmetic, x) }
func (o ops) Mul(x any) *Predicate { return o.apply(ir.Multiply, arithmetic, x) }
func (o ops) Div(x any) *Predicate { return o.apply(ir.Divide, arithmetic, x) }
func (o ops) Mod(x any) *Predicate { return o.apply(ir.Modulo, arithmetic, x) }

// FloorDiv 整除
func (o ops) FloorDiv(x any) *Predicate { return o.apply(ir.FloorDivide, integer, x) }

// And 没有条件的谓词（比如 Table.Where）和任何条件相与都得到该条件本身
func (o ops) And(x any) *Predicate { return o.logical(ir.And, x) }
func (o ops) Or(x any) *Predicate  { return o.logical(ir.Or, x) }

func (o ops) logical(tag ir.Tag, x any) *Predicate {
	if p, ok := o.self.(*Predicate); ok && p.node == nil && p.err == nil {
		node, tables, t, err := operand(x)
		return newPredicate(node, mergeTables(append([]*Table(nil), p.tables...), tables), t, err)
	}
	if p, ok := x.(*Predicate); ok && p.node == nil && p.err == nil {
		node, tables, t, err := operand(o.self)
		return newPredicate(node, mergeTables(tables, p.tables), t, err)
	}
	return o.apply(tag, boolean, x)
}

func (o ops) Not() *Predicate { return o.apply(ir.Not, boolean) }
func (o ops) Neg() *Predicate { return o.apply(ir.Negative, same) }
func (o ops) Abs() *Predicate { return o.apply(ir.Abs, same) }

// Length 字符数
func (o ops) Length() *Predicate { return o.apply(ir.Length, integer) }
func (o ops) Upper() *Predicate  { return o.apply(ir.Upper, text) }
func (o ops) Lower() *Predicate  { return o.apply(ir.Lower, text) }

// Desc 排序时降序，只作用于这一个排序键
func (o ops) Desc() *Predicate { return o.apply(ir.Descend, same) }
func (o ops) Asc() *Predicate  { return o.apply(ir.Ascend, same) }

func (o ops) Sum() *Predicate     { return o.apply(ir.Sum, same) }
func (o ops) Average() *Predicate { return o.apply(ir.Average, float) }
func (o ops) Min() *Predicate     { return o.apply(ir.Min, same) }
func (o ops) Max() *Predicate     { return o.apply(ir.Max, same) }

// Round 可选的小数位数
func (o ops) Round(precision ...int) *Predicate {
	if len(precision) > 0 {
		return o.apply(ir.Round, float, precision[0])
	}
	return o.apply(ir.Round, float)
}

// Like 可选的转义字符
func (o ops) Like(pattern string, escape ...string) *Predicate {
	if len(escape) > 0 {
		return o.apply(ir.Like, boolean, pattern, escape[0])
	}
	return o.apply(ir.Like, boolean, pattern)
}

func (o ops) Glob(pattern string) *Predicate { return o.apply(ir.Glob, boolean, pattern) }

// StartsWith 区分大小写，不受 LIKE 通配符影响
func (o ops) StartsWith(prefix string) *Predicate {
	return o.apply(ir.Substring, same, 1, utf8.RuneCountInString(prefix)).Eq(prefix)
}

func (o ops) EndsWith(suffix string) *Predicate {
	n := utf8.RuneCountInString(suffix)
	if n == 0 {
		return o.Ne(nil)
	}
	return o.apply(ir.Substring, same, -n).Eq(suffix)
}

// Strip 可选的要去掉的字符集合，默认去掉空白
func (o ops) Strip(chars ...string) *Predicate  { return o.trim(ir.Strip, chars) }
func (o ops) LStrip(chars ...string) *Predicate { return o.trim(ir.LStrip, chars) }
func (o ops) RStrip(chars ...string) *Predicate { return o.trim(ir.RStrip, chars) }

func (o ops) trim(tag ir.Tag, chars []string) *Predicate {
	if len(chars) > 0 {
		return o.apply(tag, text, chars[0])
	}
	return o.apply(tag, text)
}

func (o ops) Replace(old string, new string) *Predicate {
	return o.apply(ir.Replace, text, old, new)
}

// Slice 按切片语义取子串，下标从 0 开始
//
//	Slice(1)     从第二个字符到结尾
//	Slice(3, 5)  第四、五个字符
//	Slice(0, -1) 去掉最后一个字符
//	Slice(-1)    最后一个字符
//
// SUBSTR 不支持负数的起点配合终点，这种组合返回 ErrValue
func (o ops) Slice(start int, stop ...int) *Predicate {
	if len(stop) == 0 {
		if start < 0 {
			return o.apply(ir.Substring, same, start)
		}
		return o.apply(ir.Substring, same, start+1)
	}
	end := stop[0]
	if start < 0 {
		p := o.apply(ir.Substring, same, start)
		if p.err == nil {
			p.err = errs.Wrapf(errs.ErrValue, "negative slice start %d with stop %d is not supported", start, end)
		}
		return p
	}
	if end >= 0 {
		return o.apply(ir.Substring, same, start+1, max(end-start, 0))
	}
	// 字符串比 start-end 短时长度为负，SUBSTR 会取到起点之前的字符
	length := o.Length().Sub(start - end)
	return o.apply(ir.Substring, same, start+1, length.apply(ir.Greatest, integer, 0))
}

// Index 取单个字符，负数从结尾开始数
func (o ops) Index(i int) *Predicate {
	if i < 0 {
		return o.apply(ir.Substring, same, i, 1)
	}
	return o.apply(ir.Substring, same, i+1, 1)
}

func (o ops) Coalesce(values ...any) *Predicate {
	return o.apply(ir.Coalesce, same, values...)
}

func (o ops) Between(min any, max any) *Predicate {
	return o.apply(ir.Between, boolean, min, max)
}
