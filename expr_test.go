package webdb

import (
	"testing"

	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/ir"
	"github.com/hatlonely/webdb/types"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestColumn(t *testing.T) {
	Convey("测试列的构造", t, func() {
		Convey("列名只能包含字母数字下划线", func() {
			_, err := NewColumn("bad identifier", types.Text)
			So(errors.Is(err, errs.ErrNaming), ShouldBeTrue)
			So(errors.Is(StrColumn("a-b").Err(), errs.ErrNaming), ShouldBeTrue)

			c, err := NewColumn("good_name1", types.Text)
			So(err, ShouldBeNil)
			So(c.Name(), ShouldEqual, "good_name1")
		})

		Convey("未知的类型", func() {
			_, err := NewColumn("x", "money")
			So(errors.Is(err, errs.ErrType), ShouldBeTrue)
		})

		Convey("选项", func() {
			c := IntColumn("age", Default(18), MaxLength(3))
			v, ok := c.Default()
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 18)
			So(c.MaxLength(), ShouldEqual, 3)
			So(c.Required(), ShouldBeFalse)

			pk := StrColumn("email", PrimaryKey())
			So(pk.PrimaryKey(), ShouldBeTrue)
			So(pk.Required(), ShouldBeTrue)
			So(pk.Unique(), ShouldBeTrue)

			rowid := RowidColumn("id")
			So(rowid.NativeType(), ShouldEqual, types.Integer)
			So(rowid.Autoincrement(), ShouldBeTrue)
			So(rowid.PrimaryKey(), ShouldBeTrue)
		})

		Convey("引用没有主键的表", func() {
			So(errors.Is(ReferenceColumn("x", nil, nil).Err(), errs.ErrType), ShouldBeTrue)
			target := &Table{name: "t"}
			So(errors.Is(ReferenceColumn("x", target, nil).Err(), errs.ErrType), ShouldBeTrue)

			target.primaryKey = []*Column{StrColumn("a"), StrColumn("b")}
			So(errors.Is(ReferenceColumn("x", target, nil).Err(), errs.ErrType), ShouldBeTrue)
			c := ReferenceColumn("x", target, func(*Row) (any, error) { return "a@b", nil })
			So(c.Err(), ShouldBeNil)
			So(c.NativeType(), ShouldEqual, types.Text)

			target.primaryKey = []*Column{IntColumn("id")}
			c = ReferenceColumn("x", target, nil)
			So(c.Err(), ShouldBeNil)
			So(c.NativeType(), ShouldEqual, types.Integer)
			So(c.References(), ShouldEqual, target)
		})
	})
}

func TestExpression(t *testing.T) {
	Convey("测试表达式构造", t, func() {
		s := StrColumn("s")
		n := IntColumn("n")
		f := FloatColumn("f")

		Convey("比较", func() {
			So(s.Eq("x").Node().String(), ShouldEqual, `[EQUAL, s, "x"]`)
			So(s.Eq(nil).Node().String(), ShouldEqual, "[EQUAL, s, NULL]")
			So(n.Ge(n).Node().String(), ShouldEqual, "[GREATEREQUAL, n, n]")
			So(n.Lt(1).NativeType(), ShouldEqual, types.Boolean)
		})

		Convey("加号按类型选择拼接或者相加", func() {
			So(s.Add("x").Node().(ir.Op).Tag, ShouldEqual, ir.Concatenate)
			So(n.Add("x").Node().(ir.Op).Tag, ShouldEqual, ir.Concatenate)
			So(n.Add(1).Node().(ir.Op).Tag, ShouldEqual, ir.Add)
			So(s.Add("x").NativeType(), ShouldEqual, types.Text)
			So(n.Add(1).NativeType(), ShouldEqual, types.Integer)
			So(n.Add(f).NativeType(), ShouldEqual, types.Float)
			So(n.Mul(1.5).NativeType(), ShouldEqual, types.Float)
			So(f.FloorDiv(2).NativeType(), ShouldEqual, types.Integer)
		})

		Convey("推断的类型沿着链传递", func() {
			So(n.Average().NativeType(), ShouldEqual, types.Float)
			So(n.Sum().NativeType(), ShouldEqual, types.Integer)
			So(s.Length().NativeType(), ShouldEqual, types.Integer)
			So(s.Upper().Add("!").NativeType(), ShouldEqual, types.Text)
			So(n.Neg().Abs().NativeType(), ShouldEqual, types.Integer)
			So(n.Average().Round(2).NativeType(), ShouldEqual, types.Float)
		})

		Convey("构造不修改接收者", func() {
			p := n.Gt(1)
			q := p.And(n.Lt(10))
			So(p.Node().String(), ShouldEqual, "[GREATERTHAN, n, 1]")
			So(q.Node().String(), ShouldEqual, "[AND, [GREATERTHAN, n, 1], [LESSTHAN, n, 10]]")
			So(n.Node().String(), ShouldEqual, "n")
		})

		Convey("切片", func() {
			So(s.Slice(1).Node().String(), ShouldEqual, "[SUBSTRING, s, 2]")
			So(s.Slice(-1).Node().String(), ShouldEqual, "[SUBSTRING, s, -1]")
			So(s.Slice(3, 5).Node().String(), ShouldEqual, "[SUBSTRING, s, 4, 2]")
			So(s.Slice(5, 3).Node().String(), ShouldEqual, "[SUBSTRING, s, 6, 0]")
			So(s.Slice(0, -1).Node().String(), ShouldEqual, "[SUBSTRING, s, 1, [GREATEST, [SUBTRACT, [LENGTH, s], 1], 0]]")
			So(s.Index(0).Node().String(), ShouldEqual, "[SUBSTRING, s, 1, 1]")
			So(s.Index(-2).Node().String(), ShouldEqual, "[SUBSTRING, s, -2, 1]")
			So(n.Slice(1).NativeType(), ShouldEqual, types.Integer)

			p := s.Slice(-2, 3)
			So(errors.Is(p.Err(), errs.ErrValue), ShouldBeTrue)
			So(errors.Is(p.Eq("x").Err(), errs.ErrValue), ShouldBeTrue)
		})

		Convey("前缀后缀", func() {
			So(s.StartsWith("Sm").Node().String(), ShouldEqual, `[EQUAL, [SUBSTRING, s, 1, 2], "Sm"]`)
			So(s.StartsWith("日本").Node().String(), ShouldEqual, `[EQUAL, [SUBSTRING, s, 1, 2], "日本"]`)
			So(s.EndsWith("th").Node().String(), ShouldEqual, `[EQUAL, [SUBSTRING, s, -2], "th"]`)
			So(s.EndsWith("").Node().String(), ShouldEqual, "[NOTEQUAL, s, NULL]")
		})

		Convey("字符串函数", func() {
			So(s.Strip().Node().String(), ShouldEqual, "[STRIP, s]")
			So(s.LStrip("x").Node().String(), ShouldEqual, `[LSTRIP, s, "x"]`)
			So(s.Replace("a", "b").Node().String(), ShouldEqual, `[REPLACE, s, "a", "b"]`)
			So(s.Like("a%").Node().String(), ShouldEqual, `[LIKE, s, "a%"]`)
			So(s.Like("a!%%", "!").Node().String(), ShouldEqual, `[LIKE, s, "a!%%", "!"]`)
			So(s.Glob("a*").Node().String(), ShouldEqual, `[GLOB, s, "a*"]`)
		})

		Convey("其他操作", func() {
			So(n.Desc().Node().String(), ShouldEqual, "[DESCEND, n]")
			So(n.Between(1, 2).Node().String(), ShouldEqual, "[BETWEEN, n, 1, 2]")
			So(n.Coalesce(0).Node().String(), ShouldEqual, "[COALESCE, n, 0]")
			So(n.Eq(1).Not().Node().String(), ShouldEqual, "[NOT, [EQUAL, n, 1]]")
		})

		Convey("空谓词和条件相与得到条件本身", func() {
			table := &Table{name: "t"}
			empty := newPredicate(nil, []*Table{table}, "", nil)
			p := empty.And(n.Eq(1))
			So(p.Node().String(), ShouldEqual, "[EQUAL, n, 1]")
			So(p.Tables(), ShouldResemble, []*Table{table})
			So(n.Eq(1).And(empty).Node().String(), ShouldEqual, "[EQUAL, n, 1]")
		})

		Convey("自定义转换作用在比较的字面量上", func() {
			c := StrColumn("tags", ToStorage(func(v any) (any, error) {
				tags, ok := v.([]string)
				if !ok {
					return nil, errors.Errorf("want []string, got %T", v)
				}
				return len(tags), nil
			}))
			So(c.Eq([]string{"a", "b"}).Node().String(), ShouldEqual, "[EQUAL, tags, 2]")
			So(c.Eq(3).Err(), ShouldNotBeNil)
		})

		Convey("行只能和引用列比较", func() {
			So(errors.Is(n.Add(&Row{}).Err(), errs.ErrType), ShouldBeTrue)
			So(errors.Is(n.Eq(&Row{}).Err(), errs.ErrType), ShouldBeTrue)
		})
	})
}
