package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hatlonely/webdb/driver"
	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/ir"
	"github.com/hatlonely/webdb/types"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

var userColumns = []driver.ColumnDef{
	{Name: "email", Type: types.Text, Required: true, Unique: true, PrimaryKey: true},
	{Name: "age", Type: types.Integer, HasDefault: true, Default: int64(18)},
	{Name: "active", Type: types.Boolean},
	{Name: "created", Type: types.Timestamp},
}

var (
	email = ir.ColumnRef{Table: "users", Name: "email"}
	age   = ir.ColumnRef{Table: "users", Name: "age"}
)

func newTestDriver(options *Options) *Driver {
	d, err := NewDriverWithOptions(options)
	So(err, ShouldBeNil)
	So(d.Open(context.Background()), ShouldBeNil)
	return d
}

func selectAll(ctx context.Context, d *Driver, where ir.Node) [][]any {
	cursor, err := d.Select(ctx, &driver.SelectQuery{
		Columns: []ir.Node{email, age},
		Tables:  []string{"users"},
		Where:   where,
		OrderBy: []ir.Node{email},
	})
	So(err, ShouldBeNil)
	var rows [][]any
	for cursor.Next() {
		rows = append(rows, cursor.Values())
	}
	So(cursor.Err(), ShouldBeNil)
	return rows
}

func TestDriver(t *testing.T) {
	Convey("测试 sqlite 驱动", t, func() {
		ctx := context.Background()
		d := newTestDriver(nil)
		defer d.Close()

		So(d.Name(), ShouldEqual, "sqlite")
		So(d.Path(), ShouldEqual, ":memory:")
		So(d.CreateTableIfNotExists(ctx, "users", userColumns, []string{"email"}), ShouldBeNil)

		Convey("列出表和列", func() {
			tables, err := d.ListTables(ctx)
			So(err, ShouldBeNil)
			So(tables, ShouldResemble, []string{"users"})

			columns, err := d.ListColumns(ctx, "users")
			So(err, ShouldBeNil)
			So(len(columns), ShouldEqual, 4)
			So(columns[0], ShouldResemble, driver.ColumnInfo{Name: "email", Type: types.Text, NotNull: true, PrimaryKey: 1})
			So(columns[1].Type, ShouldEqual, types.Integer)
			So(columns[1].Default, ShouldEqual, "18")
			So(columns[2].Type, ShouldEqual, types.Boolean)
			So(columns[3].Type, ShouldEqual, types.Timestamp)

			_, err = d.ListColumns(ctx, "nosuchtable")
			So(errors.Is(err, errs.ErrKey), ShouldBeTrue)
			_, err = d.ListColumns(ctx, "bad name")
			So(errors.Is(err, errs.ErrNaming), ShouldBeTrue)
		})

		Convey("插入、查询、更新、删除", func() {
			created := time.Date(2012, 5, 5, 13, 14, 15, 0, time.UTC)
			So(d.Insert(ctx, "users", []string{"email", "active", "created"}, []any{"a@x.com", true, created.Format(types.TimestampLayout)}), ShouldBeNil)
			So(d.Insert(ctx, "users", []string{"email", "age"}, []any{"b@x.com", int64(30)}), ShouldBeNil)
			So(d.LastSQL(), ShouldEqual, `INSERT INTO "users" ("email", "age") VALUES (?, ?)`)

			So(selectAll(ctx, d, nil), ShouldResemble, [][]any{{"a@x.com", int64(18)}, {"b@x.com", int64(30)}})

			cursor, err := d.Select(ctx, &driver.SelectQuery{
				Columns: []ir.Node{ir.ColumnRef{Table: "users", Name: "active"}, ir.ColumnRef{Table: "users", Name: "created"}},
				Tables:  []string{"users"},
				Where:   ir.NewOp(ir.Equal, email, ir.Lit("a@x.com")),
			})
			So(err, ShouldBeNil)
			So(cursor.Next(), ShouldBeTrue)
			So(cursor.Values()[0], ShouldEqual, true)
			So(cursor.Values()[1], ShouldEqual, created)
			So(cursor.Next(), ShouldBeFalse)

			So(d.Update(ctx, "users", ir.NewOp(ir.Equal, email, ir.Lit("b@x.com")), []string{"age"}, []any{int64(31)}), ShouldBeNil)
			So(selectAll(ctx, d, ir.NewOp(ir.GreaterThan, age, ir.Lit(20))), ShouldResemble, [][]any{{"b@x.com", int64(31)}})

			So(d.Delete(ctx, "users", ir.NewOp(ir.Equal, email, ir.Lit("a@x.com"))), ShouldBeNil)
			So(selectAll(ctx, d, nil), ShouldResemble, [][]any{{"b@x.com", int64(31)}})
		})

		Convey("和 NULL 的相等比较", func() {
			So(d.Insert(ctx, "users", []string{"email", "age"}, []any{"a@x.com", nil}), ShouldBeNil)
			So(d.Insert(ctx, "users", []string{"email"}, []any{"b@x.com"}), ShouldBeNil)

			So(selectAll(ctx, d, ir.NewOp(ir.Equal, age, ir.Lit(nil))), ShouldResemble, [][]any{{"a@x.com", nil}})
			So(selectAll(ctx, d, ir.NewOp(ir.NotEqual, age, ir.Lit(nil))), ShouldResemble, [][]any{{"b@x.com", int64(18)}})
		})

		Convey("唯一约束冲突", func() {
			So(d.Insert(ctx, "users", []string{"email"}, []any{"a@x.com"}), ShouldBeNil)
			err := d.Insert(ctx, "users", []string{"email"}, []any{"a@x.com"})
			So(errors.Is(err, errs.ErrValue), ShouldBeTrue)
			So(d.Depth(), ShouldEqual, 0)
		})

		Convey("未知的列和表", func() {
			err := d.Insert(ctx, "users", []string{"nosuchcolumn"}, []any{"a"})
			So(errors.Is(err, errs.ErrKey), ShouldBeTrue)

			_, err = d.Select(ctx, &driver.SelectQuery{
				Columns: []ir.Node{ir.ColumnRef{Table: "nosuchtable", Name: "a"}},
				Tables:  []string{"nosuchtable"},
			})
			So(errors.Is(err, errs.ErrKey), ShouldBeTrue)
		})

		Convey("生成的 SQL 语法错误带有位置", func() {
			d.OverrideOperator(ir.And, driver.Infix("AD"))
			_, err := d.Select(ctx, &driver.SelectQuery{
				Columns: []ir.Node{email},
				Tables:  []string{"users"},
				Where:   ir.NewOp(ir.And, ir.NewOp(ir.GreaterThan, age, ir.Lit(1)), ir.NewOp(ir.Equal, email, ir.Lit("a"))),
			})
			So(errors.Is(err, errs.ErrSQLSyntax), ShouldBeTrue)
			var se *errs.SQLSyntaxError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.SQL, ShouldEqual, d.LastSQL())
			So(se.Near(), ShouldStartWith, "AD (")
		})

		Convey("空插入使用默认值", func() {
			So(d.CreateTableIfNotExists(ctx, "counters", []driver.ColumnDef{
				{Name: "rowid", Type: types.Integer, Required: true, Unique: true, PrimaryKey: true, Autoincrement: true, SolePrimaryKey: true},
				{Name: "n", Type: types.Integer, HasDefault: true, Default: int64(7)},
			}, []string{"rowid"}), ShouldBeNil)
			So(d.Insert(ctx, "counters", nil, nil), ShouldBeNil)
			So(d.Insert(ctx, "counters", nil, nil), ShouldBeNil)

			cursor, err := d.Select(ctx, &driver.SelectQuery{
				Columns: []ir.Node{ir.ColumnRef{Table: "counters", Name: "rowid"}, ir.ColumnRef{Table: "counters", Name: "n"}},
				Tables:  []string{"counters"},
			})
			So(err, ShouldBeNil)
			var rows [][]any
			for cursor.Next() {
				rows = append(rows, cursor.Values())
			}
			So(rows, ShouldResemble, [][]any{{int64(1), int64(7)}, {int64(2), int64(7)}})

			columns, err := d.ListColumns(ctx, "counters")
			So(err, ShouldBeNil)
			So(columns[0].Autoincrement, ShouldBeTrue)
		})

		Convey("删除表", func() {
			So(d.DropTable(ctx, "users"), ShouldBeNil)
			tables, err := d.ListTables(ctx)
			So(err, ShouldBeNil)
			So(tables, ShouldBeEmpty)
		})
	})
}

func TestTransaction(t *testing.T) {
	Convey("测试事务深度计数", t, func() {
		ctx := context.Background()
		d := newTestDriver(nil)
		defer d.Close()
		So(d.CreateTableIfNotExists(ctx, "users", userColumns, []string{"email"}), ShouldBeNil)

		Convey("只有最外层提交", func() {
			So(d.Begin(ctx), ShouldBeNil)
			So(d.Begin(ctx), ShouldBeNil)
			So(d.Depth(), ShouldEqual, 2)
			So(d.Insert(ctx, "users", []string{"email"}, []any{"a@x.com"}), ShouldBeNil)
			So(d.Depth(), ShouldEqual, 2)
			So(d.End(ctx, nil), ShouldBeNil)
			So(d.End(ctx, nil), ShouldBeNil)
			So(d.Depth(), ShouldEqual, 0)
			So(len(selectAll(ctx, d, nil)), ShouldEqual, 1)
		})

		Convey("内层出错回滚整个外层事务", func() {
			So(d.Begin(ctx), ShouldBeNil)
			So(d.Insert(ctx, "users", []string{"email"}, []any{"a@x.com"}), ShouldBeNil)
			So(d.Begin(ctx), ShouldBeNil)
			So(d.Insert(ctx, "users", []string{"email"}, []any{"b@x.com"}), ShouldBeNil)
			So(d.End(ctx, errors.New("inner failed")), ShouldBeNil)
			So(d.End(ctx, errors.New("inner failed")), ShouldBeNil)
			So(d.LastSQL(), ShouldEqual, "ROLLBACK")
			So(selectAll(ctx, d, nil), ShouldBeEmpty)
		})

		Convey("事务中提交后继续处于事务中", func() {
			So(d.Begin(ctx), ShouldBeNil)
			So(d.Insert(ctx, "users", []string{"email"}, []any{"a@x.com"}), ShouldBeNil)
			So(d.Commit(ctx), ShouldBeNil)
			So(d.Insert(ctx, "users", []string{"email"}, []any{"b@x.com"}), ShouldBeNil)
			So(d.Rollback(ctx), ShouldBeNil)
			So(d.Depth(), ShouldEqual, 1)
			So(d.End(ctx, nil), ShouldBeNil)
			So(selectAll(ctx, d, nil), ShouldResemble, [][]any{{"a@x.com", int64(18)}})
		})

		Convey("没有 Begin 的 End", func() {
			So(errors.Is(d.End(ctx, nil), errs.ErrType), ShouldBeTrue)
		})

		Convey("新语句作废之前的游标", func() {
			So(d.Insert(ctx, "users", []string{"email"}, []any{"a@x.com"}), ShouldBeNil)
			So(d.Insert(ctx, "users", []string{"email"}, []any{"b@x.com"}), ShouldBeNil)

			cursor, err := d.Select(ctx, &driver.SelectQuery{Columns: []ir.Node{email}, Tables: []string{"users"}})
			So(err, ShouldBeNil)
			So(cursor.Next(), ShouldBeTrue)

			So(d.Insert(ctx, "users", []string{"email"}, []any{"c@x.com"}), ShouldBeNil)
			So(cursor.Next(), ShouldBeFalse)
			So(cursor.Err(), ShouldBeNil)
		})
	})
}

func TestDebugTemporaryTables(t *testing.T) {
	Convey("测试调试模式建临时表", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "debug.db")

		d := newTestDriver(&Options{Path: path, Debug: true})
		So(d.CreateTableIfNotExists(ctx, "users", userColumns, []string{"email"}), ShouldBeNil)
		So(d.LastSQL(), ShouldStartWith, "CREATE TEMP TABLE")
		tables, err := d.ListTables(ctx)
		So(err, ShouldBeNil)
		So(tables, ShouldResemble, []string{"users"})
		So(d.Close(), ShouldBeNil)

		d = newTestDriver(&Options{Path: path})
		defer d.Close()
		tables, err = d.ListTables(ctx)
		So(err, ShouldBeNil)
		So(tables, ShouldBeEmpty)
	})
}

func TestTranslateError(t *testing.T) {
	Convey("测试错误翻译", t, func() {
		dialect := Dialect{}

		Convey("打不开的文件", func() {
			d, err := NewDriverWithOptions(&Options{Path: filepath.Join(t.TempDir(), "nosuchdir", "x.db")})
			So(err, ShouldBeNil)
			defer d.Close()
			So(errors.Is(d.Open(context.Background()), errs.ErrIO), ShouldBeTrue)
		})

		Convey("按错误码分类", func() {
			cases := []struct {
				code sqlite3.ErrNo
				kind error
			}{
				{sqlite3.ErrConstraint, errs.ErrValue},
				{sqlite3.ErrMismatch, errs.ErrValue},
				{sqlite3.ErrCantOpen, errs.ErrIO},
				{sqlite3.ErrNotADB, errs.ErrIO},
				{sqlite3.ErrAuth, errs.ErrAuthentication},
				{sqlite3.ErrBusy, errs.ErrDatabase},
			}
			for _, c := range cases {
				err := dialect.TranslateError(sqlite3.Error{Code: c.code}, "SELECT 1")
				So(errors.Is(err, c.kind), ShouldBeTrue)
			}
			So(errors.Is(dialect.TranslateError(errors.New("other"), ""), errs.ErrDatabase), ShouldBeTrue)
		})

		Convey("语法错误的位置", func() {
			So(syntaxOffset(`SELECT a AD b`, `near "AD": syntax error`), ShouldEqual, 9)
			So(syntaxOffset(`SELECT a FROM`, `incomplete input`), ShouldEqual, 13)
			So(syntaxOffset(`SELECT`, `unknown`), ShouldEqual, -1)
		})

		Convey("默认值文本", func() {
			So(unquoteDefault(`'it''s'`), ShouldEqual, "it's")
			So(unquoteDefault("NULL"), ShouldBeNil)
			So(unquoteDefault("18"), ShouldEqual, "18")
		})

		Convey("类型映射", func() {
			So(dialect.UnmapType("INTEGER"), ShouldEqual, types.Integer)
			So(dialect.UnmapType("varchar(20)"), ShouldEqual, types.Text)
			So(dialect.UnmapType("BOOLEAN"), ShouldEqual, types.Boolean)
			So(dialect.UnmapType("TIMESTAMP"), ShouldEqual, types.Timestamp)
			So(dialect.UnmapType("REAL"), ShouldEqual, types.Float)
			So(dialect.UnmapType(""), ShouldEqual, types.Binary)
		})
	})
}
