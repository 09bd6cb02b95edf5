// Package driver 定义存储后端的驱动契约
//
// Base 实现了与方言无关的部分：IR 到 SQL 的渲染、单连接单游标的执行入口、
// 事务深度计数和错误翻译。具体驱动只需要提供 Dialect。
package driver

import (
	"context"

	"github.com/hatlonely/webdb/ir"
	"github.com/hatlonely/webdb/types"
)

// ColumnDef 建表时的列定义，值都已经是存储表示
type ColumnDef struct {
	Name          string
	Type          types.NativeType
	Required      bool
	Unique        bool
	PrimaryKey    bool
	Autoincrement bool
	// SolePrimaryKey 该列是唯一的主键列，sqlite 可以内联成 INTEGER PRIMARY KEY
	SolePrimaryKey bool
	HasDefault     bool
	Default        any
	MaxLength      int
}

// ColumnInfo 从后端读到的列信息
type ColumnInfo struct {
	Name    string
	Type    types.NativeType
	NotNull bool
	Default any
	// PrimaryKey 在主键中的位置，从 1 开始，0 表示不是主键
	PrimaryKey    int
	Autoincrement bool
}

// SelectQuery 一次 SELECT 的全部输入
type SelectQuery struct {
	Columns  []ir.Node
	Tables   []string
	Where    ir.Node
	Distinct bool
	OrderBy  []ir.Node
}

// Cursor 只进游标
// 游标被新语句作废后 Next 返回 false，Err 返回 nil
type Cursor interface {
	Next() bool
	Values() []any
	Err() error
	Close() error
}

// Driver 驱动契约，所有返回的错误都已经翻译成 errs 中的类型
type Driver interface {
	Name() string
	Open(ctx context.Context) error

	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]ColumnInfo, error)
	CreateTableIfNotExists(ctx context.Context, table string, columns []ColumnDef, primaryKey []string) error
	DropTable(ctx context.Context, table string) error

	Insert(ctx context.Context, table string, columns []string, values []any) error
	Select(ctx context.Context, query *SelectQuery) (Cursor, error)
	Update(ctx context.Context, table string, where ir.Node, columns []string, values []any) error
	Delete(ctx context.Context, table string, where ir.Node) error

	// Begin 进入事务，深度加一，只有最外层会真正开启事务
	Begin(ctx context.Context) error
	// End 退出事务，深度减一，最外层退出时 cause 为 nil 提交，否则回滚
	End(ctx context.Context, cause error) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Depth() int

	LastSQL() string
	Close() error
}
