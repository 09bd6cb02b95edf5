package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hatlonely/webdb/log/logger"
	"github.com/hatlonely/webdb/ref"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewLoggerWithOptions(t *testing.T) {
	Convey("测试创建日志器", t, func() {
		Convey("nil 返回默认日志器", func() {
			l, err := NewLoggerWithOptions(nil)
			So(err, ShouldBeNil)
			So(l, ShouldEqual, Default())
		})

		Convey("默认 SLog", func() {
			path := filepath.Join(t.TempDir(), "webdb.log")
			l, err := NewLoggerWithOptions(&ref.TypeOptions{
				Options: map[string]any{
					"level":  "debug",
					"format": "json",
					"output": map[string]any{
						"type":    "FileWriter",
						"options": map[string]any{"path": path},
					},
				},
			})
			So(err, ShouldBeNil)
			So(l, ShouldHaveSameTypeAs, &logger.SLog{})

			l.Debug("execute", "sql", "SELECT 1")
			content, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(content), ShouldContainSubstring, `"sql":"SELECT 1"`)
		})

		Convey("结构体参数", func() {
			l, err := NewLoggerWithOptions(&ref.TypeOptions{
				Type:    "SLog",
				Options: &logger.SLogOptions{Level: "warn"},
			})
			So(err, ShouldBeNil)
			So(l, ShouldNotBeNil)
		})

		Convey("错误的参数", func() {
			_, err := NewLoggerWithOptions(&ref.TypeOptions{
				Options: map[string]any{"level": "verbose"},
			})
			So(err, ShouldNotBeNil)

			_, err = NewLoggerWithOptions(&ref.TypeOptions{Type: "ZapLogger"})
			So(err, ShouldNotBeNil)
		})
	})
}
