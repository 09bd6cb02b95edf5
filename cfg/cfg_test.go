package cfg

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type databaseConfig struct {
	Driver  string `cfg:"driver" validate:"required,oneof=sqlite mysql"`
	Options struct {
		Path string `cfg:"path" def:":memory:"`
	} `cfg:"options"`
}

func writeFile(t *testing.T, name string, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("测试加载配置文件", t, func() {
		Convey("yaml", func() {
			storage, err := Load(writeFile(t, "webdb.yaml", "driver: sqlite\noptions:\n  path: /tmp/a.db\n"))
			So(err, ShouldBeNil)

			var config databaseConfig
			So(storage.ConvertTo(&config), ShouldBeNil)
			So(config.Driver, ShouldEqual, "sqlite")
			So(config.Options.Path, ShouldEqual, "/tmp/a.db")
		})

		Convey("默认值", func() {
			storage, err := Load(writeFile(t, "webdb.json", `{"driver": "sqlite"}`))
			So(err, ShouldBeNil)

			var config databaseConfig
			So(storage.ConvertTo(&config), ShouldBeNil)
			So(config.Options.Path, ShouldEqual, ":memory:")
		})

		Convey("校验失败", func() {
			storage, err := Load(writeFile(t, "webdb.toml", `driver = "postgres"`))
			So(err, ShouldBeNil)

			var config databaseConfig
			So(storage.ConvertTo(&config), ShouldNotBeNil)
		})

		Convey("文件不存在", func() {
			_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
			So(err, ShouldNotBeNil)
		})

		Convey("不支持的格式", func() {
			_, err := Load(writeFile(t, "webdb.xml", "<driver/>"))
			So(err, ShouldNotBeNil)
		})

		Convey("内容错误", func() {
			_, err := Load(writeFile(t, "webdb.json", `{"driver": `))
			So(err, ShouldNotBeNil)
		})
	})
}
