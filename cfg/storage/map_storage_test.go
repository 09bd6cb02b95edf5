package storage

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type typeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

type observeOptions struct {
	EnableMetrics bool   `cfg:"enableMetrics"`
	Name          string `cfg:"name" def:"webdb"`
}

type driverOptions struct {
	Database string            `cfg:"database" validate:"required"`
	Password string            `cfg:"password"`
	Port     int               `cfg:"port" def:"3306"`
	Timeout  time.Duration     `cfg:"timeout" def:"5s"`
	Debug    bool              `cfg:"debug"`
	Tables   []string          `cfg:"tables"`
	Params   map[string]string `cfg:"params"`
	Observe  observeOptions    `cfg:"observe"`
	Logger   *typeOptions      `cfg:"logger"`
	Ignored  string            `cfg:"-"`
}

var testData = map[string]interface{}{
	"driver": "mysql",
	"options": map[string]interface{}{
		"database": "webdb",
		"password": 123456,
		"port":     float64(3307),
		"timeout":  "2s",
		"debug":    "true",
		"tables":   []interface{}{"users", "accounts"},
		"params":   map[string]interface{}{"charset": "utf8mb4"},
		"observe": map[string]interface{}{
			"enableMetrics": true,
		},
		"logger": map[string]interface{}{
			"type": "SLog",
			"options": map[string]interface{}{
				"level": "debug",
			},
		},
		"Ignored": "value",
	},
	"drivers": []interface{}{
		map[string]interface{}{"path": ":memory:"},
	},
}

func TestMapStorage(t *testing.T) {
	Convey("MapStorage 测试", t, func() {
		storage := NewMapStorage(testData)

		Convey("Sub 支持多级 key 和数组索引", func() {
			So(storage.Sub("driver").(*MapStorage).Data(), ShouldEqual, "mysql")
			So(storage.Sub("options.observe.enableMetrics").(*MapStorage).Data(), ShouldEqual, true)
			So(storage.Sub("drivers[0].path").(*MapStorage).Data(), ShouldEqual, ":memory:")
			So(storage.Sub("drivers[1].path").(*MapStorage).Data(), ShouldBeNil)
			So(storage.Sub("unknown.key").(*MapStorage).Data(), ShouldBeNil)
			So(storage.Sub(""), ShouldEqual, storage)
		})

		Convey("ConvertTo 结构体", func() {
			var options driverOptions
			So(storage.Sub("options").ConvertTo(&options), ShouldBeNil)

			So(options.Database, ShouldEqual, "webdb")
			So(options.Password, ShouldEqual, "123456")
			So(options.Port, ShouldEqual, 3307)
			So(options.Timeout, ShouldEqual, 2*time.Second)
			So(options.Debug, ShouldBeTrue)
			So(options.Tables, ShouldResemble, []string{"users", "accounts"})
			So(options.Params, ShouldResemble, map[string]string{"charset": "utf8mb4"})
			So(options.Observe.EnableMetrics, ShouldBeTrue)
			So(options.Observe.Name, ShouldEqual, "webdb")
			So(options.Ignored, ShouldEqual, "")

			So(options.Logger, ShouldNotBeNil)
			So(options.Logger.Type, ShouldEqual, "SLog")
			sub, ok := options.Logger.Options.(Storage)
			So(ok, ShouldBeTrue)
			var level struct {
				Level string `cfg:"level" def:"info"`
			}
			So(sub.ConvertTo(&level), ShouldBeNil)
			So(level.Level, ShouldEqual, "debug")
		})

		Convey("空配置只填充默认值", func() {
			var options driverOptions
			So(NewMapStorage(nil).ConvertTo(&options), ShouldBeNil)
			So(options.Port, ShouldEqual, 3306)
			So(options.Timeout, ShouldEqual, 5*time.Second)
			So(options.Logger, ShouldBeNil)
		})

		Convey("字段名不区分大小写", func() {
			var options struct {
				Path string
			}
			So(NewMapStorage(map[string]interface{}{"path": "/tmp/a.db"}).ConvertTo(&options), ShouldBeNil)
			So(options.Path, ShouldEqual, "/tmp/a.db")
		})

		Convey("类型不匹配返回错误", func() {
			var options driverOptions
			So(NewMapStorage(map[string]interface{}{"port": "abc"}).ConvertTo(&options), ShouldNotBeNil)
			So(NewMapStorage(map[string]interface{}{"tables": "users"}).ConvertTo(&options), ShouldNotBeNil)
			So(NewMapStorage(map[string]interface{}{"timeout": "1x"}).ConvertTo(&options), ShouldNotBeNil)
			So(storage.ConvertTo(options), ShouldNotBeNil)
		})

		Convey("ConvertTo 非结构体", func() {
			var tables []string
			So(storage.Sub("options.tables").ConvertTo(&tables), ShouldBeNil)
			So(tables, ShouldResemble, []string{"users", "accounts"})

			var port int
			So(storage.Sub("options.port").ConvertTo(&port), ShouldBeNil)
			So(port, ShouldEqual, 3307)
		})
	})
}

func TestValidateStorage(t *testing.T) {
	Convey("ValidateStorage 测试", t, func() {
		Convey("校验通过", func() {
			var options driverOptions
			storage := NewValidateStorage(NewMapStorage(testData)).Sub("options")
			So(storage.ConvertTo(&options), ShouldBeNil)
			So(options.Database, ShouldEqual, "webdb")
		})

		Convey("必填字段缺失", func() {
			var options driverOptions
			storage := NewValidateStorage(NewMapStorage(map[string]interface{}{"port": 3306}))
			So(storage.ConvertTo(&options), ShouldNotBeNil)
		})

		Convey("nil storage", func() {
			var options driverOptions
			storage := NewValidateStorage(nil)
			So(storage.Sub("a"), ShouldBeNil)
			So(storage.ConvertTo(&options), ShouldBeNil)
		})
	})
}

func TestNormalize(t *testing.T) {
	Convey("Normalize 测试", t, func() {
		_, ok := Normalize(map[string]any{"path": ":memory:"}).(Storage)
		So(ok, ShouldBeTrue)
		_, ok = Normalize([]any{1, 2}).(Storage)
		So(ok, ShouldBeTrue)
		So(Normalize(nil), ShouldBeNil)
		So(Normalize("abc"), ShouldEqual, "abc")

		options := &driverOptions{Database: "webdb"}
		So(Normalize(options), ShouldEqual, options)
	})
}
