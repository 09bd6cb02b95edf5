package types

import (
	"testing"
	"time"

	"github.com/hatlonely/webdb/errs"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRoundTrip(t *testing.T) {
	Convey("测试存储转换往返一致", t, func() {
		cases := []struct {
			typ    NativeType
			values []any
		}{
			{Integer, []any{int64(0), int64(1), int64(-1), int64(1 << 40)}},
			{Float, []any{0.0, -1.5, 3.25}},
			{Boolean, []any{true, false}},
			{Text, []any{"", "hello", "中文"}},
			{Binary, []any{[]byte{}, []byte{0, 1, 2, 255}}},
			{Timestamp, []any{time.Date(2012, 5, 5, 13, 14, 15, 0, time.UTC)}},
		}
		for _, c := range cases {
			for _, v := range c.values {
				stored, err := ToStorage(c.typ, v)
				So(err, ShouldBeNil)
				back, err := FromStorage(c.typ, stored)
				So(err, ShouldBeNil)
				So(back, ShouldResemble, v)
			}
		}

		Convey("非 UTC 的时间读回同一时刻", func() {
			at := time.Date(2024, 1, 2, 10, 0, 0, 0, time.FixedZone("CST", 8*3600))
			stored, err := ToStorage(Timestamp, at)
			So(err, ShouldBeNil)
			So(stored, ShouldEqual, "2024-01-02 02:00:00")
			back, err := FromStorage(Timestamp, stored)
			So(err, ShouldBeNil)
			So(back.(time.Time).Equal(at), ShouldBeTrue)
		})
	})
}

func TestToStorageStrictness(t *testing.T) {
	Convey("测试写入转换拒绝宽松转换", t, func() {
		Convey("整数列拒绝浮点数和字符串", func() {
			_, err := ToStorage(Integer, 12345.0)
			So(errors.Is(err, errs.ErrValue), ShouldBeTrue)
			_, err = ToStorage(Integer, "12345")
			So(errors.Is(err, errs.ErrValue), ShouldBeTrue)
			_, err = ToStorage(Integer, true)
			So(errors.Is(err, errs.ErrValue), ShouldBeTrue)
			v, err := ToStorage(Integer, 12345)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, int64(12345))
		})

		Convey("文本列只接受 string", func() {
			_, err := ToStorage(Text, 12345)
			So(errors.Is(err, errs.ErrValue), ShouldBeTrue)
			_, err = ToStorage(Text, []byte("12345"))
			So(errors.Is(err, errs.ErrValue), ShouldBeTrue)
		})

		Convey("二进制列只接受 []byte", func() {
			_, err := ToStorage(Binary, "abc")
			So(errors.Is(err, errs.ErrValue), ShouldBeTrue)
		})

		Convey("浮点列接受整数", func() {
			v, err := ToStorage(Float, 3)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 3.0)
		})

		Convey("时间戳格式化到秒", func() {
			v, err := ToStorage(Timestamp, time.Date(2010, 4, 12, 8, 30, 0, 999, time.Local))
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "2010-04-12 08:30:00")
			_, err = ToStorage(Timestamp, "2010-04-12")
			So(errors.Is(err, errs.ErrValue), ShouldBeTrue)
		})

		Convey("nil 表示 NULL", func() {
			v, err := ToStorage(Integer, nil)
			So(err, ShouldBeNil)
			So(v, ShouldBeNil)
		})

		Convey("未知类型", func() {
			_, err := ToStorage(NativeType("decimal"), 1)
			So(errors.Is(err, errs.ErrType), ShouldBeTrue)
		})
	})
}

func TestFromStorage(t *testing.T) {
	Convey("测试读出转换兼容驱动返回的各种表示", t, func() {
		v, err := FromStorage(Integer, []byte("105"))
		So(err, ShouldBeNil)
		So(v, ShouldEqual, int64(105))

		v, err = FromStorage(Integer, "105.0000")
		So(err, ShouldBeNil)
		So(v, ShouldEqual, int64(105))

		v, err = FromStorage(Float, []byte("26.2500"))
		So(err, ShouldBeNil)
		So(v, ShouldEqual, 26.25)

		v, err = FromStorage(Boolean, int64(1))
		So(err, ShouldBeNil)
		So(v, ShouldEqual, true)

		v, err = FromStorage(Text, []byte("Smith"))
		So(err, ShouldBeNil)
		So(v, ShouldEqual, "Smith")

		ts := time.Date(2012, 5, 5, 0, 0, 0, 0, time.UTC)
		v, err = FromStorage(Timestamp, ts)
		So(err, ShouldBeNil)
		So(v, ShouldResemble, ts)

		v, err = FromStorage(Timestamp, "2012-05-05 00:00:00")
		So(err, ShouldBeNil)
		So(v.(time.Time).Equal(ts), ShouldBeTrue)

		_, err = FromStorage(Integer, "abc")
		So(errors.Is(err, errs.ErrValue), ShouldBeTrue)
	})
}

func TestRegister(t *testing.T) {
	Convey("测试注册自定义类型", t, func() {
		So(errors.Is(Register("", Codec{}), errs.ErrType), ShouldBeTrue)
		So(errors.Is(Register("money", Codec{ToStorage: func(v any) (any, error) { return v, nil }}), errs.ErrType), ShouldBeTrue)

		So(Register("money", Codec{
			ToStorage:   func(v any) (any, error) { return int64(v.(float64) * 100), nil },
			FromStorage: func(v any) (any, error) { return float64(v.(int64)) / 100, nil },
		}), ShouldBeNil)
		v, err := ToStorage("money", 12.5)
		So(err, ShouldBeNil)
		So(v, ShouldEqual, int64(1250))
		_, ok := Lookup("money")
		So(ok, ShouldBeTrue)
	})
}

func TestOf(t *testing.T) {
	Convey("测试字面量类型推断", t, func() {
		So(Of(1), ShouldEqual, Integer)
		So(Of(1.5), ShouldEqual, Float)
		So(Of("a"), ShouldEqual, Text)
		So(Of([]byte("a")), ShouldEqual, Binary)
		So(Of(true), ShouldEqual, Boolean)
		So(Of(time.Now()), ShouldEqual, Timestamp)
		So(Of(nil), ShouldEqual, NativeType(""))
		So(Text.Textual(), ShouldBeTrue)
		So(Integer.Textual(), ShouldBeFalse)
		So(Timestamp.Valid(), ShouldBeTrue)
		So(NativeType("x").Valid(), ShouldBeFalse)
	})
}
