// Package types 维护应用层值类型与存储表示之间的转换规则
package types

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hatlonely/webdb/errs"
)

// NativeType 列的原生类型
type NativeType string

const (
	Integer   NativeType = "integer"
	Float     NativeType = "float"
	Boolean   NativeType = "boolean"
	Text      NativeType = "text"
	Binary    NativeType = "binary"
	Timestamp NativeType = "timestamp"
)

// TimestampLayout 时间戳在存储中的规范格式
const TimestampLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t NativeType) Valid() bool {
	switch t {
	case Integer, Float, Boolean, Text, Binary, Timestamp:
		return true
	}
	return false
}

// Textual 文本和二进制类型上的 + 表示拼接
func (t NativeType) Textual() bool {
	return t == Text || t == Binary
}

// Codec 一种原生类型的双向转换
type Codec struct {
	// ToStorage 写入前的转换，拒绝宽松的隐式转换
	ToStorage func(v any) (any, error)
	// FromStorage 读出后的转换，兼容驱动返回的各种表示
	FromStorage func(v any) (any, error)
}

var (
	mu     sync.RWMutex
	codecs = map[NativeType]Codec{
		Integer:   {ToStorage: integerToStorage, FromStorage: integerFromStorage},
		Float:     {ToStorage: floatToStorage, FromStorage: floatFromStorage},
		Boolean:   {ToStorage: booleanToStorage, FromStorage: booleanFromStorage},
		Text:      {ToStorage: textToStorage, FromStorage: textFromStorage},
		Binary:    {ToStorage: binaryToStorage, FromStorage: binaryFromStorage},
		Timestamp: {ToStorage: timestampToStorage, FromStorage: timestampFromStorage},
	}
)

// Register 注册或替换某种类型的转换规则
func Register(t NativeType, codec Codec) error {
	if t == "" {
		return errs.Wrapf(errs.ErrType, "native type name is empty")
	}
	if codec.ToStorage == nil || codec.FromStorage == nil {
		return errs.Wrapf(errs.ErrType, "codec for %s must provide both directions", t)
	}
	mu.Lock()
	defer mu.Unlock()
	codecs[t] = codec
	return nil
}

func Lookup(t NativeType) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	codec, ok := codecs[t]
	return codec, ok
}

// ToStorage nil 对任何类型都表示 NULL
func ToStorage(t NativeType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	codec, ok := Lookup(t)
	if !ok {
		return nil, errs.Wrapf(errs.ErrType, "unknown native type %q", t)
	}
	return codec.ToStorage(v)
}

func FromStorage(t NativeType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	codec, ok := Lookup(t)
	if !ok {
		return nil, errs.Wrapf(errs.ErrType, "unknown native type %q", t)
	}
	return codec.FromStorage(v)
}

// Of 推断字面量的原生类型，无法推断时返回空字符串
func Of(v any) NativeType {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Integer
	case float32, float64:
		return Float
	case bool:
		return Boolean
	case string:
		return Text
	case []byte:
		return Binary
	case time.Time:
		return Timestamp
	}
	return ""
}

func reject(v any, t NativeType) error {
	return errs.Wrapf(errs.ErrValue, "cannot store %T value %v as %s", v, v, t)
}

func integerToStorage(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, reject(v, Integer)
		}
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, reject(v, Integer)
		}
		return int64(x), nil
	}
	return nil, reject(v, Integer)
}

func integerFromStorage(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x == math.Trunc(x) {
			return int64(x), nil
		}
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case []byte:
		return parseInteger(string(x))
	case string:
		return parseInteger(x)
	}
	return nil, errs.Wrapf(errs.ErrValue, "cannot read %T value %v as integer", v, v)
}

func parseInteger(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	// 聚合函数在部分后端返回 DECIMAL 文本，比如 "105.0000"
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
		return int64(f), nil
	}
	return nil, errs.Wrapf(errs.ErrValue, "cannot read %q as integer", s)
}

func floatToStorage(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	}
	if i, err := integerToStorage(v); err == nil {
		return float64(i.(int64)), nil
	}
	return nil, reject(v, Float)
}

func floatFromStorage(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	}
	return nil, errs.Wrapf(errs.ErrValue, "cannot read %T value %v as float", v, v)
}

func parseFloat(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrValue, "cannot read %q as float", s)
	}
	return f, nil
}

func booleanToStorage(v any) (any, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return nil, reject(v, Boolean)
}

func booleanFromStorage(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case []byte:
		return parseBoolean(string(x))
	case string:
		return parseBoolean(x)
	}
	return nil, errs.Wrapf(errs.ErrValue, "cannot read %T value %v as boolean", v, v)
}

func parseBoolean(s string) (any, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return nil, errs.Wrapf(errs.ErrValue, "cannot read %q as boolean", s)
	}
	return b, nil
}

// textToStorage 只接受 string，[]byte 属于另一种文本表示
func textToStorage(v any) (any, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return nil, reject(v, Text)
}

func textFromStorage(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case time.Time:
		return x.Format(TimestampLayout), nil
	}
	return nil, errs.Wrapf(errs.ErrValue, "cannot read %T value %v as text", v, v)
}

func binaryToStorage(v any) (any, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return nil, reject(v, Binary)
}

func binaryFromStorage(v any) (any, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	return nil, errs.Wrapf(errs.ErrValue, "cannot read %T value %v as binary", v, v)
}

// timestampToStorage 统一转换成 UTC 的墙上时间，精度到秒
func timestampToStorage(v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(TimestampLayout), nil
	}
	return nil, reject(v, Timestamp)
}

func timestampFromStorage(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case []byte:
		return ParseTimestamp(string(x))
	case string:
		return ParseTimestamp(x)
	}
	return nil, errs.Wrapf(errs.ErrValue, "cannot read %T value %v as timestamp", v, v)
}

// ParseTimestamp 解析存储中的时间文本，没有时区信息的按 UTC 处理
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errs.Wrapf(errs.ErrValue, "cannot read %q as timestamp", s)
}
