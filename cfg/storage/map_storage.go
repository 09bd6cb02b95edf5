package storage

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/webdb/cfg/def"
)

// MapStorage 基于 map 和 slice 的存储实现，通常由 decoder 解析配置文件得到
type MapStorage struct {
	data interface{}
}

// NewMapStorage 创建一个新的 MapStorage 实例
func NewMapStorage(data interface{}) *MapStorage {
	return &MapStorage{data: data}
}

// Data 获取存储的原始数据
func (ms *MapStorage) Data() interface{} {
	return ms.data
}

// Sub 获取子配置存储对象
func (ms *MapStorage) Sub(key string) Storage {
	if key == "" {
		return ms
	}
	return NewMapStorage(ms.getValue(key))
}

// ConvertTo 将配置数据转成 object 指向的结构，结构体会再按 def tag 补齐默认值
func (ms *MapStorage) ConvertTo(object interface{}) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("object must be a non-nil pointer")
	}
	if err := convertValue(ms.data, rv.Elem()); err != nil {
		return err
	}
	if rv.Elem().Kind() == reflect.Struct {
		return def.SetDefaults(object)
	}
	return nil
}

func (ms *MapStorage) getValue(key string) interface{} {
	current := ms.data
	for _, k := range parseKey(key) {
		current = getValueByKey(current, k)
		if current == nil {
			return nil
		}
	}
	return current
}

// parseKey "a.b[0].c" => ["a", "b", "0", "c"]
func parseKey(key string) []string {
	return strings.FieldsFunc(key, func(r rune) bool {
		return r == '.' || r == '[' || r == ']'
	})
}

func getValueByKey(data interface{}, key string) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		return v[key]
	case []interface{}:
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= len(v) {
			return nil
		}
		return v[index]
	}
	return nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

func convertValue(src interface{}, dst reflect.Value) error {
	srcValue := reflect.ValueOf(src)
	if !srcValue.IsValid() {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(src, dst.Elem())
	}

	// 未指定类型的字段（比如 ref.TypeOptions.Options）保留成 Storage，由构造函数自己转换
	if dst.Kind() == reflect.Interface && dst.Type().NumMethod() == 0 {
		dst.Set(reflect.ValueOf(Normalize(src)))
		return nil
	}

	if srcValue.Type().AssignableTo(dst.Type()) {
		dst.Set(srcValue)
		return nil
	}

	switch dst.Type() {
	case durationType:
		return convertToDuration(srcValue, dst)
	case timeType:
		return convertToTime(srcValue, dst)
	}

	switch dst.Kind() {
	case reflect.Map:
		return convertToMap(srcValue, dst)
	case reflect.Slice:
		return convertToSlice(srcValue, dst)
	case reflect.Struct:
		return convertToStruct(srcValue, dst)
	case reflect.String:
		return convertToString(srcValue, dst)
	case reflect.Bool:
		if srcValue.Kind() == reflect.String {
			b, err := strconv.ParseBool(srcValue.String())
			if err != nil {
				return fmt.Errorf("failed to parse bool %q: %v", srcValue.String(), err)
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if srcValue.Kind() == reflect.String {
			i, err := strconv.ParseInt(strings.TrimSpace(srcValue.String()), 0, dst.Type().Bits())
			if err != nil {
				return fmt.Errorf("failed to parse int %q: %v", srcValue.String(), err)
			}
			dst.SetInt(i)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if srcValue.Kind() == reflect.String {
			u, err := strconv.ParseUint(strings.TrimSpace(srcValue.String()), 0, dst.Type().Bits())
			if err != nil {
				return fmt.Errorf("failed to parse uint %q: %v", srcValue.String(), err)
			}
			dst.SetUint(u)
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if srcValue.Kind() == reflect.String {
			f, err := strconv.ParseFloat(strings.TrimSpace(srcValue.String()), dst.Type().Bits())
			if err != nil {
				return fmt.Errorf("failed to parse float %q: %v", srcValue.String(), err)
			}
			dst.SetFloat(f)
			return nil
		}
	}

	if isNumber(srcValue.Kind()) && isNumber(dst.Kind()) {
		dst.Set(srcValue.Convert(dst.Type()))
		return nil
	}

	return fmt.Errorf("cannot convert %v to %v", srcValue.Type(), dst.Type())
}

func isNumber(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// convertToString 数字和布尔值按字面转成字符串，比如 yaml 中没加引号的密码
func convertToString(src, dst reflect.Value) error {
	switch src.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetString(strconv.FormatInt(src.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetString(strconv.FormatUint(src.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		dst.SetString(strconv.FormatFloat(src.Float(), 'f', -1, 64))
	case reflect.Bool:
		dst.SetString(strconv.FormatBool(src.Bool()))
	default:
		return fmt.Errorf("cannot convert %v to string", src.Type())
	}
	return nil
}

// convertToDuration 字符串按 time.ParseDuration 解析，整数视为纳秒，浮点数视为秒
func convertToDuration(src, dst reflect.Value) error {
	switch src.Kind() {
	case reflect.String:
		d, err := time.ParseDuration(src.String())
		if err != nil {
			return fmt.Errorf("failed to parse duration %q: %v", src.String(), err)
		}
		dst.SetInt(int64(d))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(src.Int())
		return nil
	case reflect.Float32, reflect.Float64:
		dst.SetInt(int64(src.Float() * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("cannot convert %v to time.Duration", src.Type())
}

func convertToTime(src, dst reflect.Value) error {
	switch src.Kind() {
	case reflect.String:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, src.String()); err == nil {
				dst.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return fmt.Errorf("failed to parse time %q", src.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.Set(reflect.ValueOf(time.Unix(src.Int(), 0).UTC()))
		return nil
	}
	return fmt.Errorf("cannot convert %v to time.Time", src.Type())
}

func convertToMap(src, dst reflect.Value) error {
	if src.Kind() != reflect.Map {
		return fmt.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}
	for _, key := range src.MapKeys() {
		value := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(src.MapIndex(key).Interface(), value); err != nil {
			return fmt.Errorf("key %v: %v", key.Interface(), err)
		}
		mapKey := reflect.New(dst.Type().Key()).Elem()
		if err := convertValue(key.Interface(), mapKey); err != nil {
			return err
		}
		dst.SetMapIndex(mapKey, value)
	}
	return nil
}

func convertToSlice(src, dst reflect.Value) error {
	if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
		return fmt.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}
	length := src.Len()
	dst.Set(reflect.MakeSlice(dst.Type(), length, length))
	for i := 0; i < length; i++ {
		if err := convertValue(src.Index(i).Interface(), dst.Index(i)); err != nil {
			return fmt.Errorf("index %d: %v", i, err)
		}
	}
	return nil
}

// convertToStruct 字段名优先取 cfg tag，没有 tag 时按字段名不区分大小写匹配
func convertToStruct(src, dst reflect.Value) error {
	if src.Kind() != reflect.Map {
		return fmt.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}

	keys := map[string]reflect.Value{}
	for _, key := range src.MapKeys() {
		keys[strings.ToLower(fmt.Sprint(key.Interface()))] = src.MapIndex(key)
	}

	dstType := dst.Type()
	for i := 0; i < dstType.NumField(); i++ {
		field := dstType.Field(i)
		fieldValue := dst.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		name := field.Name
		if tag := strings.Split(field.Tag.Get("cfg"), ",")[0]; tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}

		value, ok := keys[strings.ToLower(name)]
		if !ok {
			continue
		}
		if err := convertValue(value.Interface(), fieldValue); err != nil {
			return fmt.Errorf("field %s: %v", field.Name, err)
		}
	}
	return nil
}
