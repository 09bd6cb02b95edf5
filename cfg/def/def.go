// Package def 根据 def tag 为结构体填充默认值
package def

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// SetDefaults 为结构体的零值字段设置 def tag 指定的默认值
// 为 nil 的结构体指针字段保持 nil，不会被自动创建
func SetDefaults(object interface{}) error {
	if object == nil {
		return fmt.Errorf("object cannot be nil")
	}

	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr {
		return fmt.Errorf("object must be a pointer")
	}
	if rv.IsNil() {
		return fmt.Errorf("object cannot be nil")
	}

	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := rv.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		if isNestedStruct(fieldValue) {
			if err := setDefaults(fieldValue); err != nil {
				return fmt.Errorf("failed to set defaults for field %s: %v", field.Name, err)
			}
			continue
		}

		defTag, ok := field.Tag.Lookup("def")
		if !ok || defTag == "" || !fieldValue.IsZero() {
			continue
		}

		if fieldValue.Kind() == reflect.Ptr {
			fieldValue.Set(reflect.New(fieldValue.Type().Elem()))
			fieldValue = fieldValue.Elem()
		}

		if err := setDefaultValue(fieldValue, defTag); err != nil {
			return fmt.Errorf("failed to set default value for field %s: %v", field.Name, err)
		}
	}

	return nil
}

// isNestedStruct time.Time 按普通值处理
func isNestedStruct(rv reflect.Value) bool {
	t := rv.Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != reflect.TypeOf(time.Time{})
}

func setDefaultValue(rv reflect.Value, defValue string) error {
	switch rv.Kind() {
	case reflect.String:
		rv.SetString(defValue)
		return nil

	case reflect.Bool:
		val, err := strconv.ParseBool(defValue)
		if err != nil {
			return fmt.Errorf("invalid bool value %q: %v", defValue, err)
		}
		rv.SetBool(val)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(defValue)
			if err != nil {
				return fmt.Errorf("invalid duration value %q: %v", defValue, err)
			}
			rv.SetInt(int64(duration))
			return nil
		}
		val, err := strconv.ParseInt(defValue, 0, rv.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid int value %q: %v", defValue, err)
		}
		rv.SetInt(val)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		val, err := strconv.ParseUint(defValue, 0, rv.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid uint value %q: %v", defValue, err)
		}
		rv.SetUint(val)
		return nil

	case reflect.Float32, reflect.Float64:
		val, err := strconv.ParseFloat(defValue, rv.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid float value %q: %v", defValue, err)
		}
		rv.SetFloat(val)
		return nil

	case reflect.Slice:
		parts := strings.Split(defValue, ",")
		slice := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setDefaultValue(slice.Index(i), strings.TrimSpace(part)); err != nil {
				return fmt.Errorf("failed to set slice element %d: %v", i, err)
			}
		}
		rv.Set(slice)
		return nil
	}

	return fmt.Errorf("unsupported type %v", rv.Type())
}
