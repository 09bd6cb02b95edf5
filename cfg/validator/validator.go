package validator

import (
	"reflect"
	"regexp"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// IsIdentifier 只包含字母、数字、下划线的非空字符串
func IsIdentifier(s string) bool {
	return identifierRegex.MatchString(s)
}

var (
	once     sync.Once
	validate *validator.Validate
)

// instance validator.Validate 会缓存结构体信息，全局共享一个实例
func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			return IsIdentifier(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct 校验结构体的 validate tag，非结构体和 nil 指针直接通过
// 除内置规则外还支持 identifier：只允许字母、数字、下划线
func ValidateStruct(object interface{}) error {
	if object == nil {
		return nil
	}

	rv := reflect.ValueOf(object)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		return nil
	}
	if rv.Type() == reflect.TypeOf(time.Time{}) {
		return nil
	}

	return instance().Struct(rv.Interface())
}
