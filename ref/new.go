package ref

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// ErrNotRegistered 指定的 namespace:type 没有注册构造函数
var ErrNotRegistered = errors.New("constructor not registered")

type constructor struct {
	originalFunc any
	newFunc      reflect.Value
	optionsType  reflect.Type
	returnsError bool
}

func newConstructor(newFunc any) (*constructor, error) {
	funcValue := reflect.ValueOf(newFunc)
	if funcValue.Kind() != reflect.Func {
		return nil, fmt.Errorf("newFunc must be a function")
	}

	funcType := funcValue.Type()
	numIn := funcType.NumIn()
	numOut := funcType.NumOut()

	// 0 个或 1 个参数
	if numIn != 0 && numIn != 1 {
		return nil, fmt.Errorf("newFunc must have 0 or 1 input parameters, got %d", numIn)
	}

	// 1 个或 2 个返回值，第二个必须是 error
	if numOut != 1 && numOut != 2 {
		return nil, fmt.Errorf("newFunc must have 1 or 2 return values, got %d", numOut)
	}

	c := &constructor{
		originalFunc: newFunc,
		newFunc:      funcValue,
	}
	if numIn == 1 {
		c.optionsType = funcType.In(0)
	}
	if numOut == 2 {
		errorInterface := reflect.TypeOf((*error)(nil)).Elem()
		if !funcType.Out(1).Implements(errorInterface) {
			return nil, fmt.Errorf("second return value must be error type")
		}
		c.returnsError = true
	}

	return c, nil
}

func (c *constructor) new(options any) (any, error) {
	var args []reflect.Value

	if c.optionsType != nil {
		arg, err := c.prepareOptions(options)
		if err != nil {
			return nil, err
		}
		args = []reflect.Value{arg}
	}

	results := c.newFunc.Call(args)

	if c.returnsError {
		if errResult := results[1].Interface(); errResult != nil {
			if err, ok := errResult.(error); ok {
				return nil, err
			}
			return nil, fmt.Errorf("second return value is not an error")
		}
	}

	return results[0].Interface(), nil
}

// prepareOptions 把 options 转成构造函数的参数类型
//   - nil 使用参数类型的零值（指针类型会分配一个零值对象）
//   - Convertable 通过 ConvertTo 转换
//   - 其他值必须可以直接赋值给参数类型
func (c *constructor) prepareOptions(options any) (reflect.Value, error) {
	paramType := c.optionsType

	if options == nil {
		if paramType.Kind() == reflect.Ptr {
			return reflect.New(paramType.Elem()), nil
		}
		return reflect.Zero(paramType), nil
	}

	if convertable, ok := options.(Convertable); ok {
		if paramType.Kind() == reflect.Ptr {
			target := reflect.New(paramType.Elem())
			if err := convertable.ConvertTo(target.Interface()); err != nil {
				return reflect.Value{}, fmt.Errorf("failed to convert options to %v: %w", paramType, err)
			}
			return target, nil
		}
		target := reflect.New(paramType)
		if err := convertable.ConvertTo(target.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("failed to convert options to %v: %w", paramType, err)
		}
		return target.Elem(), nil
	}

	value := reflect.ValueOf(options)
	if !value.Type().AssignableTo(paramType) {
		return reflect.Value{}, fmt.Errorf("options type %v is not assignable to %v", value.Type(), paramType)
	}
	return value, nil
}

// Convertable 配置数据的自动转换
// 实现了此接口的类型可以作为 options 传给 New，会被转换成构造函数期望的参数类型
type Convertable interface {
	// ConvertTo object 是指向目标对象的指针
	ConvertTo(object interface{}) error
}

var nameConstructorMap sync.Map

func isSameFunc(func1, func2 any) bool {
	if func1 == nil || func2 == nil {
		return func1 == func2
	}
	return reflect.ValueOf(func1).Pointer() == reflect.ValueOf(func2).Pointer()
}

func key(namespace string, type_ string) string {
	return namespace + ":" + type_
}

// Register 重复注册同一个函数是幂等的，注册不同的函数返回错误
func Register(namespace string, type_ string, newFunc any) error {
	k := key(namespace, type_)

	if existingValue, ok := nameConstructorMap.Load(k); ok {
		if existing, ok := existingValue.(*constructor); ok {
			if isSameFunc(existing.originalFunc, newFunc) {
				return nil
			}
			return fmt.Errorf("constructor for %s already registered with different function", k)
		}
	}

	c, err := newConstructor(newFunc)
	if err != nil {
		return fmt.Errorf("failed to create constructor: %w", err)
	}

	nameConstructorMap.Store(k, c)
	return nil
}

func typeKey[T any]() (string, string, error) {
	var t T
	tType := reflect.TypeOf(&t).Elem()
	for tType.Kind() == reflect.Ptr {
		tType = tType.Elem()
	}

	pkgPath := tType.PkgPath()
	typeName := tType.Name()
	if pkgPath == "" || typeName == "" {
		return "", "", fmt.Errorf("cannot determine package path or type name for type %v", tType)
	}
	return pkgPath, typeName, nil
}

// RegisterT 以类型所在包路径和类型名作为 namespace 和 type
func RegisterT[T any](newFunc any) error {
	namespace, type_, err := typeKey[T]()
	if err != nil {
		return err
	}
	return Register(namespace, type_, newFunc)
}

func MustRegister(namespace string, type_ string, newFunc any) {
	if err := Register(namespace, type_, newFunc); err != nil {
		panic(err)
	}
}

func MustRegisterT[T any](newFunc any) {
	if err := RegisterT[T](newFunc); err != nil {
		panic(err)
	}
}

// Registered 判断是否注册过
func Registered(namespace string, type_ string) bool {
	_, ok := nameConstructorMap.Load(key(namespace, type_))
	return ok
}

// Types 列出某个 namespace 下注册的所有 type，按名字排序
func Types(namespace string) []string {
	prefix := namespace + ":"
	var types []string
	nameConstructorMap.Range(func(k, _ any) bool {
		if s := k.(string); strings.HasPrefix(s, prefix) {
			types = append(types, strings.TrimPrefix(s, prefix))
		}
		return true
	})
	sort.Strings(types)
	return types
}

type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

func New(namespace string, type_ string, options any) (any, error) {
	k := key(namespace, type_)
	value, ok := nameConstructorMap.Load(k)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, k)
	}

	c, ok := value.(*constructor)
	if !ok {
		return nil, fmt.Errorf("invalid constructor type for %s", k)
	}

	return c.new(options)
}

func NewT[T any](options any) (T, error) {
	var t T
	namespace, type_, err := typeKey[T]()
	if err != nil {
		return t, err
	}

	obj, err := New(namespace, type_, options)
	if err != nil {
		return t, err
	}

	result, ok := obj.(T)
	if !ok {
		return t, fmt.Errorf("created object is not of type %T", t)
	}
	return result, nil
}
