package driver

import (
	"github.com/hatlonely/webdb/cfg/storage"
	"github.com/hatlonely/webdb/errs"
	"github.com/hatlonely/webdb/ref"
	"github.com/pkg/errors"
)

// Namespace 驱动构造函数在 ref 中注册的命名空间
const Namespace = "github.com/hatlonely/webdb/driver"

// Register 按名字注册驱动构造函数，构造函数形如 func(*Options) (*Driver, error)
func Register(name string, newFunc any) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	return ref.Register(Namespace, name, newFunc)
}

// Registered 列出已注册的驱动名
func Registered() []string {
	return ref.Types(Namespace)
}

// New 创建驱动，options 可以是驱动的选项结构体、map[string]any 或者 ref.Convertable
// 返回的驱动还没有连接，需要调用 Open
func New(name string, options any) (Driver, error) {
	if !ref.Registered(Namespace, name) {
		return nil, errs.Wrapf(errs.ErrUnknownDriver, "%q, registered drivers: %v", name, Registered())
	}
	obj, err := ref.New(Namespace, name, storage.Normalize(options))
	if err != nil {
		return nil, errors.WithMessagef(err, "create driver %q failed", name)
	}
	d, ok := obj.(Driver)
	if !ok {
		return nil, errors.Errorf("%T does not implement Driver", obj)
	}
	return d, nil
}
