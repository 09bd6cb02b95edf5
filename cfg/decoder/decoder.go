package decoder

import (
	"path/filepath"
	"strings"

	"github.com/hatlonely/webdb/cfg/storage"
	"github.com/hatlonely/webdb/ref"
	"github.com/pkg/errors"
)

const namespace = "github.com/hatlonely/webdb/cfg/decoder"

func init() {
	ref.MustRegister(namespace, "json", NewJsonDecoder)
	ref.MustRegister(namespace, "yaml", NewYamlDecoder)
	ref.MustRegister(namespace, "yml", NewYamlDecoder)
	ref.MustRegister(namespace, "toml", NewTomlDecoder)
	ref.MustRegister(namespace, "ini", NewIniDecoder)
}

// Decoder 把配置文件的原始内容解码成 Storage
type Decoder interface {
	Decode(data []byte) (storage.Storage, error)
}

// NewDecoderWithFormat 按格式名创建 Decoder，支持 json/yaml/yml/toml/ini
func NewDecoderWithFormat(format string) (Decoder, error) {
	decoder, err := ref.New(namespace, strings.ToLower(format), nil)
	if err != nil {
		return nil, errors.WithMessagef(err, "unsupported config format %q", format)
	}
	d, ok := decoder.(Decoder)
	if !ok {
		return nil, errors.Errorf("%T is not a Decoder", decoder)
	}
	return d, nil
}

// NewDecoderWithPath 按文件扩展名选择 Decoder
func NewDecoderWithPath(path string) (Decoder, error) {
	return NewDecoderWithFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}
