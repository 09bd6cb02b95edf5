// Package cfg 从配置文件加载配置，按扩展名选择解码器，结果按 validate tag 校验
package cfg

import (
	"os"

	"github.com/hatlonely/webdb/cfg/decoder"
	"github.com/hatlonely/webdb/cfg/storage"
	"github.com/pkg/errors"
)

// Load 读取并解码 path 指向的配置文件
func Load(path string) (storage.Storage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %s failed", path)
	}

	dec, err := decoder.NewDecoderWithPath(path)
	if err != nil {
		return nil, err
	}

	return Parse(dec, data)
}

// Parse 用指定的解码器解析配置内容
func Parse(dec decoder.Decoder, data []byte) (storage.Storage, error) {
	s, err := dec.Decode(data)
	if err != nil {
		return nil, errors.WithMessage(err, "decode config failed")
	}
	return storage.NewValidateStorage(s), nil
}
