package decoder

import (
	"fmt"

	"github.com/hatlonely/webdb/cfg/storage"
	"gopkg.in/yaml.v3"
)

// YamlDecoder YAML 格式解码器
type YamlDecoder struct{}

func NewYamlDecoder() *YamlDecoder {
	return &YamlDecoder{}
}

func (y *YamlDecoder) Decode(data []byte) (storage.Storage, error) {
	var result interface{}
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode YAML: %w", err)
	}
	return storage.NewMapStorage(result), nil
}
