package decoder

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/hatlonely/webdb/cfg/storage"
)

// TomlDecoder TOML 格式解码器
type TomlDecoder struct{}

func NewTomlDecoder() *TomlDecoder {
	return &TomlDecoder{}
}

func (t *TomlDecoder) Decode(data []byte) (storage.Storage, error) {
	var result map[string]interface{}
	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode TOML: %w", err)
	}
	return storage.NewMapStorage(toGeneric(result)), nil
}

// toGeneric toml 的表数组解码成 []map[string]interface{}，统一成 []interface{}
func toGeneric(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, item := range v {
			v[key] = toGeneric(item)
		}
		return v
	case []map[string]interface{}:
		items := make([]interface{}, len(v))
		for i, item := range v {
			items[i] = toGeneric(item)
		}
		return items
	case []interface{}:
		for i, item := range v {
			v[i] = toGeneric(item)
		}
		return v
	}
	return value
}
