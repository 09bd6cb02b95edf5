package decoder

import (
	"encoding/json"
	"fmt"

	"github.com/hatlonely/webdb/cfg/storage"
)

// JsonDecoder JSON 格式解码器
type JsonDecoder struct{}

func NewJsonDecoder() *JsonDecoder {
	return &JsonDecoder{}
}

func (j *JsonDecoder) Decode(data []byte) (storage.Storage, error) {
	var result interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return storage.NewMapStorage(result), nil
}
