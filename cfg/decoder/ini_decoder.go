package decoder

import (
	"fmt"
	"strings"

	"github.com/hatlonely/webdb/cfg/storage"
	"gopkg.in/ini.v1"
)

// IniDecoder INI 格式解码器
// section 名中的点号表示嵌套，比如 [options.observe]；值统一保留成字符串，由 ConvertTo 转换
type IniDecoder struct{}

func NewIniDecoder() *IniDecoder {
	return &IniDecoder{}
}

func (i *IniDecoder) Decode(data []byte) (storage.Storage, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowShadows:             true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode INI: %w", err)
	}

	result := map[string]interface{}{}
	for _, section := range file.Sections() {
		current := result
		if section.Name() != ini.DefaultSection {
			for _, name := range strings.Split(section.Name(), ".") {
				next, ok := current[name].(map[string]interface{})
				if !ok {
					next = map[string]interface{}{}
					current[name] = next
				}
				current = next
			}
		}
		for _, key := range section.Keys() {
			values := key.ValueWithShadows()
			if len(values) > 1 {
				items := make([]interface{}, len(values))
				for idx, value := range values {
					items[idx] = value
				}
				current[key.Name()] = items
				continue
			}
			current[key.Name()] = key.String()
		}
	}

	return storage.NewMapStorage(result), nil
}
