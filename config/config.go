package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Format 配置文件格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatINI  Format = "ini"
)

var validate = validator.New()

// FormatOf 根据文件扩展名推断格式
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	case ".ini":
		return FormatINI, nil
	}
	return "", errors.Errorf("unsupported config file extension: %s", path)
}

// Load 读取文件并解码到 v，格式由扩展名决定
func Load(path string, v any) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s failed", path)
	}
	return errors.WithMessagef(Decode(data, format, v), "load %s", path)
}

// Decode 解码数据到 v：先得到通用的树结构，再绑定到 cfg 标签的结构体，
// 然后填充 def 默认值并做 validate 校验
func Decode(data []byte, format Format, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("target must be a non-nil pointer")
	}

	tree, err := DecodeTree(data, format)
	if err != nil {
		return err
	}
	if err := bind(tree, rv.Elem()); err != nil {
		return errors.WithMessage(err, "bind config failed")
	}
	if err := SetDefaults(v); err != nil {
		return errors.WithMessage(err, "set defaults failed")
	}
	return Validate(v)
}

// DecodeTree 把数据解码为 map[string]any / []any / 标量组成的树
func DecodeTree(data []byte, format Format) (map[string]any, error) {
	result := map[string]any{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode YAML")
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&result); err != nil {
			return nil, errors.Wrap(err, "failed to decode JSON")
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode TOML")
		}
	case FormatINI:
		return decodeINI(data)
	default:
		return nil, errors.Errorf("unsupported format: %s", format)
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

func decodeINI(data []byte) (map[string]any, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		AllowShadows:             true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode INI")
	}

	result := map[string]any{}
	for _, section := range f.Sections() {
		target := result
		if name := section.Name(); name != ini.DefaultSection {
			target = map[string]any{}
			result[name] = target
		}
		for _, key := range section.Keys() {
			values := key.ValueWithShadows()
			if len(values) > 1 {
				items := make([]any, len(values))
				for i, s := range values {
					items[i] = parseScalar(s)
				}
				target[key.Name()] = items
				continue
			}
			target[key.Name()] = parseIniValue(key.String())
		}
	}
	return result, nil
}

// parseIniValue 逗号分隔且无空白的值视为数组
func parseIniValue(value string) any {
	if strings.Contains(value, ",") && !strings.ContainsAny(value, " \t") {
		parts := strings.Split(value, ",")
		items := make([]any, len(parts))
		for i, part := range parts {
			items[i] = parseScalar(part)
		}
		return items
	}
	return parseScalar(value)
}

func parseScalar(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// Validate 使用 validator/v10 校验结构体，非结构体直接通过
func Validate(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	if err := validate.Struct(rv.Interface()); err != nil {
		return errors.Wrap(err, "validate config failed")
	}
	return nil
}
