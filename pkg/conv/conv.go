// Package conv 从 YAML/JSON 解析出的 map[string]any 中按类型取值，服务于 Node 配置解析。
package conv

import (
	"fmt"
	"math"
)

// ConfigGet 按 key 取 T，取不到或类型不符时返回 defaultVal。
func ConfigGet[T any](m map[string]any, key string, defaultVal T) T {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	t, ok := v.(T)
	if !ok {
		return defaultVal
	}
	return t
}

// ConfigInt 取整数。YAML 解出 int，JSON 解出 float64，两者都接受；带小数的值是错误。
func ConfigInt(m map[string]any, key string, defaultVal int) (int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("%s: expected an integer, got %v", key, val)
		}
		return int(val), nil
	}
	return 0, fmt.Errorf("%s: expected an integer, got %T", key, v)
}

// ConfigStrings 取字符串列表；key 不存在时 ok 为 false，元素不是字符串时报错。
func ConfigStrings(m map[string]any, key string) (out []string, ok bool, err error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	raw, isList := v.([]any)
	if !isList {
		return nil, true, fmt.Errorf("%s: expected a list, got %T", key, v)
	}
	out = make([]string, 0, len(raw))
	for i, e := range raw {
		s, isStr := e.(string)
		if !isStr {
			return nil, true, fmt.Errorf("%s[%d]: expected a string, got %T", key, i, e)
		}
		out = append(out, s)
	}
	return out, true, nil
}
