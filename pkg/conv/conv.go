// Package conv 提供类型转换与配置读取的泛型工具。
// 请求过滤参数既可能来自 JSON（float64/bool），也可能来自 query string（string），这里统一兼容。
package conv

import (
	"strconv"
	"strings"
	"time"
)

// ToFloat64 将 any 转为 float64。
// 支持各整数/浮点类型与数字字符串；bool 视为 1.0/0.0。
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToInt64 将 any 转为 int64，支持数字字符串。
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case int:
		return int64(val), true
	case int64:
		return val, true
	case int32:
		return int64(val), true
	case float64:
		return int64(val), true
	case float32:
		return int64(val), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// ToInt 将 any 转为 int。
func ToInt(v any) (int, bool) {
	n, ok := ToInt64(v)
	return int(n), ok
}

// ToBool 将 any 转为 bool，支持 "true"/"1"/"false"/"0" 等字符串与数字。
func ToBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return b, err == nil
	default:
		if f, ok := ToFloat64(v); ok {
			return f != 0, true
		}
		return false, false
	}
}

// ToTime 将 any 转为 time.Time，支持 time.Time、Unix 秒（数字或数字字符串）与 RFC3339 字符串。
// 零值与 <=0 的时间戳视为无效。
func ToTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, false
		}
		return *val, true
	case string:
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(val)); err == nil {
			return t, true
		}
	}
	if sec, ok := ToInt64(v); ok && sec > 0 {
		return time.Unix(sec, 0).UTC(), true
	}
	return time.Time{}, false
}

// ToString 将 any 转为 string。仅支持 string 类型，否则返回 ("", false)。
func ToString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// ConvertSlice 将 []T 按 convert 转为 []U，convert 返回 false 的元素被跳过。
func ConvertSlice[T, U any](s []T, convert func(T) (U, bool)) []U {
	if s == nil {
		return nil
	}
	out := make([]U, 0, len(s))
	for _, v := range s {
		if u, ok := convert(v); ok {
			out = append(out, u)
		}
	}
	return out
}

// ParseInt64s 把 "1,2,3"、[]any 或 []int64 转为 []int64，无法解析的元素被跳过。
func ParseInt64s(v any) []int64 {
	switch val := v.(type) {
	case []int64:
		return append([]int64(nil), val...)
	case []any:
		return ConvertSlice(val, ToInt64)
	case string:
		return ConvertSlice(strings.Split(val, ","), func(s string) (int64, bool) { return ToInt64(s) })
	default:
		if n, ok := ToInt64(v); ok {
			return []int64{n}
		}
		return nil
	}
}

// ConfigGet 从 map[string]any 按 key 取 T，取不到或类型不符时返回 defaultVal。
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

// ConfigGetInt64 从 config 取 int64。JSON 常得到 float64，query string 得到 string，此处兼容。
func ConfigGetInt64(m map[string]any, key string, defaultVal int64) int64 {
	if n, ok := ToInt64(m[key]); ok {
		return n
	}
	return defaultVal
}

// ConfigGetInt 同 ConfigGetInt64。
func ConfigGetInt(m map[string]any, key string, defaultVal int) int {
	return int(ConfigGetInt64(m, key, int64(defaultVal)))
}

// ConfigGetFloat 从 config 取 float64。
func ConfigGetFloat(m map[string]any, key string, defaultVal float64) float64 {
	if f, ok := ToFloat64(m[key]); ok {
		return f
	}
	return defaultVal
}

// ConfigGetBool 从 config 取 bool。
func ConfigGetBool(m map[string]any, key string, defaultVal bool) bool {
	if b, ok := ToBool(m[key]); ok {
		return b
	}
	return defaultVal
}

// ConfigGetString 从 config 取非空字符串。
func ConfigGetString(m map[string]any, key string, defaultVal string) string {
	if s, ok := ToString(m[key]); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return defaultVal
}
