package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	ssar "github.com/goliatone/go-ssar"
)

func toInt(v any) (int, bool) {
	switch typed := ssar.NormalizeValue(v).(type) {
	case int64:
		return int(typed), true
	case float64:
		if typed != math.Trunc(typed) {
			return 0, false
		}
		return int(typed), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		return n, err == nil
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch typed := ssar.NormalizeValue(v).(type) {
	case int64:
		return float64(typed), true
	case float64:
		return typed, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch typed := v.(type) {
	case bool:
		return typed, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(typed))
		return b, err == nil
	default:
		return false, false
	}
}

func toString(v any) (string, bool) {
	switch typed := v.(type) {
	case nil:
		return "", false
	case string:
		return typed, true
	default:
		return fmt.Sprint(typed), true
	}
}
