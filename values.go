package ssar

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// NormalizeValue folds numeric kinds into int64/float64 so values survive a
// round trip through JSON or YAML backed stores unchanged in meaning.
func NormalizeValue(v any) any {
	switch typed := v.(type) {
	case nil:
		return nil
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case int64:
		return typed
	case uint:
		return int64(typed)
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		if typed > math.MaxInt64 {
			return float64(typed)
		}
		return int64(typed)
	case float32:
		return float64(typed)
	case float64:
		return typed
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	default:
		return v
	}
}

// ValuesEqual compares two attribute values after normalisation. Integers and
// floats compare by numeric value.
func ValuesEqual(a, b any) bool {
	na, nb := NormalizeValue(a), NormalizeValue(b)
	if fa, ok := asFloat(na); ok {
		if fb, ok := asFloat(nb); ok {
			return fa == fb
		}
		return false
	}
	switch av := na.(type) {
	case string, bool:
		return na == nb
	case nil:
		return nb == nil
	default:
		return reflect.DeepEqual(av, nb)
	}
}

// CompareNumbers orders two numeric values. ok is false when either side is
// not numeric.
func CompareNumbers(a, b any) (cmp int, ok bool) {
	fa, okA := asFloat(NormalizeValue(a))
	fb, okB := asFloat(NormalizeValue(b))
	if !okA || !okB {
		return 0, false
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	default:
		return 0, true
	}
}

func asFloat(v any) (float64, bool) {
	switch typed := v.(type) {
	case int64:
		return float64(typed), true
	case float64:
		return typed, true
	default:
		return 0, false
	}
}

func formatValue(v any) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", NormalizeValue(v))
}
