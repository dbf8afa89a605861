package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ConvertToInt64 turns a scalar returned by a warehouse driver into an int64.
// Drivers disagree on the Go type of COUNT(*): pgx and sqlite return int64,
// go-mssqldb may return int32 or int64, and some return numeric text.
func ConvertToInt64(val interface{}) (int64, error) {
	switch v := val.(type) {
	case nil:
		return 0, fmt.Errorf("cannot convert NULL to int")
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return parseNumeric(v)
	case []byte:
		return parseNumeric(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

func parseNumeric(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to int", s)
	}
	return int64(f), nil
}
