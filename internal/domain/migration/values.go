package migration

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order when normalising dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// FormatDate normalises a date or timestamp string to YYYY-MM-DD. Values that
// cannot be parsed are returned unchanged.
func FormatDate(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	trimmed := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return value
}

// InvertBool negates a boolean or a string strconv.ParseBool understands.
func InvertBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return !v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("migration: %q is not a boolean", v)
		}
		return !b, nil
	default:
		return false, fmt.Errorf("migration: %T value %v is not a boolean", value, value)
	}
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, fmt.Errorf("migration: %q is not a number", v)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("migration: %T value %v is not a number", value, value)
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var decimalOne = decimal.NewFromInt(1)
