package platform

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/persistence/models"
)

// predicate evaluates one filter against a stored record
type predicate func(row models.TargetRecordModel) bool

func matchesAll(predicates []predicate, row models.TargetRecordModel) bool {
	for _, p := range predicates {
		if !p(row) {
			return false
		}
	}
	return true
}

// fieldValue returns the stored value of field as text. "id" is the record id.
func fieldValue(row models.TargetRecordModel, field string) (string, bool) {
	if field == "id" {
		return strconv.FormatInt(row.ID, 10), true
	}
	res := gjson.Get(row.Values, gjson.Escape(field))
	if !res.Exists() || res.Type == gjson.Null {
		return "", false
	}
	if res.Type == gjson.String {
		return res.Str, true
	}
	return res.Raw, true
}

func compileFilter(f migration.Filter) (predicate, error) {
	if f.Field == "" {
		return nil, fmt.Errorf("filter without field")
	}
	switch f.Operator {
	case migration.OpEquals, "==":
		want := filterText(f.Value)
		return func(row models.TargetRecordModel) bool {
			got, ok := fieldValue(row, f.Field)
			return ok && got == want
		}, nil
	case migration.OpNotEquals:
		want := filterText(f.Value)
		return func(row models.TargetRecordModel) bool {
			got, ok := fieldValue(row, f.Field)
			return !ok || got != want
		}, nil
	case migration.OpIn:
		set, err := filterSet(f.Value)
		if err != nil {
			return nil, err
		}
		return func(row models.TargetRecordModel) bool {
			got, ok := fieldValue(row, f.Field)
			return ok && set[got]
		}, nil
	case migration.OpILike:
		re, err := likePattern(filterText(f.Value))
		if err != nil {
			return nil, err
		}
		return func(row models.TargetRecordModel) bool {
			got, ok := fieldValue(row, f.Field)
			return ok && re.MatchString(got)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported filter operator %q", f.Operator)
	}
}

func filterText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

func filterSet(v any) (map[string]bool, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("operator in expects a list, got %T", v)
	}
	set := make(map[string]bool, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		set[filterText(rv.Index(i).Interface())] = true
	}
	return set, nil
}

// likePattern turns an SQL ILIKE pattern into a case-insensitive regexp. A
// pattern without wildcards matches as a substring.
func likePattern(pattern string) (*regexp.Regexp, error) {
	if !strings.ContainsAny(pattern, "%_") {
		pattern = "%" + pattern + "%"
	}
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// sqlNarrowing translates the filters that can be decided in SQL into a
// WHERE condition that keeps a superset of the matching rows; the predicates
// still decide. Equality on "id" is exact. Equality against a string narrows
// rows whose stored field is JSON text and keeps every other row for the
// predicates. Unknown dialects are not narrowed.
func sqlNarrowing(dialect string, f migration.Filter) (string, []any, bool) {
	if f.Field == "id" {
		return idNarrowing(f)
	}
	want, isText := f.Value.(string)
	if f.Operator != migration.OpEquals || !isText || strings.ContainsAny(f.Field, `"\'`) {
		return "", nil, false
	}
	switch dialect {
	case "sqlite":
		path := `$."` + f.Field + `"`
		return `(json_type("values", ?) <> 'text' OR json_extract("values", ?) = ?)`,
			[]any{path, path, want}, true
	case "postgres":
		return `(jsonb_typeof(("values")::jsonb -> CAST(? AS text)) <> 'string' OR ("values")::jsonb ->> CAST(? AS text) = ?)`,
			[]any{f.Field, f.Field, want}, true
	default:
		return "", nil, false
	}
}

func idNarrowing(f migration.Filter) (string, []any, bool) {
	switch f.Operator {
	case migration.OpEquals, "==":
		id, err := strconv.ParseInt(filterText(f.Value), 10, 64)
		if err != nil {
			return "", nil, false
		}
		return "id = ?", []any{id}, true
	case migration.OpIn:
		rv := reflect.ValueOf(f.Value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return "", nil, false
		}
		ids := make([]int64, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			id, err := strconv.ParseInt(filterText(rv.Index(i).Interface()), 10, 64)
			if err != nil {
				return "", nil, false
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return "1 = 0", nil, true
		}
		return "id IN ?", []any{ids}, true
	default:
		return "", nil, false
	}
}
