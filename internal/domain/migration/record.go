package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// SourceRecord is a single record as exported by the source platform. It keeps
// the raw JSON object and resolves dot paths such as "PrimaryEmailAddr.Address"
// against it. Missing intermediates and JSON null both resolve as absent.
type SourceRecord struct {
	raw []byte
}

// NewSourceRecord wraps a raw JSON object.
func NewSourceRecord(raw []byte) (SourceRecord, error) {
	if !gjson.ValidBytes(raw) {
		return SourceRecord{}, errors.New("migration: source record is not valid JSON")
	}
	if !gjson.ParseBytes(raw).IsObject() {
		return SourceRecord{}, errors.New("migration: source record must be a JSON object")
	}
	buf := make([]byte, len(raw))
	copy(buf, raw)
	return SourceRecord{raw: buf}, nil
}

// RecordFromMap builds a SourceRecord from decoded values.
func RecordFromMap(values map[string]any) (SourceRecord, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return SourceRecord{}, fmt.Errorf("migration: encode source record: %w", err)
	}
	return SourceRecord{raw: raw}, nil
}

// Raw returns the JSON object backing the record.
func (r SourceRecord) Raw() []byte {
	return r.raw
}

func (r SourceRecord) result(path string) (gjson.Result, bool) {
	if path == "" || len(r.raw) == 0 {
		return gjson.Result{}, false
	}
	res := gjson.GetBytes(r.raw, path)
	if !res.Exists() || res.Type == gjson.Null {
		return gjson.Result{}, false
	}
	return res, true
}

// Lookup resolves a dot path. Numbers decode as json.Number so they pass
// through with their literal precision, objects as map[string]any and
// arrays as []any.
func (r SourceRecord) Lookup(path string) (any, bool) {
	res, ok := r.result(path)
	if !ok {
		return nil, false
	}
	return resultValue(res), true
}

func resultValue(res gjson.Result) any {
	switch {
	case res.Type == gjson.Number:
		return json.Number(res.Raw)
	case res.IsObject() || res.IsArray():
		dec := json.NewDecoder(strings.NewReader(res.Raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return res.Value()
		}
		return v
	default:
		return res.Value()
	}
}

// LookupString resolves a dot path to its string form. Integral numbers keep
// their literal form, so an id of 42 reads as "42".
func (r SourceRecord) LookupString(path string) (string, bool) {
	res, ok := r.result(path)
	if !ok {
		return "", false
	}
	if res.IsObject() || res.IsArray() {
		return res.Raw, true
	}
	return res.String(), true
}

// Children returns the object elements of the array at path.
func (r SourceRecord) Children(path string) []SourceRecord {
	res, ok := r.result(path)
	if !ok || !res.IsArray() {
		return nil
	}
	var children []SourceRecord
	res.ForEach(func(_, value gjson.Result) bool {
		if value.IsObject() {
			children = append(children, SourceRecord{raw: []byte(value.Raw)})
		}
		return true
	})
	return children
}

// MarshalJSON implements json.Marshaler.
func (r SourceRecord) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return []byte("null"), nil
	}
	return r.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *SourceRecord) UnmarshalJSON(data []byte) error {
	rec, err := NewSourceRecord(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// ExtractedData is the full source extraction: entity type name (as the
// source spells it) to its records.
type ExtractedData map[string][]SourceRecord

// Find returns the records stored under the first alias that is present.
func (d ExtractedData) Find(aliases []string) ([]SourceRecord, string, bool) {
	for _, alias := range aliases {
		if records, ok := d[alias]; ok {
			return records, alias, true
		}
	}
	return nil, "", false
}

// Count is the number of records stored under the first alias that is present.
func (d ExtractedData) Count(aliases []string) int {
	records, _, _ := d.Find(aliases)
	return len(records)
}

// TransformedRecord is a target-shaped record ready to be created. Absent
// values are omitted rather than stored as null.
type TransformedRecord map[string]any

// Has reports whether field was produced.
func (t TransformedRecord) Has(field string) bool {
	_, ok := t[field]
	return ok
}

// CreateDirective asks the target to create a child record together with its
// parent. It encodes as [0, 0, {values}].
type CreateDirective struct {
	Values map[string]any
}

// MarshalJSON implements json.Marshaler.
func (d CreateDirective) MarshalJSON() ([]byte, error) {
	values := d.Values
	if values == nil {
		values = map[string]any{}
	}
	return json.Marshal([]any{0, 0, values})
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatNumber(t)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
