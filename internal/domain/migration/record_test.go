package migration

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceRecord_Lookup(t *testing.T) {
	rec := record(t, `{"Id":"42","Balance":12.5,"PrimaryEmailAddr":{"Address":"jane@example.com"},"Notes":null,"Tags":["a","b"]}`)

	tests := []struct {
		name   string
		path   string
		want   any
		wantOK bool
	}{
		{name: "top level string", path: "Id", want: "42", wantOK: true},
		{name: "number", path: "Balance", want: json.Number("12.5"), wantOK: true},
		{name: "nested", path: "PrimaryEmailAddr.Address", want: "jane@example.com", wantOK: true},
		{name: "null is absent", path: "Notes", wantOK: false},
		{name: "missing intermediate", path: "BillAddr.City", wantOK: false},
		{name: "missing leaf", path: "PrimaryEmailAddr.Other", wantOK: false},
		{name: "empty path", path: "", wantOK: false},
		{name: "array", path: "Tags", want: []any{"a", "b"}, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := rec.Lookup(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSourceRecord_LookupKeepsNumberLiterals(t *testing.T) {
	rec := record(t, `{"Big":9007199254740993,"Rate":0.123456789012345678901,"Meta":{"Seq":18446744073709551615,"Parts":[1,2.50]}}`)

	big, ok := rec.Lookup("Big")
	require.True(t, ok)
	assert.Equal(t, json.Number("9007199254740993"), big)

	rate, ok := rec.Lookup("Rate")
	require.True(t, ok)
	assert.Equal(t, json.Number("0.123456789012345678901"), rate)

	meta, ok := rec.Lookup("Meta")
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"Seq":   json.Number("18446744073709551615"),
		"Parts": []any{json.Number("1"), json.Number("2.50")},
	}, meta)
}

func TestSourceRecord_LookupString(t *testing.T) {
	rec := record(t, `{"Id":42,"Ratio":0.25,"Active":true,"Ref":{"value":"7"}}`)

	id, ok := rec.LookupString("Id")
	require.True(t, ok)
	assert.Equal(t, "42", id)

	ratio, ok := rec.LookupString("Ratio")
	require.True(t, ok)
	assert.Equal(t, "0.25", ratio)

	active, ok := rec.LookupString("Active")
	require.True(t, ok)
	assert.Equal(t, "true", active)

	ref, ok := rec.LookupString("Ref")
	require.True(t, ok)
	assert.JSONEq(t, `{"value":"7"}`, ref)
}

func TestSourceRecord_Children(t *testing.T) {
	rec := record(t, `{"Line":[{"Amount":1},"junk",{"Amount":2}],"Single":{"Amount":3}}`)

	lines := rec.Children("Line")
	require.Len(t, lines, 2)
	first, _ := lines[0].Lookup("Amount")
	second, _ := lines[1].Lookup("Amount")
	assert.Equal(t, json.Number("1"), first)
	assert.Equal(t, json.Number("2"), second)

	assert.Empty(t, rec.Children("Single"))
	assert.Empty(t, rec.Children("Missing"))
}

func TestNewSourceRecord_Invalid(t *testing.T) {
	_, err := NewSourceRecord([]byte(`{not json`))
	assert.Error(t, err)

	_, err = NewSourceRecord([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestExtractedData_UnmarshalAndFind(t *testing.T) {
	var data ExtractedData
	err := json.Unmarshal([]byte(`{"Customers":[{"Id":"1"},{"Id":"2"}],"Account":[{"Id":"9"}]}`), &data)
	require.NoError(t, err)

	records, key, ok := data.Find([]string{"Customer", "Customers", "customers"})
	require.True(t, ok)
	assert.Equal(t, "Customers", key)
	assert.Len(t, records, 2)

	_, _, ok = data.Find([]string{"Vendor"})
	assert.False(t, ok)
	assert.Equal(t, 1, data.Count([]string{"Account"}))
	assert.Equal(t, 0, data.Count([]string{"Bill"}))
}

func TestCreateDirective_MarshalJSON(t *testing.T) {
	data, err := json.Marshal([]CreateDirective{{Values: map[string]any{"quantity": 2.0}}})
	require.NoError(t, err)
	assert.JSONEq(t, `[[0,0,{"quantity":2}]]`, string(data))

	empty, err := json.Marshal(CreateDirective{})
	require.NoError(t, err)
	assert.JSONEq(t, `[0,0,{}]`, string(empty))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "Customer_42", CacheKey("Customer", "42"))
	assert.Equal(t, "Customer_99", CacheKey("Customer", "99"))
}

func TestResolution(t *testing.T) {
	id, ok := Unresolved.ID()
	assert.False(t, ok)
	assert.Zero(t, id)
	assert.Equal(t, "unresolved", Unresolved.String())

	res := Resolved(101)
	id, ok = res.ID()
	assert.True(t, ok)
	assert.Equal(t, TargetID(101), id)
	assert.True(t, res.IsResolved())
}
