package platform

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const sampleExport = `{
  "Customer": [
    {"Id": "1", "DisplayName": "Acme"},
    {"Id": "2", "DisplayName": "Globex", "BillAddr": {"City": "Springfield"}}
  ],
  "Invoices": [],
  "Item": [{"Id": "9", "Name": "Widget", "UnitPrice": 4.5}]
}`

func TestDecodeExport(t *testing.T) {
	data, err := DecodeExport(strings.NewReader(sampleExport))
	require.NoError(t, err)

	require.Len(t, data["Customer"], 2)
	assert.Empty(t, data["Invoices"])
	city, ok := data["Customer"][1].LookupString("BillAddr.City")
	require.True(t, ok)
	assert.Equal(t, "Springfield", city)
	assert.Equal(t, 1, data.Count([]string{"Items", "Item"}))
}

func TestDecodeExport_Errors(t *testing.T) {
	tests := map[string]string{
		"not json":             `{"Customer": [`,
		"entity not array":     `{"Customer": {"Id": "1"}}`,
		"top level not object": `[{"Id": "1"}]`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeExport(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestDecodeExport_SkipsNonObjectRecords(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	data, err := decodeExport(strings.NewReader(`{
		"Customer": [{"Id": "1"}, null, "Acme", 42, [], {"Id": "2"}],
		"Vendor": [null]
	}`), zap.New(core))
	require.NoError(t, err)

	require.Len(t, data["Customer"], 2)
	id, _ := data["Customer"][1].LookupString("Id")
	assert.Equal(t, "2", id)
	assert.Empty(t, data["Vendor"])
	assert.Equal(t, 0, data.Count([]string{"Vendor"}))

	skipped := recorded.FilterMessage("Source record skipped").All()
	require.Len(t, skipped, 5)
	var customerIndexes []int64
	for _, entry := range skipped {
		if entry.ContextMap()["entity"] == "Customer" {
			customerIndexes = append(customerIndexes, entry.ContextMap()["index"].(int64))
		}
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, customerIndexes)
}

func TestJSONExportSource_ExtractAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleExport), 0o600))

	data, err := NewJSONExportSource(path).ExtractAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, data, 3)

	t.Run("missing file", func(t *testing.T) {
		_, err := NewJSONExportSource(filepath.Join(t.TempDir(), "none.json")).ExtractAll(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open export")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewJSONExportSource(path).ExtractAll(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
