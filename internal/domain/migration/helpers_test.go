package migration

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const fixtureConfig = `{
  "metadata": {"source_platform": "quickbooks", "target_platform": "odoo", "version": "1.0"},
  "entity_mappings": {
    "Account": {
      "target_model": "account.account",
      "field_mappings": {"Name": "name", "AcctNum": "code"},
      "type_mapping": {
        "source_field": "AccountType",
        "target_field": "account_type",
        "values": {"Bank": "asset_cash", "Expense": "expense"},
        "default": "asset_current"
      }
    },
    "Item": {
      "target_model": "product.product",
      "field_mappings": {"Name": "name", "UnitPrice": "list_price"}
    },
    "Customer": {
      "target_model": "res.partner",
      "aliases": ["Customer", "Customers"],
      "field_mappings": {
        "DisplayName": "name",
        "PrimaryEmailAddr.Address": "email",
        "GivenName": "contact_name",
        "Active": "is_archived"
      },
      "computed_fields": {"customer_rank": 1, "is_company": true},
      "secondary_address": {
        "primary_path": "BillAddr",
        "secondary_path": "ShipAddr",
        "target_field": "child_ids",
        "name_path": "DisplayName",
        "fields": {"Line1": "street", "City": "city"}
      }
    },
    "Invoice": {
      "target_model": "account.move",
      "display_name_fields": ["DocNumber"],
      "field_mappings": {"DocNumber": "name", "TxnDate": "invoice_date", "CustomerRef": "partner_id"},
      "computed_fields": {"move_type": "out_invoice"},
      "line_items": {
        "source_path": "Line",
        "target_field": "invoice_line_ids",
        "detail_type_field": "DetailType",
        "detail_types": ["SalesItemLineDetail"],
        "quantity_path": "SalesItemLineDetail.Qty",
        "price_path": "SalesItemLineDetail.UnitPrice",
        "description_path": "Description",
        "references": [
          {"target_field": "product_id", "path": "SalesItemLineDetail.ItemRef.value", "entity_type": "Item"}
        ]
      }
    }
  },
  "field_transformations": {
    "GivenName": {"type": "composite", "fields": ["GivenName", "FamilyName"]},
    "Active": {"type": "boolean_inverse"},
    "Date": {"type": "date"},
    "CustomerRef": {"type": "mapping_lookup", "source_path": "CustomerRef.value"}
  },
  "migration_sequence": ["Account", "Item", "Customer", "Invoice"]
}`

func loadFixture(t *testing.T) *MappingConfig {
	t.Helper()
	cfg, err := ParseMappingConfig([]byte(fixtureConfig))
	require.NoError(t, err)
	return cfg
}

func record(t *testing.T, raw string) SourceRecord {
	t.Helper()
	rec, err := NewSourceRecord([]byte(raw))
	require.NoError(t, err)
	return rec
}

// memCache is a minimal write-once MappingCache.
type memCache map[string]TargetID

func (c memCache) Put(_ context.Context, key string, id TargetID) error {
	if _, ok := c[key]; ok {
		return ErrCacheKeyExists
	}
	c[key] = id
	return nil
}

func (c memCache) Get(_ context.Context, key string) (TargetID, bool, error) {
	id, ok := c[key]
	return id, ok, nil
}

func (c memCache) Len(_ context.Context) (int, error) {
	return len(c), nil
}

func (c memCache) Snapshot(_ context.Context) (map[string]TargetID, error) {
	out := make(map[string]TargetID, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out, nil
}

func (c memCache) keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MockTargetSystem is a mock implementation of TargetSystem
type MockTargetSystem struct {
	mock.Mock
}

func (m *MockTargetSystem) Create(ctx context.Context, model string, values TransformedRecord) (TargetID, error) {
	args := m.Called(ctx, model, values)
	return args.Get(0).(TargetID), args.Error(1)
}

func (m *MockTargetSystem) Search(ctx context.Context, model string, filters []Filter) ([]TargetID, error) {
	args := m.Called(ctx, model, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]TargetID), args.Error(1)
}

func (m *MockTargetSystem) SearchRead(ctx context.Context, model string, filters []Filter, fields []string) ([]map[string]any, error) {
	args := m.Called(ctx, model, filters, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}
