package migrationapp

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/mappingconfig"
	"github.com/erp/migrator/internal/infrastructure/platform"
)

const testMapping = `{
  "metadata": {"source_platform": "quickbooks", "target_platform": "odoo", "version": "1.0"},
  "entity_mappings": {
    "Account": {
      "target_model": "account.account",
      "field_mappings": {"Name": "name", "AcctNum": "code"}
    },
    "Customer": {
      "target_model": "res.partner",
      "field_mappings": {"DisplayName": "name", "PrimaryEmailAddr.Address": "email"},
      "computed_fields": {"customer_rank": 1}
    },
    "Invoice": {
      "target_model": "account.move",
      "display_name_fields": ["DocNumber"],
      "field_mappings": {"DocNumber": "name", "TxnDate": "invoice_date", "CustomerRef": "partner_id"},
      "computed_fields": {"move_type": "out_invoice"}
    }
  },
  "field_transformations": {
    "TxnDate": {"type": "date"},
    "CustomerRef": {"type": "mapping_lookup", "source_path": "CustomerRef.value"}
  },
  "migration_sequence": ["Account", "Customer", "Invoice"]
}`

const testExport = `{
  "Accounts": [
    {"Id": "10", "Name": "Checking", "AcctNum": "1000"},
    {"Id": "11", "Name": "Sales", "AcctNum": "4000"}
  ],
  "Customer": [
    {"Id": "1", "DisplayName": "Acme", "PrimaryEmailAddr": {"Address": "ops@acme.test"}},
    {"Id": "2", "DisplayName": "Globex"},
    {"Id": "3", "DisplayName": "Initech"}
  ],
  "Invoice": [
    {"Id": "100", "DocNumber": "INV-100", "TxnDate": "2024-03-15T10:30:00Z", "CustomerRef": {"value": "2", "name": "Globex"}}
  ]
}`

func loadMapping(t *testing.T) *migration.MappingConfig {
	t.Helper()
	cfg, err := mappingconfig.NewLoader().Parse([]byte(testMapping))
	require.NoError(t, err)
	return cfg
}

func decodeExport(t *testing.T, export string) migration.ExtractedData {
	t.Helper()
	data, err := platform.DecodeExport(strings.NewReader(export))
	require.NoError(t, err)
	return data
}

// staticSource returns the same extraction every time
type staticSource struct {
	data  migration.ExtractedData
	err   error
	calls int
}

func (s *staticSource) ExtractAll(ctx context.Context) (migration.ExtractedData, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.data, ctx.Err()
}

type createdRecord struct {
	Model  string
	ID     migration.TargetID
	Values migration.TransformedRecord
}

// fakeTarget keeps created records in memory. failOn makes Create fail for
// chosen records.
type fakeTarget struct {
	mu        sync.Mutex
	nextID    migration.TargetID
	created   []createdRecord
	failOn    func(model string, values migration.TransformedRecord) error
	searchErr error
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{nextID: 1}
}

func (f *fakeTarget) Create(_ context.Context, model string, values migration.TransformedRecord) (migration.TargetID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		if err := f.failOn(model, values); err != nil {
			return 0, err
		}
	}
	id := f.nextID
	f.nextID++
	f.created = append(f.created, createdRecord{Model: model, ID: id, Values: values})
	return id, nil
}

func (f *fakeTarget) Search(_ context.Context, model string, filters []migration.Filter) ([]migration.TargetID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	ids := []migration.TargetID{}
	for _, rec := range f.created {
		if rec.Model == model && len(filters) == 0 {
			ids = append(ids, rec.ID)
		}
	}
	return ids, nil
}

func (f *fakeTarget) SearchRead(ctx context.Context, model string, filters []migration.Filter, _ []string) ([]map[string]any, error) {
	ids, err := f.Search(ctx, model, filters)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(ids))
	for i, id := range ids {
		rows[i] = map[string]any{"id": id}
	}
	return rows, nil
}

func (f *fakeTarget) records(model string) []createdRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []createdRecord
	for _, rec := range f.created {
		if rec.Model == model {
			out = append(out, rec)
		}
	}
	return out
}

// MockRunRepository is a mock implementation of migration.RunRepository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Save(ctx context.Context, run *migration.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*migration.Run, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*migration.Run), args.Error(1)
}

func (m *MockRunRepository) FindRecent(ctx context.Context, tenantID uuid.UUID, filter migration.RunFilter, limit int) ([]*migration.Run, error) {
	args := m.Called(ctx, tenantID, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*migration.Run), args.Error(1)
}

// MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, opts RunOptions) (*migration.Report, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*migration.Report), args.Error(1)
}

// MockReportSink is a mock implementation of ReportSink
type MockReportSink struct {
	mock.Mock
}

func (m *MockReportSink) Name() string {
	return m.Called().String(0)
}

func (m *MockReportSink) Publish(ctx context.Context, report *migration.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}
