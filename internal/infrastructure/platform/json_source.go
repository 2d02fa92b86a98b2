package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/erp/migrator/internal/domain/migration"
)

// JSONExportSource reads a source platform export shaped as
// {"Customer": [{...}, ...], "Invoice": [...]}.
type JSONExportSource struct {
	path   string
	logger *zap.Logger
}

// JSONExportSourceOption configures a JSONExportSource
type JSONExportSourceOption func(*JSONExportSource)

// WithSourceLogger sets the logger of a JSONExportSource
func WithSourceLogger(logger *zap.Logger) JSONExportSourceOption {
	return func(s *JSONExportSource) {
		s.logger = logger
	}
}

// NewJSONExportSource creates a source reading the export at path
func NewJSONExportSource(path string, opts ...JSONExportSourceOption) *JSONExportSource {
	s := &JSONExportSource{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ migration.SourceExtractor = (*JSONExportSource)(nil)

// ExtractAll reads the whole export. Every top-level member must be an
// array; elements that are not JSON objects are skipped with a warning.
func (s *JSONExportSource) ExtractAll(ctx context.Context) (migration.ExtractedData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("platform: open export: %w", err)
	}
	defer f.Close()

	data, err := decodeExport(f, s.logger)
	if err != nil {
		return nil, fmt.Errorf("platform: %s: %w", s.path, err)
	}
	s.logger.Info("Source export read",
		zap.String("path", s.path),
		zap.Int("entity_types", len(data)),
	)
	return data, nil
}

// DecodeExport decodes an export document from r.
func DecodeExport(r io.Reader) (migration.ExtractedData, error) {
	return decodeExport(r, zap.NewNop())
}

func decodeExport(r io.Reader, log *zap.Logger) (migration.ExtractedData, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}

	data := make(migration.ExtractedData, len(raw))
	for entity, body := range raw {
		var elements []json.RawMessage
		if err := json.Unmarshal(body, &elements); err != nil {
			return nil, fmt.Errorf("entity %q: %w", entity, err)
		}
		records := make([]migration.SourceRecord, 0, len(elements))
		for i, element := range elements {
			record, err := migration.NewSourceRecord(element)
			if err != nil {
				log.Warn("Source record skipped",
					zap.String("entity", entity),
					zap.Int("index", i),
					zap.Error(err),
				)
				continue
			}
			records = append(records, record)
		}
		data[entity] = records
	}
	return data, nil
}
