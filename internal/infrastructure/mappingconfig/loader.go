// Package mappingconfig loads mapping files from disk and derives the alias
// lists entity mappings are looked up under.
package mappingconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/erp/migrator/internal/domain/migration"
)

// Loader reads and prepares mapping configurations.
type Loader struct {
	logger *zap.Logger
	strict bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used to report lint findings.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithStrictFields rejects mapping files containing unknown keys.
func WithStrictFields() Option {
	return func(l *Loader) {
		l.strict = true
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the file at path and returns a prepared configuration.
func (l *Loader) Load(path string) (*migration.MappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, migration.NewConfigurationError(migration.CodeInvalidConfig,
			"read mapping file %s: %v", path, err)
	}
	cfg, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("mapping file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data, derives missing aliases and prepares the configuration.
// Lint findings are logged as warnings; they never fail the load.
func (l *Loader) Parse(data []byte) (*migration.MappingConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if l.strict {
		dec.DisallowUnknownFields()
	}
	var cfg migration.MappingConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, migration.NewConfigurationError(migration.CodeInvalidConfig,
			"decode mapping configuration: %v", err)
	}

	for name, mapping := range cfg.EntityMappings {
		if mapping != nil && len(mapping.Aliases) == 0 {
			mapping.Aliases = DeriveAliases(name)
		}
	}
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}

	for _, finding := range cfg.Lint() {
		l.logger.Warn("mapping configuration", zap.String("finding", finding))
	}
	l.logger.Info("mapping configuration loaded",
		zap.String("source_platform", cfg.Metadata.SourcePlatform),
		zap.String("target_platform", cfg.Metadata.TargetPlatform),
		zap.Strings("sequence", cfg.MigrationSequence),
	)
	return &cfg, nil
}

// DeriveAliases returns the extraction keys an entity type is looked up
// under when the mapping names none: the name itself, lower case, plural,
// lower plural and title case, without duplicates.
func DeriveAliases(entityType string) []string {
	plural := inflection.Plural(entityType)
	title := cases.Title(language.English, cases.NoLower).String(entityType)
	candidates := []string{
		entityType,
		strings.ToLower(entityType),
		plural,
		strings.ToLower(plural),
		title,
	}

	aliases := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != "" && !slices.Contains(aliases, c) {
			aliases = append(aliases, c)
		}
	}
	return aliases
}
