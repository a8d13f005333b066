// Package parsers loads operator-maintained configuration files for the
// matching service. Today that is the entity rules file: a CSV mapping
// counterparty-name patterns to the canonical business entities the
// accounting subsystem reports under.
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"settlement-matching-service/internal/matcher"
	apperrors "settlement-matching-service/pkg/errors"
	"settlement-matching-service/pkg/logger"
)

// EntityRulesConfig configures the entity rules file parser.
type EntityRulesConfig struct {
	// PatternColumn and EntityColumn name the two required columns.
	PatternColumn string
	EntityColumn  string

	// HasHeader indicates whether the first row is a header. Without a
	// header the first column is the pattern and the second the entity.
	HasHeader bool

	Delimiter rune
}

// DefaultEntityRulesConfig returns the standard rules file layout.
func DefaultEntityRulesConfig() *EntityRulesConfig {
	return &EntityRulesConfig{
		PatternColumn: "pattern",
		EntityColumn:  "entity",
		HasHeader:     true,
		Delimiter:     ',',
	}
}

// EntityRulesParser reads entity rule CSV files.
type EntityRulesParser struct {
	config *EntityRulesConfig
	logger logger.Logger
}

// NewEntityRulesParser creates a parser with the given configuration.
func NewEntityRulesParser(config *EntityRulesConfig) *EntityRulesParser {
	if config == nil {
		config = DefaultEntityRulesConfig()
	}
	return &EntityRulesParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("entity_rules_parser"),
	}
}

// ParseFile loads entity rules from a CSV file into a resolver.
func (p *EntityRulesParser) ParseFile(path string) (*matcher.EntityResolver, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeMissingConfig, "entity rules file", err)
	}
	defer file.Close()

	resolver, err := p.Parse(file)
	if err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, path, err)
	}

	return resolver, nil
}

// Parse reads entity rules from a reader. Blank lines and lines starting
// with # are skipped; every remaining row must yield a compilable pattern.
func (p *EntityRulesParser) Parse(r io.Reader) (*matcher.EntityResolver, error) {
	reader := csv.NewReader(r)
	reader.Comma = p.config.Delimiter
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read entity rules: %w", err)
	}

	patternIdx, entityIdx := 0, 1
	start := 0
	if p.config.HasHeader && len(records) > 0 {
		patternIdx, entityIdx, err = p.resolveColumns(records[0])
		if err != nil {
			return nil, err
		}
		start = 1
	}

	resolver := matcher.NewEntityResolver(nil)
	count := 0

	for i, row := range records[start:] {
		line := start + i + 1

		if len(row) <= patternIdx || len(row) <= entityIdx {
			return nil, fmt.Errorf("line %d: expected at least %d columns, got %d", line, max(patternIdx, entityIdx)+1, len(row))
		}

		pattern := strings.TrimSpace(row[patternIdx])
		entity := strings.TrimSpace(row[entityIdx])
		if pattern == "" && entity == "" {
			continue
		}
		if pattern == "" || entity == "" {
			return nil, fmt.Errorf("line %d: pattern and entity are both required", line)
		}

		if err := resolver.AddRule(pattern, entity); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		count++
	}

	p.logger.WithField("rules", count).Debug("Loaded entity rules")
	return resolver, nil
}

func (p *EntityRulesParser) resolveColumns(header []string) (patternIdx, entityIdx int, err error) {
	patternIdx, entityIdx = -1, -1

	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case strings.ToLower(p.config.PatternColumn):
			patternIdx = i
		case strings.ToLower(p.config.EntityColumn):
			entityIdx = i
		}
	}

	if patternIdx < 0 || entityIdx < 0 {
		return 0, 0, fmt.Errorf("entity rules header must contain %q and %q columns", p.config.PatternColumn, p.config.EntityColumn)
	}
	return patternIdx, entityIdx, nil
}
