// Package reporter renders matching run reports for the CLI: a
// human-readable console view or structured JSON for downstream tooling.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"settlement-matching-service/internal/engine"
	"settlement-matching-service/internal/models"
)

// OutputFormat identifies a report rendering.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
)

// IsValid checks whether the format is supported.
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON:
		return true
	default:
		return false
	}
}

// ReportConfig controls what a generated report includes.
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeApplied lists every automatically applied link.
	IncludeApplied bool `json:"include_applied"`

	// IncludePending lists every suggestion queued for review.
	IncludePending bool `json:"include_pending"`

	// MaxListedRows caps the applied and pending listings; zero means
	// unlimited.
	MaxListedRows int `json:"max_listed_rows"`
}

// DefaultReportConfig returns the standard console report settings.
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:         FormatConsole,
		IncludeApplied: true,
		IncludePending: true,
		MaxListedRows:  50,
	}
}

// Validate checks the report configuration.
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("unsupported output format: %s", c.Format)
	}
	if c.MaxListedRows < 0 {
		return fmt.Errorf("max listed rows cannot be negative: %d", c.MaxListedRows)
	}
	return nil
}

// ReportGenerator renders run reports.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a generator with the given configuration.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes the run report to the writer in the configured
// format.
func (rg *ReportGenerator) GenerateReport(report *engine.RunReport, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("run report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report *engine.RunReport, writer io.Writer) error {
	summary := report.Summary

	fmt.Fprintf(writer, "MATCHING RUN REPORT\n")
	fmt.Fprintf(writer, "Run ID: %s\n", summary.RunID)
	fmt.Fprintf(writer, "Record Type: %s\n", report.RecordType)
	fmt.Fprintf(writer, "Duration: %s\n", report.Elapsed.Round(time.Millisecond))
	if report.DryRun {
		fmt.Fprintf(writer, "Mode: dry run (nothing written)\n")
	}
	fmt.Fprintf(writer, "\n=== SUMMARY ===\n")
	rg.printSummaryTable(summary, writer)

	if rg.config.IncludeApplied && len(report.Applied) > 0 {
		fmt.Fprintf(writer, "\n=== APPLIED LINKS ===\n")
		rg.printApplied(report.Applied, writer)
	}

	if rg.config.IncludePending && len(report.Pending) > 0 {
		fmt.Fprintf(writer, "\n=== PENDING REVIEW ===\n")
		rg.printPending(report.Pending, writer)
	}

	return nil
}

func (rg *ReportGenerator) generateJSONReport(report *engine.RunReport, writer io.Writer) error {
	filtered := rg.filterReportForOutput(report)

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(filtered)
}

func (rg *ReportGenerator) printSummaryTable(summary *models.RunSummary, writer io.Writer) {
	fmt.Fprintf(writer, "Records:\n")
	fmt.Fprintf(writer, "  Total:           %d\n", summary.Total)
	fmt.Fprintf(writer, "  Auto-applied:    %d (%.1f%%)\n",
		summary.AutoApplied, rg.calculatePercentage(summary.AutoApplied, summary.Total))
	fmt.Fprintf(writer, "  Pending review:  %d (%.1f%%)\n",
		summary.PendingReview, rg.calculatePercentage(summary.PendingReview, summary.Total))
	fmt.Fprintf(writer, "  Skipped:         %d (%.1f%%)\n",
		summary.Skipped, rg.calculatePercentage(summary.Skipped, summary.Total))

	fmt.Fprintf(writer, "\nConfidence:\n")
	fmt.Fprintf(writer, "  High:    %d\n", summary.High)
	fmt.Fprintf(writer, "  Medium:  %d\n", summary.Medium)
}

func (rg *ReportGenerator) printApplied(applied []*models.MatchResult, writer io.Writer) {
	for i, result := range applied {
		if rg.config.MaxListedRows > 0 && i >= rg.config.MaxListedRows {
			fmt.Fprintf(writer, "  ... and %d more\n", len(applied)-i)
			return
		}
		verified := ""
		if result.Verified {
			verified = " [verified]"
		}
		fmt.Fprintf(writer, "  %s -> %s  score %.3f  %s%s\n",
			result.SourceID, result.TransactionID, result.Score, result.MatchType, verified)
	}
}

func (rg *ReportGenerator) printPending(pending []*models.PendingMatch, writer io.Writer) {
	for i, match := range pending {
		if rg.config.MaxListedRows > 0 && i >= rg.config.MaxListedRows {
			fmt.Fprintf(writer, "  ... and %d more\n", len(pending)-i)
			return
		}
		fmt.Fprintf(writer, "  %s -> %s  score %.3f  %s\n    %s\n",
			match.SourceID, match.TransactionID, match.Score, match.Tier,
			truncateExplanation(match.Explanation, 120))
	}
}

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// filterReportForOutput shapes the report to the configured inclusion
// flags so JSON consumers only get what was asked for.
func (rg *ReportGenerator) filterReportForOutput(report *engine.RunReport) map[string]interface{} {
	filtered := map[string]interface{}{
		"summary":     report.Summary,
		"record_type": report.RecordType,
		"dry_run":     report.DryRun,
		"elapsed":     report.Elapsed.String(),
	}

	if rg.config.IncludeApplied {
		filtered["applied"] = report.Applied
	}
	if rg.config.IncludePending {
		filtered["pending"] = report.Pending
	}

	return filtered
}

func truncateExplanation(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
