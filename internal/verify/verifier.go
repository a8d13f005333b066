// Package verify refines ambiguous match results through an external
// semantic verification service. Only MEDIUM-tier pairs are sent; the
// service is treated as an untrusted black box behind the Verifier
// interface, and any failure degrades to the pre-verification scores.
package verify

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"settlement-matching-service/internal/models"
)

// PairRequest is one pair submitted for semantic verification.
type PairRequest struct {
	PairID             string  `json:"pair_id"`
	SourceSummary      string  `json:"source_summary"`
	TransactionSummary string  `json:"transaction_summary"`
	CurrentScore       float64 `json:"current_score"`
}

// Verdict is the service's judgment on one pair. Fields outside this
// contract are ignored on decode; entries without a pair_id are treated as
// "no verification available" for that pair.
type Verdict struct {
	PairID        string  `json:"pair_id"`
	IsMatch       bool    `json:"is_match"`
	Confidence    float64 `json:"confidence"`
	AdjustedScore float64 `json:"adjusted_score"`
	Reasoning     string  `json:"reasoning"`
}

// Verifier reviews batches of candidate pairs. Implementations must honor
// the context deadline; latency of the backing service is untrusted.
type Verifier interface {
	Review(ctx context.Context, pairs []PairRequest) ([]Verdict, error)
}

// BuildPairRequest assembles the sanitized request for one scored pair.
func BuildPairRequest(result *models.MatchResult, record *models.SourceRecord, candidate *models.TransactionCandidate) PairRequest {
	return PairRequest{
		PairID:             result.PairID(),
		SourceSummary:      summarizeRecord(record),
		TransactionSummary: summarizeCandidate(candidate),
		CurrentScore:       result.Score,
	}
}

func summarizeRecord(record *models.SourceRecord) string {
	due := "none"
	if record.DueDate != nil && !record.DueDate.IsZero() {
		due = record.DueDate.Format("2006-01-02")
	}

	return Sanitize(fmt.Sprintf("%s %s: amount %s %s, issued %s, due %s, counterparty %q, reference %q, entity %q",
		strings.ToLower(record.Type.String()), record.ID,
		record.Amount.String(), record.Currency,
		record.IssueDate.Format("2006-01-02"), due,
		record.Counterparty, record.Reference, record.Entity))
}

func summarizeCandidate(candidate *models.TransactionCandidate) string {
	return Sanitize(fmt.Sprintf("transaction %s: amount %s %s on %s, description %q, entity %q",
		candidate.ID, candidate.Amount.String(), candidate.Currency,
		candidate.Date.Format("2006-01-02"), candidate.Description, candidate.EntityLabel))
}

// Sanitize makes free text safe to embed in a verification request:
// ASCII-only, newlines collapsed to spaces, double quotes escaped.
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r == '"':
			b.WriteString(`\"`)
		case r > unicode.MaxASCII:
			// Drop non-ASCII rather than guessing a transliteration.
		case unicode.IsPrint(r):
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
