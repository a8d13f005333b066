package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecordType identifies the kind of source record awaiting settlement.
type RecordType string

const (
	// RecordTypeInvoice represents a customer or supplier invoice.
	RecordTypeInvoice RecordType = "INVOICE"
	// RecordTypePayslip represents a payroll slip.
	RecordTypePayslip RecordType = "PAYSLIP"
)

// String returns the string representation of RecordType
func (rt RecordType) String() string {
	return string(rt)
}

// IsValid checks if the record type is valid
func (rt RecordType) IsValid() bool {
	return rt == RecordTypeInvoice || rt == RecordTypePayslip
}

// LookbackDays returns how far back in the ledger candidates are fetched
// for this record type. Invoices can stay unsettled far longer than payroll.
func (rt RecordType) LookbackDays() int {
	switch rt {
	case RecordTypePayslip:
		return 180
	default:
		return 730
	}
}

// SignFilter restricts the candidate pool by amount sign.
type SignFilter string

const (
	// SignAny places no restriction on the amount sign.
	SignAny SignFilter = "any"
	// SignIncoming restricts candidates to positive amounts.
	SignIncoming SignFilter = "incoming"
	// SignOutgoing restricts candidates to negative amounts.
	SignOutgoing SignFilter = "outgoing"
)

// ExpectedSign returns the sign filter for candidates of this record type.
// Payroll is always paid out; invoices can settle in either direction
// (customer receipts or supplier payments), so they stay unrestricted.
func (rt RecordType) ExpectedSign() SignFilter {
	if rt == RecordTypePayslip {
		return SignOutgoing
	}
	return SignAny
}

// ParseRecordType parses and validates a record type from string
func ParseRecordType(s string) (RecordType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INVOICE", "INVOICES":
		return RecordTypeInvoice, nil
	case "PAYSLIP", "PAYSLIPS", "PAYROLL":
		return RecordTypePayslip, nil
	default:
		return "", fmt.Errorf("invalid record type '%s': must be invoice or payslip", s)
	}
}

// SourceRecord is an invoice or payslip needing settlement. It is owned by
// the accounting subsystem and read-only to the matcher except for the
// LinkedTransactionID field, which is set exactly once on apply.
type SourceRecord struct {
	ID                  string          `json:"id"`
	Type                RecordType      `json:"type"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	IssueDate           time.Time       `json:"issue_date"`
	DueDate             *time.Time      `json:"due_date,omitempty"`
	Counterparty        string          `json:"counterparty"`
	Reference           string          `json:"reference"`
	Entity              string          `json:"entity"`
	LinkedTransactionID *string         `json:"linked_transaction_id,omitempty"`
}

// TargetDate returns the date a settlement is expected against: the due
// date when present, the issue date otherwise.
func (sr *SourceRecord) TargetDate() time.Time {
	if sr.DueDate != nil && !sr.DueDate.IsZero() {
		return *sr.DueDate
	}
	return sr.IssueDate
}

// IsLinked reports whether the record already has an applied link.
func (sr *SourceRecord) IsLinked() bool {
	return sr.LinkedTransactionID != nil && *sr.LinkedTransactionID != ""
}

// Validate performs basic validation on the SourceRecord
func (sr *SourceRecord) Validate() error {
	if strings.TrimSpace(sr.ID) == "" {
		return fmt.Errorf("source record ID cannot be empty")
	}

	if !sr.Type.IsValid() {
		return fmt.Errorf("invalid record type: %s", sr.Type)
	}

	if !sr.Amount.IsPositive() {
		return fmt.Errorf("source record amount must be positive, got %s", sr.Amount.String())
	}

	if sr.IssueDate.IsZero() {
		return fmt.Errorf("source record issue date cannot be zero")
	}

	return nil
}

// String returns a string representation of the SourceRecord
func (sr *SourceRecord) String() string {
	return fmt.Sprintf("SourceRecord{ID: %s, Type: %s, Amount: %s %s, Issue: %s}",
		sr.ID, sr.Type, sr.Amount.String(), sr.Currency, sr.IssueDate.Format("2006-01-02"))
}

// TransactionCandidate is a ledger entry evaluated against a source record.
// Immutable from the matcher's perspective except for SourceRecordID, the
// back-reference set on apply.
type TransactionCandidate struct {
	ID             string          `json:"id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description"`
	EntityLabel    string          `json:"entity_label"`
	Origin         string          `json:"origin,omitempty"`
	Destination    string          `json:"destination,omitempty"`
	SourceRecordID *string         `json:"source_record_id,omitempty"`
}

// EntityNeedsReview is the classifier placeholder for transactions whose
// business entity could not be resolved upstream.
const EntityNeedsReview = "needs review"

// IsLinked reports whether the transaction already settles a source record.
func (tc *TransactionCandidate) IsLinked() bool {
	return tc.SourceRecordID != nil && *tc.SourceRecordID != ""
}

// IsOutgoing returns true when the amount carries a negative (outgoing) sign.
func (tc *TransactionCandidate) IsOutgoing() bool {
	return tc.Amount.IsNegative()
}

// AbsoluteAmount returns the unsigned amount of the transaction.
func (tc *TransactionCandidate) AbsoluteAmount() decimal.Decimal {
	return tc.Amount.Abs()
}

// HasEntityLabel reports whether the upstream classifier resolved an entity.
func (tc *TransactionCandidate) HasEntityLabel() bool {
	label := strings.ToLower(strings.TrimSpace(tc.EntityLabel))
	return label != "" && label != EntityNeedsReview
}

// Validate performs basic validation on the TransactionCandidate.
// Candidates failing validation are skipped with a warning, never fatal.
func (tc *TransactionCandidate) Validate() error {
	if strings.TrimSpace(tc.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}

	if tc.Amount.IsZero() {
		return fmt.Errorf("transaction amount cannot be zero")
	}

	if tc.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}

	return nil
}

// String returns a string representation of the TransactionCandidate
func (tc *TransactionCandidate) String() string {
	return fmt.Sprintf("TransactionCandidate{ID: %s, Amount: %s %s, Date: %s}",
		tc.ID, tc.Amount.String(), tc.Currency, tc.Date.Format("2006-01-02"))
}

// Criterion names a single similarity component.
type Criterion string

const (
	CriterionAmount       Criterion = "amount"
	CriterionDate         Criterion = "date"
	CriterionCounterparty Criterion = "counterparty"
	CriterionPattern      Criterion = "pattern"
	CriterionEntity       Criterion = "entity"
)

// CriteriaScores holds the per-pair component scores, each in [0,1].
// Ephemeral: only ever summarized into MatchResult.Explanation.
type CriteriaScores map[Criterion]float64

// Get returns the score for a criterion, zero when absent.
func (cs CriteriaScores) Get(c Criterion) float64 {
	return cs[c]
}

// Best returns the criterion that contributed the highest score.
// Ties resolve in a fixed order so results are deterministic.
func (cs CriteriaScores) Best() Criterion {
	order := []Criterion{CriterionAmount, CriterionCounterparty, CriterionDate, CriterionPattern, CriterionEntity}

	best := order[0]
	for _, c := range order[1:] {
		if cs[c] > cs[best] {
			best = c
		}
	}
	return best
}

// ConfidenceTier buckets a composite score into the review policy bands.
type ConfidenceTier string

const (
	// TierHigh marks matches confident enough to apply automatically.
	TierHigh ConfidenceTier = "HIGH"
	// TierMedium marks ambiguous matches routed to external verification
	// and, failing promotion, to manual review.
	TierMedium ConfidenceTier = "MEDIUM"
	// TierLow marks matches demoted below the review floor.
	TierLow ConfidenceTier = "LOW"
)

// Rank orders tiers LOW < MEDIUM < HIGH for monotonicity checks.
func (ct ConfidenceTier) Rank() int {
	switch ct {
	case TierHigh:
		return 2
	case TierMedium:
		return 1
	default:
		return 0
	}
}

// MatchType describes which signal dominated a match.
type MatchType string

const (
	MatchTypeAmountExact       MatchType = "amount_exact"
	MatchTypeCounterpartyMatch MatchType = "counterparty_match"
	MatchTypeDateProximity     MatchType = "date_proximity"
	MatchTypePatternMatch      MatchType = "pattern_match"
	MatchTypeEntityMatch       MatchType = "entity_match"
	MatchTypeCombined          MatchType = "combined"
)

// MatchResult is the scored outcome for one (source record, transaction)
// pair. Transient unless persisted as a PendingMatch.
type MatchResult struct {
	SourceID      string         `json:"source_id"`
	TransactionID string         `json:"transaction_id"`
	Score         float64        `json:"score"`
	Tier          ConfidenceTier `json:"confidence_tier"`
	MatchType     MatchType      `json:"match_type"`
	Explanation   string         `json:"explanation"`
	AutoMatch     bool           `json:"auto_match"`
	Verified      bool           `json:"verified"`
}

// PairID returns the stable identifier for this pair, used to correlate
// verification verdicts back to results.
func (mr *MatchResult) PairID() string {
	return mr.SourceID + ":" + mr.TransactionID
}

// PendingStatus is the review state of a persisted pending match.
type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "pending"
	PendingStatusApproved PendingStatus = "approved"
	PendingStatusRejected PendingStatus = "rejected"
)

// PendingMatch is the durable, reviewable suggestion row. Unique on
// (SourceID, TransactionID); superseded whenever a fresh run re-scores
// the same source record.
type PendingMatch struct {
	SourceID      string         `json:"source_id"`
	TransactionID string         `json:"transaction_id"`
	Score         float64        `json:"score"`
	Tier          ConfidenceTier `json:"confidence_tier"`
	MatchType     MatchType      `json:"match_type"`
	Explanation   string         `json:"explanation"`
	Status        PendingStatus  `json:"status"`
	Reviewer      string         `json:"reviewer,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewPendingMatch builds a pending row from a scored result.
func NewPendingMatch(mr *MatchResult, now time.Time) *PendingMatch {
	return &PendingMatch{
		SourceID:      mr.SourceID,
		TransactionID: mr.TransactionID,
		Score:         mr.Score,
		Tier:          mr.Tier,
		MatchType:     mr.MatchType,
		Explanation:   mr.Explanation,
		Status:        PendingStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AuditAction identifies what produced an audit entry.
type AuditAction string

const (
	AuditActionAutoApplied    AuditAction = "AUTO_APPLIED"
	AuditActionManualApproved AuditAction = "MANUAL_APPROVED"
	AuditActionUnlinked       AuditAction = "UNLINKED"
)

// AuditEntry records one applied-link event.
type AuditEntry struct {
	ID            string      `json:"id"`
	RunID         string      `json:"run_id,omitempty"`
	SourceID      string      `json:"source_id"`
	TransactionID string      `json:"transaction_id"`
	Action        AuditAction `json:"action"`
	Score         float64     `json:"score"`
	Actor         string      `json:"actor"`
	Timestamp     time.Time   `json:"timestamp"`
}

// RunSummary aggregates the outcome of a matching run.
type RunSummary struct {
	RunID         string `json:"run_id"`
	Total         int    `json:"total"`
	High          int    `json:"high"`
	Medium        int    `json:"medium"`
	AutoApplied   int    `json:"auto_applied"`
	PendingReview int    `json:"pending_review"`
	Skipped       int    `json:"skipped"`
}

// String returns a human-readable summary line.
func (rs *RunSummary) String() string {
	return fmt.Sprintf("records=%d high=%d medium=%d auto_applied=%d pending_review=%d skipped=%d",
		rs.Total, rs.High, rs.Medium, rs.AutoApplied, rs.PendingReview, rs.Skipped)
}
