package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"settlement-matching-service/internal/matcher"
	"settlement-matching-service/internal/models"

	"github.com/shopspring/decimal"
)

type stubVerifier struct {
	mu      sync.Mutex
	respond func(pairs []PairRequest) ([]Verdict, error)
	calls   [][]PairRequest
}

func (s *stubVerifier) Review(_ context.Context, pairs []PairRequest) ([]Verdict, error) {
	s.mu.Lock()
	s.calls = append(s.calls, pairs)
	s.mu.Unlock()
	if s.respond != nil {
		return s.respond(pairs)
	}
	return nil, nil
}

func mediumResult(sourceID, transactionID string, score float64) *models.MatchResult {
	return &models.MatchResult{
		SourceID:      sourceID,
		TransactionID: transactionID,
		Score:         score,
		Tier:          models.TierMedium,
		MatchType:     models.MatchTypeCombined,
		Explanation:   "ambiguous",
	}
}

func verificationFixtures(n int) ([]*models.MatchResult, map[string]*models.SourceRecord, map[string]*models.TransactionCandidate) {
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	results := make([]*models.MatchResult, 0, n)
	records := make(map[string]*models.SourceRecord)
	candidates := make(map[string]*models.TransactionCandidate)

	for i := 0; i < n; i++ {
		sourceID := fmt.Sprintf("inv-%03d", i)
		transactionID := fmt.Sprintf("txn-%03d", i)

		results = append(results, mediumResult(sourceID, transactionID, 0.60))
		records[sourceID] = &models.SourceRecord{
			ID:           sourceID,
			Type:         models.RecordTypeInvoice,
			Amount:       decimal.NewFromFloat(100),
			Currency:     "USD",
			IssueDate:    issue,
			Counterparty: "Acme Corp",
		}
		candidates[transactionID] = &models.TransactionCandidate{
			ID:       transactionID,
			Amount:   decimal.NewFromFloat(100),
			Currency: "USD",
			Date:     issue,
		}
	}

	return results, records, candidates
}

func TestBatcherPromotesApprovedPairs(t *testing.T) {
	results, records, candidates := verificationFixtures(1)
	config := matcher.DefaultConfig()

	verifier := &stubVerifier{
		respond: func(pairs []PairRequest) ([]Verdict, error) {
			return []Verdict{{
				PairID:        pairs[0].PairID,
				IsMatch:       true,
				Confidence:    0.9,
				AdjustedScore: 0.99,
				Reasoning:     "amounts and counterparties align",
			}}, nil
		},
	}

	refined := NewBatcher(verifier, config).Refine(context.Background(), results, records, candidates, nil)
	if len(refined) != 1 {
		t.Fatalf("Expected 1 refined result, got %d", len(refined))
	}

	got := refined[0]
	if got.Score != config.VerifiedScoreCap {
		t.Errorf("Promotion must cap at %.2f, got %.3f", config.VerifiedScoreCap, got.Score)
	}
	if got.Tier != models.TierHigh || !got.AutoMatch {
		t.Errorf("Expected HIGH auto-match after promotion, got tier=%s auto=%v", got.Tier, got.AutoMatch)
	}
	if !got.Verified {
		t.Error("Refined result must be marked verified")
	}
	if results[0].Score != 0.60 || results[0].Verified {
		t.Error("Input results must not be mutated")
	}
}

func TestBatcherDemotesRejectedPairs(t *testing.T) {
	results, records, candidates := verificationFixtures(1)

	verifier := &stubVerifier{
		respond: func(pairs []PairRequest) ([]Verdict, error) {
			return []Verdict{{
				PairID:     pairs[0].PairID,
				IsMatch:    false,
				Confidence: 0.8,
				Reasoning:  "different counterparties",
			}}, nil
		},
	}

	refined := NewBatcher(verifier, matcher.DefaultConfig()).Refine(context.Background(), results, records, candidates, nil)

	got := refined[0]
	if got.Score != 0.30 {
		t.Errorf("Rejection must halve the score, got %.3f", got.Score)
	}
	if got.Tier != models.TierLow || got.AutoMatch {
		t.Errorf("Expected LOW tier after rejection, got tier=%s auto=%v", got.Tier, got.AutoMatch)
	}
}

func TestBatcherLowConfidenceApprovalIsDemotion(t *testing.T) {
	results, records, candidates := verificationFixtures(1)

	verifier := &stubVerifier{
		respond: func(pairs []PairRequest) ([]Verdict, error) {
			return []Verdict{{
				PairID:        pairs[0].PairID,
				IsMatch:       true,
				Confidence:    0.4,
				AdjustedScore: 0.9,
			}}, nil
		},
	}

	refined := NewBatcher(verifier, matcher.DefaultConfig()).Refine(context.Background(), results, records, candidates, nil)

	if refined[0].Tier != models.TierLow {
		t.Errorf("Approval below the confidence floor must demote, got %s", refined[0].Tier)
	}
}

func TestBatcherFailedBatchKeepsOriginalScores(t *testing.T) {
	config := matcher.DefaultConfig()
	config.VerificationBatchSize = 2

	results, records, candidates := verificationFixtures(4)

	// First batch fails, second batch approves everything it sees.
	verifier := &stubVerifier{}
	verifier.respond = func(pairs []PairRequest) ([]Verdict, error) {
		if pairs[0].PairID == results[0].PairID() {
			return nil, errors.New("service unavailable")
		}
		verdicts := make([]Verdict, 0, len(pairs))
		for _, pair := range pairs {
			verdicts = append(verdicts, Verdict{
				PairID:        pair.PairID,
				IsMatch:       true,
				Confidence:    0.9,
				AdjustedScore: 0.85,
			})
		}
		return verdicts, nil
	}

	refined := NewBatcher(verifier, config).Refine(context.Background(), results, records, candidates, nil)
	if len(refined) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(refined))
	}

	byPair := make(map[string]*models.MatchResult, len(refined))
	for _, result := range refined {
		byPair[result.PairID()] = result
	}

	// The failed batch passes through untouched.
	for _, original := range results[:2] {
		got := byPair[original.PairID()]
		if got.Verified || got.Score != 0.60 || got.Tier != models.TierMedium {
			t.Errorf("Failed batch must keep original scores, got %+v", got)
		}
	}

	// The successful batch is promoted.
	for _, original := range results[2:] {
		got := byPair[original.PairID()]
		if !got.Verified || got.Tier != models.TierHigh {
			t.Errorf("Successful batch should be promoted, got %+v", got)
		}
	}

	if len(verifier.calls) != 2 {
		t.Errorf("Expected 2 batches dispatched, got %d", len(verifier.calls))
	}
}

func TestBatcherPartitionSizes(t *testing.T) {
	config := matcher.DefaultConfig()
	results, _, _ := verificationFixtures(40)

	batches := NewBatcher(&stubVerifier{}, config).partition(results)
	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches of up to %d for 40 pairs, got %d", config.VerificationBatchSize, len(batches))
	}
	if len(batches[0]) != 18 || len(batches[1]) != 18 || len(batches[2]) != 4 {
		t.Errorf("Unexpected batch sizes: %d, %d, %d", len(batches[0]), len(batches[1]), len(batches[2]))
	}
}

func TestBatcherIgnoresUnknownPairIDs(t *testing.T) {
	results, records, candidates := verificationFixtures(1)

	verifier := &stubVerifier{
		respond: func(pairs []PairRequest) ([]Verdict, error) {
			return []Verdict{
				{PairID: "", IsMatch: false},
				{PairID: "inv-999:txn-999", IsMatch: true, Confidence: 0.9, AdjustedScore: 0.95},
			}, nil
		},
	}

	refined := NewBatcher(verifier, matcher.DefaultConfig()).Refine(context.Background(), results, records, candidates, nil)

	if refined[0].Verified || refined[0].Score != 0.60 {
		t.Errorf("Pairs without a verdict must pass through unchanged, got %+v", refined[0])
	}
}

func TestBatcherNilVerifierPassesThrough(t *testing.T) {
	results, records, candidates := verificationFixtures(2)

	refined := NewBatcher(nil, matcher.DefaultConfig()).Refine(context.Background(), results, records, candidates, nil)
	if len(refined) != 2 {
		t.Fatalf("Expected all results back, got %d", len(refined))
	}
	for i, result := range refined {
		if result.Verified {
			t.Errorf("Result %d should be untouched without a verifier", i)
		}
	}
}

func TestBatcherOrderingIsDeterministic(t *testing.T) {
	results, records, candidates := verificationFixtures(3)

	verifier := &stubVerifier{
		respond: func(pairs []PairRequest) ([]Verdict, error) {
			verdicts := make([]Verdict, 0, len(pairs))
			for i, pair := range pairs {
				verdicts = append(verdicts, Verdict{
					PairID:        pair.PairID,
					IsMatch:       true,
					Confidence:    0.9,
					AdjustedScore: 0.70 + float64(i)*0.05,
				})
			}
			return verdicts, nil
		},
	}

	refined := NewBatcher(verifier, matcher.DefaultConfig()).Refine(context.Background(), results, records, candidates, nil)
	for i := 1; i < len(refined); i++ {
		if refined[i-1].Score < refined[i].Score {
			t.Fatalf("Results out of order at %d: %.3f then %.3f", i, refined[i-1].Score, refined[i].Score)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"line\nbreaks\tand\rreturns", "line breaks and returns"},
		{`say "hello"`, `say \"hello\"`},
		{"café São Paulo", "caf So Paulo"},
		{"  padded   spaces  ", "padded spaces"},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildPairRequest(t *testing.T) {
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	record := &models.SourceRecord{
		ID:           "inv-001",
		Type:         models.RecordTypeInvoice,
		Amount:       decimal.NewFromFloat(1500),
		Currency:     "USD",
		IssueDate:    issue,
		Counterparty: "Acme Corp",
		Reference:    "INV-001",
	}
	candidate := &models.TransactionCandidate{
		ID:          "txn-100",
		Amount:      decimal.NewFromFloat(1500),
		Currency:    "USD",
		Date:        issue,
		Description: "incoming wire",
	}
	result := mediumResult("inv-001", "txn-100", 0.62)

	request := BuildPairRequest(result, record, candidate)
	if request.PairID != "inv-001:txn-100" {
		t.Errorf("Unexpected pair ID %q", request.PairID)
	}
	if request.CurrentScore != 0.62 {
		t.Errorf("Unexpected score %.2f", request.CurrentScore)
	}
	if request.SourceSummary == "" || request.TransactionSummary == "" {
		t.Error("Summaries must not be empty")
	}
}
